package database

import (
	"context"
	"time"
)

type GoChatRepository interface {
	Ping(ctx context.Context) error

	CreateAccount(ctx context.Context, params CreateAccountParams) (User, error)
	GetAccountById(ctx context.Context, userId int64) (User, error)
	GetAccountByEmail(ctx context.Context, email string) (User, error)
	SearchAccounts(ctx context.Context, query string, limit int) ([]User, error)
	UpdatePresence(ctx context.Context, params UpdatePresenceParams) error

	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	GetRoomById(ctx context.Context, roomId int64) (Room, error)
	ListRoomsForUser(ctx context.Context, userId int64) ([]Room, error)
	TouchRoom(ctx context.Context, roomId int64, at time.Time) error

	GetMembership(ctx context.Context, roomId, userId int64) (Member, error)
	ListMembers(ctx context.Context, roomId int64) ([]Member, error)
	ListActiveRoomIds(ctx context.Context, userId int64) ([]int64, error)
	UpsertMembership(ctx context.Context, roomId, userId int64, role string) (Member, error)
	DeactivateMembership(ctx context.Context, roomId, userId int64, leftAt time.Time) error
	UpdateMemberRole(ctx context.Context, roomId, userId int64, role string) error

	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	GetMessage(ctx context.Context, messageId int64) (Message, error)
	ListMessages(ctx context.Context, roomId, before int64, limit int) ([]Message, error)
	SearchMessages(ctx context.Context, roomId int64, query string, limit int) ([]Message, error)
	UpdateMessageContent(ctx context.Context, messageId int64, content string, editedAt time.Time) (Message, error)
	SoftDeleteMessage(ctx context.Context, messageId int64, deletedAt time.Time) (Message, error)

	GetReaction(ctx context.Context, messageId, userId int64, emoji string) (Reaction, error)
	CreateReaction(ctx context.Context, messageId, userId int64, emoji string) (Reaction, error)
	DeleteReaction(ctx context.Context, reactionId int64) error
	ListReactions(ctx context.Context, messageId int64) ([]Reaction, error)

	UpsertReadReceipt(ctx context.Context, messageId, userId int64, readAt time.Time) (ReadReceipt, error)

	PinMessage(ctx context.Context, roomId, messageId, pinnedBy int64) (PinnedMessage, error)
	UnpinMessage(ctx context.Context, roomId, messageId int64) error
	ListPinnedMessages(ctx context.Context, roomId int64) ([]PinnedMessage, error)

	ListFilesForRoom(ctx context.Context, roomId, before int64, limit int) ([]File, error)
}

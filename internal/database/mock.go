package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockGoChatRepository struct {
	mock.Mock
}

var _ GoChatRepository = (*MockGoChatRepository)(nil)

func (m *MockGoChatRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockGoChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetAccountById(ctx context.Context, userId int64) (User, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) SearchAccounts(ctx context.Context, query string, limit int) ([]User, error) {
	args := m.Called(ctx, query, limit)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockGoChatRepository) UpdatePresence(ctx context.Context, params UpdatePresenceParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}
func (m *MockGoChatRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGoChatRepository) GetRoomById(ctx context.Context, roomId int64) (Room, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockGoChatRepository) ListRoomsForUser(ctx context.Context, userId int64) ([]Room, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockGoChatRepository) TouchRoom(ctx context.Context, roomId int64, at time.Time) error {
	args := m.Called(ctx, roomId, at)
	return args.Error(0)
}
func (m *MockGoChatRepository) GetMembership(ctx context.Context, roomId, userId int64) (Member, error) {
	args := m.Called(ctx, roomId, userId)
	return args.Get(0).(Member), args.Error(1)
}
func (m *MockGoChatRepository) ListMembers(ctx context.Context, roomId int64) ([]Member, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).([]Member), args.Error(1)
}
func (m *MockGoChatRepository) ListActiveRoomIds(ctx context.Context, userId int64) ([]int64, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).([]int64), args.Error(1)
}
func (m *MockGoChatRepository) UpsertMembership(ctx context.Context, roomId, userId int64, role string) (Member, error) {
	args := m.Called(ctx, roomId, userId, role)
	return args.Get(0).(Member), args.Error(1)
}
func (m *MockGoChatRepository) DeactivateMembership(ctx context.Context, roomId, userId int64, leftAt time.Time) error {
	args := m.Called(ctx, roomId, userId, leftAt)
	return args.Error(0)
}
func (m *MockGoChatRepository) UpdateMemberRole(ctx context.Context, roomId, userId int64, role string) error {
	args := m.Called(ctx, roomId, userId, role)
	return args.Error(0)
}
func (m *MockGoChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) GetMessage(ctx context.Context, messageId int64) (Message, error) {
	args := m.Called(ctx, messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) ListMessages(ctx context.Context, roomId, before int64, limit int) ([]Message, error) {
	args := m.Called(ctx, roomId, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockGoChatRepository) SearchMessages(ctx context.Context, roomId int64, query string, limit int) ([]Message, error) {
	args := m.Called(ctx, roomId, query, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockGoChatRepository) UpdateMessageContent(ctx context.Context, messageId int64, content string, editedAt time.Time) (Message, error) {
	args := m.Called(ctx, messageId, content, editedAt)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) SoftDeleteMessage(ctx context.Context, messageId int64, deletedAt time.Time) (Message, error) {
	args := m.Called(ctx, messageId, deletedAt)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) GetReaction(ctx context.Context, messageId, userId int64, emoji string) (Reaction, error) {
	args := m.Called(ctx, messageId, userId, emoji)
	return args.Get(0).(Reaction), args.Error(1)
}
func (m *MockGoChatRepository) CreateReaction(ctx context.Context, messageId, userId int64, emoji string) (Reaction, error) {
	args := m.Called(ctx, messageId, userId, emoji)
	return args.Get(0).(Reaction), args.Error(1)
}
func (m *MockGoChatRepository) DeleteReaction(ctx context.Context, reactionId int64) error {
	args := m.Called(ctx, reactionId)
	return args.Error(0)
}
func (m *MockGoChatRepository) ListReactions(ctx context.Context, messageId int64) ([]Reaction, error) {
	args := m.Called(ctx, messageId)
	return args.Get(0).([]Reaction), args.Error(1)
}
func (m *MockGoChatRepository) UpsertReadReceipt(ctx context.Context, messageId, userId int64, readAt time.Time) (ReadReceipt, error) {
	args := m.Called(ctx, messageId, userId, readAt)
	return args.Get(0).(ReadReceipt), args.Error(1)
}
func (m *MockGoChatRepository) PinMessage(ctx context.Context, roomId, messageId, pinnedBy int64) (PinnedMessage, error) {
	args := m.Called(ctx, roomId, messageId, pinnedBy)
	return args.Get(0).(PinnedMessage), args.Error(1)
}
func (m *MockGoChatRepository) UnpinMessage(ctx context.Context, roomId, messageId int64) error {
	args := m.Called(ctx, roomId, messageId)
	return args.Error(0)
}
func (m *MockGoChatRepository) ListPinnedMessages(ctx context.Context, roomId int64) ([]PinnedMessage, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).([]PinnedMessage), args.Error(1)
}
func (m *MockGoChatRepository) ListFilesForRoom(ctx context.Context, roomId, before int64, limit int) ([]File, error) {
	args := m.Called(ctx, roomId, before, limit)
	return args.Get(0).([]File), args.Error(1)
}

package database

import "time"

type User struct {
	Id           int64
	Username     string
	DisplayName  string
	Avatar       string
	EmailAddress string
	PasswordHash string
	Status       string
	IsOnline     bool
	IsBlocked    bool
	LastSeen     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id          int64
	ExternalId  string
	Name        string
	Description string
	Type        string
	IsPrivate   bool
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Member is a room membership row. Inactive rows are tombstones kept so a
// user can re-join without losing role history.
type Member struct {
	Id       int64
	RoomId   int64
	UserId   int64
	Role     string
	IsActive bool
	JoinedAt time.Time
	LeftAt   *time.Time
	User     User
}

type Message struct {
	Id        int64
	RoomId    int64
	SenderId  int64
	Content   *string
	Type      string
	ReplyToId *int64
	IsEdited  bool
	EditedAt  *time.Time
	IsDeleted bool
	DeletedAt *time.Time
	CreatedAt time.Time
	Sender    User
	Files     []File
}

type File struct {
	Id           int64
	MessageId    *int64
	UserId       int64
	Filename     string
	OriginalName string
	MimeType     string
	Size         int64
	Url          string
	ThumbnailUrl string
	CreatedAt    time.Time
}

type Reaction struct {
	Id        int64
	MessageId int64
	UserId    int64
	Emoji     string
	CreatedAt time.Time
	User      User
}

type ReadReceipt struct {
	MessageId int64
	UserId    int64
	ReadAt    time.Time
}

type PinnedMessage struct {
	RoomId    int64
	MessageId int64
	PinnedBy  int64
	PinnedAt  time.Time
	Message   Message
}

type CreateAccountParams struct {
	Username     string
	DisplayName  string
	EmailAddress string
	PasswordHash string
}

type UpdatePresenceParams struct {
	UserId   int64
	Status   string
	IsOnline bool
	LastSeen time.Time
}

type CreateRoomParams struct {
	ExternalId  string
	Name        string
	Description string
	Type        string
	IsPrivate   bool
	OwnerId     int64
	MemberIds   []int64
}

type CreateFileParams struct {
	Filename     string
	OriginalName string
	MimeType     string
	Size         int64
	Url          string
	ThumbnailUrl string
}

type CreateMessageParams struct {
	RoomId    int64
	SenderId  int64
	Content   *string
	Type      string
	ReplyToId *int64
	Files     []CreateFileParams
	CreatedAt time.Time
}

package types

import (
	"time"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}

type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleModerator, RoleMember:
		return true
	}
	return false
}

// CanModerate reports whether the role may delete other members' messages
// and manage pins.
func (r Role) CanModerate() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleModerator
}

// CanManageMembers reports whether the role may invite or remove members.
func (r Role) CanManageMembers() bool {
	return r == RoleOwner || r == RoleAdmin
}

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeAudio  MessageType = "audio"
	MessageTypeVideo  MessageType = "video"
	MessageTypeSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeAudio, MessageTypeVideo, MessageTypeSystem:
		return true
	}
	return false
}

type User struct {
	Id          int64      `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Avatar      string     `json:"avatar,omitempty"`
	Status      Status     `json:"status,omitempty"`
	IsOnline    bool       `json:"is_online"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
}

// Account is the private view of a user, returned only to the user itself.
type Account struct {
	User
	EmailAddress string `json:"email_address"`
}

type Room struct {
	Id          int64     `json:"id"`
	ExternalId  string    `json:"external_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	IsPrivate   bool      `json:"is_private"`
	CreatedBy   int64     `json:"created_by"`
	Members     []Member  `json:"members,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Member struct {
	RoomId   int64      `json:"room_id"`
	User     User       `json:"user"`
	Role     Role       `json:"role"`
	IsActive bool       `json:"is_active"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

type File struct {
	Id           int64     `json:"id"`
	MessageId    *int64    `json:"message_id,omitempty"`
	UserId       int64     `json:"user_id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	Url          string    `json:"url"`
	ThumbnailUrl string    `json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Reaction struct {
	Id        int64     `json:"id"`
	MessageId int64     `json:"message_id"`
	Emoji     string    `json:"emoji"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// ReplyContext is the one-level preview of the message being replied to.
type ReplyContext struct {
	Id        int64     `json:"id"`
	Content   *string   `json:"content"`
	IsDeleted bool      `json:"is_deleted"`
	Sender    User      `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	Id        int64         `json:"id"`
	RoomId    int64         `json:"room_id"`
	Sender    User          `json:"sender"`
	Content   *string       `json:"content"`
	Type      MessageType   `json:"type"`
	ReplyTo   *ReplyContext `json:"reply_to,omitempty"`
	Files     []File        `json:"files"`
	Reactions []Reaction    `json:"reactions"`
	IsEdited  bool          `json:"is_edited"`
	EditedAt  *time.Time    `json:"edited_at,omitempty"`
	IsDeleted bool          `json:"is_deleted"`
	DeletedAt *time.Time    `json:"deleted_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type ReadReceipt struct {
	MessageId int64     `json:"message_id"`
	UserId    int64     `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

type PinnedMessage struct {
	RoomId   int64     `json:"room_id"`
	Message  Message   `json:"message"`
	PinnedBy int64     `json:"pinned_by"`
	PinnedAt time.Time `json:"pinned_at"`
}

type Presence struct {
	UserId   int64      `json:"user_id"`
	Status   Status     `json:"status"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/npezzotti/go-chatroom-realtime/internal/types"
)

// Inbound events.
const (
	EventJoinRoom     = "join_room"
	EventLeaveRoom    = "leave_room"
	EventSendMessage  = "send_message"
	EventTypingStart  = "typing_start"
	EventTypingStop   = "typing_stop"
	EventAddReaction  = "add_reaction"
	EventMarkRead     = "mark_read"
	EventUpdateStatus = "update_status"
)

// Outbound events.
const (
	EventNewMessage        = "new_message"
	EventMessageUpdated    = "message_updated"
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventUserTyping        = "user_typing"
	EventUserStatusUpdated = "user_status_updated"
	EventMessageRead       = "message_read"
	EventMessagePinned     = "message_pinned"
	EventMessageUnpinned   = "message_unpinned"
	EventJoinedRoom        = "joined_room"
	EventLeftRoom          = "left_room"
	EventError             = "error"
)

// ClientMessage is the inbound envelope. Data is decoded according to Event.
type ClientMessage struct {
	Id    int             `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ServerMessage struct {
	Id        int       `json:"id,omitempty"`
	Event     string    `json:"event"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomPayload struct {
	RoomId int64 `json:"room_id"`
}

type FilePayload struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	Url          string `json:"url"`
	ThumbnailUrl string `json:"thumbnail_url,omitempty"`
}

type SendMessagePayload struct {
	RoomId    int64             `json:"room_id"`
	Content   *string           `json:"content,omitempty"`
	Type      types.MessageType `json:"type,omitempty"`
	ReplyToId *int64            `json:"reply_to_id,omitempty"`
	Files     []FilePayload     `json:"files,omitempty"`
}

type ReactionPayload struct {
	MessageId int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// MarkReadPayload accepts a single message id or a batch.
type MarkReadPayload struct {
	MessageId  int64   `json:"message_id,omitempty"`
	MessageIds []int64 `json:"message_ids,omitempty"`
}

func (p MarkReadPayload) ids() []int64 {
	ids := make([]int64, 0, len(p.MessageIds)+1)
	if p.MessageId != 0 {
		ids = append(ids, p.MessageId)
	}
	return append(ids, p.MessageIds...)
}

type StatusPayload struct {
	Status types.Status `json:"status"`
}

type RoomUserPayload struct {
	RoomId int64      `json:"room_id"`
	User   types.User `json:"user"`
}

type TypingPayload struct {
	RoomId   int64      `json:"room_id"`
	User     types.User `json:"user"`
	IsTyping bool       `json:"is_typing"`
}

type StatusUpdatedPayload struct {
	UserId int64        `json:"user_id"`
	Status types.Status `json:"status"`
	User   types.User   `json:"user"`
}

type UnpinnedPayload struct {
	RoomId    int64 `json:"room_id"`
	MessageId int64 `json:"message_id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func NewServerMessage(event string, data any) *ServerMessage {
	return &ServerMessage{
		Event:     event,
		Data:      data,
		Timestamp: Now(),
	}
}

func Ack(id int, event string, data any) *ServerMessage {
	msg := NewServerMessage(event, data)
	msg.Id = id
	return msg
}

// ErrorMessage builds the error event sent to the originating connection.
// Errors outside the domain taxonomy are reported generically.
func ErrorMessage(id int, err error) *ServerMessage {
	code := types.Code(err)
	text := err.Error()
	if code == "internal_error" {
		text = "internal server error"
	}

	msg := NewServerMessage(EventError, ErrorPayload{Message: text, Code: code})
	msg.Id = id
	return msg
}

// decodePayload strictly decodes an event payload into v.
func decodePayload(event string, raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return types.Validationf("%s: missing data", event)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return types.Validationf("%s: malformed data: %v", event, err)
	}
	if dec.More() {
		return types.Validationf("%s: unexpected trailing data", event)
	}

	return nil
}

func parseClientMessage(raw []byte) (*ClientMessage, error) {
	var msg ClientMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&msg); err != nil {
		return nil, types.Validationf("invalid message format")
	}
	if msg.Event == "" {
		return &msg, types.Validationf("missing event")
	}
	return &msg, nil
}

var errInternal = errors.New("internal error")

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/npezzotti/go-chatroom-realtime/internal/database"
	"github.com/npezzotti/go-chatroom-realtime/internal/stats"
	"github.com/npezzotti/go-chatroom-realtime/internal/types"
)

const (
	MaxContentLength = 4000
	MaxAttachments   = 10
	MaxReadBatch     = 100
	maxEmojiLength   = 32

	touchRoomTimeout = 5 * time.Second
)

// Pipeline validates, persists and then broadcasts message mutations. A
// mutation that fails to persist is never broadcast.
type Pipeline struct {
	db     database.GoChatRepository
	oracle *MembershipOracle
	fanout *Fanout
	stats  stats.StatsProvider
	log    *log.Logger

	// background bookkeeping writes
	bg sync.WaitGroup
}

func NewPipeline(db database.GoChatRepository, oracle *MembershipOracle, fanout *Fanout, su stats.StatsProvider, logger *log.Logger) *Pipeline {
	return &Pipeline{
		db:     db,
		oracle: oracle,
		fanout: fanout,
		stats:  su,
		log:    logger,
	}
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return types.Validationf("content cannot be empty")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return types.Validationf("content exceeds %d characters", MaxContentLength)
	}
	return nil
}

func (p SendMessagePayload) validate() error {
	if p.RoomId <= 0 {
		return types.Validationf("room_id is required")
	}
	if !p.Type.Valid() {
		return types.Validationf("invalid message type %q", p.Type)
	}
	if len(p.Files) > MaxAttachments {
		return types.Validationf("at most %d attachments are allowed", MaxAttachments)
	}

	switch {
	case p.Content != nil:
		if err := validateContent(*p.Content); err != nil {
			return err
		}
	case p.Type == types.MessageTypeText:
		return types.Validationf("content is required for text messages")
	case len(p.Files) == 0:
		return types.Validationf("message must have content or attachments")
	}

	for _, f := range p.Files {
		if f.Filename == "" || f.Url == "" {
			return types.Validationf("attachments require a filename and url")
		}
	}

	return nil
}

// SendMessage persists a new message from sender and broadcasts it to the
// room.
func (p *Pipeline) SendMessage(ctx context.Context, sender types.User, params SendMessagePayload) (types.Message, error) {
	if params.Type == "" {
		params.Type = types.MessageTypeText
	}
	if err := params.validate(); err != nil {
		return types.Message{}, err
	}

	if _, err := p.oracle.RequireMember(ctx, sender.Id, params.RoomId); err != nil {
		return types.Message{}, err
	}

	var reply *types.ReplyContext
	if params.ReplyToId != nil {
		orig, err := p.db.GetMessage(ctx, *params.ReplyToId)
		if errors.Is(err, database.ErrNotFound) || (err == nil && orig.RoomId != params.RoomId) {
			return types.Message{}, types.Validationf("reply_to_id %d is not a message in room %d", *params.ReplyToId, params.RoomId)
		}
		if err != nil {
			return types.Message{}, types.Persistence(err)
		}
		reply = orig.ToReplyContext()
	}

	files := make([]database.CreateFileParams, 0, len(params.Files))
	for _, f := range params.Files {
		files = append(files, database.CreateFileParams{
			Filename:     f.Filename,
			OriginalName: f.OriginalName,
			MimeType:     f.MimeType,
			Size:         f.Size,
			Url:          f.Url,
			ThumbnailUrl: f.ThumbnailUrl,
		})
	}

	created, err := p.db.CreateMessage(ctx, database.CreateMessageParams{
		RoomId:    params.RoomId,
		SenderId:  sender.Id,
		Content:   params.Content,
		Type:      string(params.Type),
		ReplyToId: params.ReplyToId,
		Files:     files,
		CreatedAt: Now(),
	})
	if err != nil {
		return types.Message{}, types.Persistence(err)
	}

	msg := created.ToMessage()
	msg.ReplyTo = reply

	p.fanout.BroadcastToRoom(params.RoomId, NewServerMessage(EventNewMessage, msg), "")
	p.stats.Incr(stats.MetricMessagesSent)

	p.touchRoom(params.RoomId, msg.CreatedAt)

	return msg, nil
}

func (p *Pipeline) touchRoom(roomId int64, at time.Time) {
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), touchRoomTimeout)
		defer cancel()

		if err := p.db.TouchRoom(ctx, roomId, at); err != nil {
			p.log.Printf("touch room %d: %v", roomId, err)
		}
	}()
}

// Wait blocks until background bookkeeping writes have finished.
func (p *Pipeline) Wait() {
	p.bg.Wait()
}

// Hydrate loads the reply context and reactions of a stored message.
func (p *Pipeline) Hydrate(ctx context.Context, m database.Message) (types.Message, error) {
	msg := m.ToMessage()

	if m.ReplyToId != nil {
		orig, err := p.db.GetMessage(ctx, *m.ReplyToId)
		switch {
		case err == nil:
			msg.ReplyTo = orig.ToReplyContext()
		case !errors.Is(err, database.ErrNotFound):
			return types.Message{}, types.Persistence(err)
		}
	}

	reactions, err := p.db.ListReactions(ctx, m.Id)
	if err != nil {
		return types.Message{}, types.Persistence(err)
	}
	for _, r := range reactions {
		msg.Reactions = append(msg.Reactions, r.ToReaction())
	}

	return msg, nil
}

func (p *Pipeline) getMessage(ctx context.Context, messageId int64) (database.Message, error) {
	m, err := p.db.GetMessage(ctx, messageId)
	if err != nil {
		return database.Message{}, storeError(err, fmt.Sprintf("message %d", messageId))
	}
	return m, nil
}

// EditMessage replaces the content of a message. Only the sender may edit,
// and deleted messages cannot be edited.
func (p *Pipeline) EditMessage(ctx context.Context, user types.User, messageId int64, content string) (types.Message, error) {
	if err := validateContent(content); err != nil {
		return types.Message{}, err
	}

	orig, err := p.getMessage(ctx, messageId)
	if err != nil {
		return types.Message{}, err
	}
	if orig.SenderId != user.Id {
		return types.Message{}, fmt.Errorf("%w: only the sender can edit a message", types.ErrAccessDenied)
	}
	if orig.IsDeleted {
		return types.Message{}, types.Validationf("cannot edit a deleted message")
	}
	if _, err := p.oracle.RequireMember(ctx, user.Id, orig.RoomId); err != nil {
		return types.Message{}, err
	}

	updated, err := p.db.UpdateMessageContent(ctx, messageId, content, time.Now())
	if err != nil {
		return types.Message{}, storeError(err, fmt.Sprintf("message %d", messageId))
	}

	msg, err := p.Hydrate(ctx, updated)
	if err != nil {
		return types.Message{}, err
	}

	p.fanout.BroadcastToRoom(msg.RoomId, NewServerMessage(EventMessageUpdated, msg), "")
	return msg, nil
}

// DeleteMessage soft deletes a message. The sender or a moderating member
// may delete; deleting an already deleted message changes nothing and is
// not broadcast.
func (p *Pipeline) DeleteMessage(ctx context.Context, user types.User, messageId int64) (types.Message, error) {
	orig, err := p.getMessage(ctx, messageId)
	if err != nil {
		return types.Message{}, err
	}

	role, err := p.oracle.RequireMember(ctx, user.Id, orig.RoomId)
	if err != nil {
		return types.Message{}, err
	}
	if orig.SenderId != user.Id && !role.CanModerate() {
		return types.Message{}, fmt.Errorf("%w: %s cannot delete other members' messages", types.ErrAccessDenied, role)
	}

	if orig.IsDeleted {
		return p.Hydrate(ctx, orig)
	}

	deleted, err := p.db.SoftDeleteMessage(ctx, messageId, time.Now())
	if err != nil {
		return types.Message{}, storeError(err, fmt.Sprintf("message %d", messageId))
	}

	msg, err := p.Hydrate(ctx, deleted)
	if err != nil {
		return types.Message{}, err
	}

	p.fanout.BroadcastToRoom(msg.RoomId, NewServerMessage(EventMessageUpdated, msg), "")
	return msg, nil
}

// ToggleReaction adds the user's emoji reaction to a message or removes it
// if already present, then broadcasts the full reaction list.
func (p *Pipeline) ToggleReaction(ctx context.Context, user types.User, messageId int64, emoji string) (types.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiLength {
		return types.Message{}, types.Validationf("invalid emoji")
	}

	orig, err := p.getMessage(ctx, messageId)
	if err != nil {
		return types.Message{}, err
	}
	if _, err := p.oracle.RequireMember(ctx, user.Id, orig.RoomId); err != nil {
		return types.Message{}, err
	}
	if orig.IsDeleted {
		return types.Message{}, types.Validationf("cannot react to a deleted message")
	}

	existing, err := p.db.GetReaction(ctx, messageId, user.Id, emoji)
	switch {
	case err == nil:
		if err := p.db.DeleteReaction(ctx, existing.Id); err != nil {
			return types.Message{}, types.Persistence(err)
		}
	case errors.Is(err, database.ErrNotFound):
		// a concurrent toggle may have inserted the same row
		if _, err := p.db.CreateReaction(ctx, messageId, user.Id, emoji); err != nil && !errors.Is(err, database.ErrConflict) {
			return types.Message{}, types.Persistence(err)
		}
	default:
		return types.Message{}, types.Persistence(err)
	}

	msg, err := p.Hydrate(ctx, orig)
	if err != nil {
		return types.Message{}, err
	}

	p.fanout.BroadcastToRoom(msg.RoomId, NewServerMessage(EventMessageUpdated, msg), "")
	return msg, nil
}

// MarkRead records read receipts for the given messages. Every message is
// checked before any receipt is written. Receipts never move backwards in
// time, and receipts on deleted messages are not broadcast.
func (p *Pipeline) MarkRead(ctx context.Context, user types.User, messageIds []int64) ([]types.ReadReceipt, error) {
	if len(messageIds) == 0 {
		return nil, types.Validationf("at least one message id is required")
	}
	if len(messageIds) > MaxReadBatch {
		return nil, types.Validationf("at most %d messages may be marked read at once", MaxReadBatch)
	}

	seen := make(map[int64]struct{}, len(messageIds))
	msgs := make([]database.Message, 0, len(messageIds))
	for _, id := range messageIds {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		m, err := p.getMessage(ctx, id)
		if err != nil {
			return nil, err
		}
		if _, err := p.oracle.RequireMember(ctx, user.Id, m.RoomId); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}

	now := Now()
	receipts := make([]types.ReadReceipt, 0, len(msgs))
	for _, m := range msgs {
		rr, err := p.db.UpsertReadReceipt(ctx, m.Id, user.Id, now)
		if err != nil {
			return receipts, types.Persistence(err)
		}

		receipt := rr.ToReadReceipt()
		receipts = append(receipts, receipt)

		if !m.IsDeleted {
			p.fanout.BroadcastToRoom(m.RoomId, NewServerMessage(EventMessageRead, receipt), "")
		}
	}

	return receipts, nil
}

func (p *Pipeline) requireModerator(ctx context.Context, userId, roomId int64) error {
	role, err := p.oracle.RequireMember(ctx, userId, roomId)
	if err != nil {
		return err
	}
	if !role.CanModerate() {
		return fmt.Errorf("%w: %s cannot manage pinned messages", types.ErrAccessDenied, role)
	}
	return nil
}

// PinMessage pins a message of roomId.
func (p *Pipeline) PinMessage(ctx context.Context, user types.User, roomId, messageId int64) (types.PinnedMessage, error) {
	if err := p.requireModerator(ctx, user.Id, roomId); err != nil {
		return types.PinnedMessage{}, err
	}

	orig, err := p.getMessage(ctx, messageId)
	if err != nil {
		return types.PinnedMessage{}, err
	}
	if orig.RoomId != roomId {
		return types.PinnedMessage{}, fmt.Errorf("%w: message %d in room %d", types.ErrNotFound, messageId, roomId)
	}
	if orig.IsDeleted {
		return types.PinnedMessage{}, types.Validationf("cannot pin a deleted message")
	}

	pin, err := p.db.PinMessage(ctx, roomId, messageId, user.Id)
	if err != nil {
		if errors.Is(err, database.ErrConflict) {
			return types.PinnedMessage{}, types.Validationf("message %d is already pinned", messageId)
		}
		return types.PinnedMessage{}, types.Persistence(err)
	}

	msg, err := p.Hydrate(ctx, pin.Message)
	if err != nil {
		return types.PinnedMessage{}, err
	}

	pinned := types.PinnedMessage{
		RoomId:   roomId,
		Message:  msg,
		PinnedBy: pin.PinnedBy,
		PinnedAt: pin.PinnedAt,
	}

	p.fanout.BroadcastToRoom(roomId, NewServerMessage(EventMessagePinned, pinned), "")
	return pinned, nil
}

func (p *Pipeline) UnpinMessage(ctx context.Context, user types.User, roomId, messageId int64) error {
	if err := p.requireModerator(ctx, user.Id, roomId); err != nil {
		return err
	}

	if err := p.db.UnpinMessage(ctx, roomId, messageId); err != nil {
		return storeError(err, fmt.Sprintf("pinned message %d", messageId))
	}

	p.fanout.BroadcastToRoom(roomId, NewServerMessage(EventMessageUnpinned, UnpinnedPayload{
		RoomId:    roomId,
		MessageId: messageId,
	}), "")
	return nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-chatroom-realtime/internal/cache"
	"github.com/npezzotti/go-chatroom-realtime/internal/database"
	"github.com/npezzotti/go-chatroom-realtime/internal/stats"
	"github.com/npezzotti/go-chatroom-realtime/internal/types"
)

const (
	eventTimeout      = 10 * time.Second
	disconnectTimeout = 10 * time.Second
)

type Options struct {
	MembershipCacheTTL time.Duration
	// PresenceCache is optional.
	PresenceCache cache.PresenceCache
	// Relay is optional; without it broadcasts stay in this process.
	Relay Relay
}

type ChatServer struct {
	log      *log.Logger
	db       database.GoChatRepository
	stats    stats.StatsProvider
	relay    Relay
	registry *Registry
	oracle   *MembershipOracle
	fanout   *Fanout
	presence *PresenceTracker
	pipeline *Pipeline
}

func NewChatServer(logger *log.Logger, db database.GoChatRepository, su stats.StatsProvider, opts Options) (*ChatServer, error) {
	if opts.MembershipCacheTTL <= 0 {
		opts.MembershipCacheTTL = 5 * time.Second
	}

	registry := NewRegistry()
	oracle := NewMembershipOracle(db, opts.MembershipCacheTTL, logger)
	fanout := NewFanout(registry, oracle, opts.Relay, su, logger)

	cs := &ChatServer{
		log:      logger,
		db:       db,
		stats:    su,
		relay:    opts.Relay,
		registry: registry,
		oracle:   oracle,
		fanout:   fanout,
		presence: NewPresenceTracker(db, opts.PresenceCache, registry, fanout, logger),
		pipeline: NewPipeline(db, oracle, fanout, su, logger),
	}

	cs.stats.RegisterMetric(stats.MetricActiveConnections)
	cs.stats.RegisterMetric(stats.MetricOnlineUsers)
	cs.stats.RegisterMetric(stats.MetricMessagesSent)
	cs.stats.RegisterMetric(stats.MetricDroppedDeliveries)

	if cs.relay != nil {
		if err := cs.relay.Subscribe(cs.fanout.handleRelayed, cs.fanout.handleRelayedUser); err != nil {
			return nil, fmt.Errorf("subscribe relay: %w", err)
		}
	}

	return cs, nil
}

func (cs *ChatServer) Registry() *Registry { return cs.registry }
func (cs *ChatServer) Oracle() *MembershipOracle { return cs.oracle }
func (cs *ChatServer) Fanout() *Fanout { return cs.fanout }
func (cs *ChatServer) Presence() *PresenceTracker { return cs.presence }
func (cs *ChatServer) Pipeline() *Pipeline { return cs.pipeline }

// Authenticate resolves a verified user id to an account. Unknown and
// blocked accounts are rejected.
func (cs *ChatServer) Authenticate(ctx context.Context, userId int64) (types.User, error) {
	u, err := cs.db.GetAccountById(ctx, userId)
	if errors.Is(err, database.ErrNotFound) {
		return types.User{}, fmt.Errorf("%w: unknown user", types.ErrAuthentication)
	}
	if err != nil {
		return types.User{}, types.Persistence(err)
	}
	if u.IsBlocked {
		return types.User{}, fmt.Errorf("%w: account is blocked", types.ErrAuthentication)
	}

	return u.ToUser(), nil
}

// Connect registers a live connection for user, updates presence and
// subscribes it to every room the user is an active member of.
func (cs *ChatServer) Connect(ctx context.Context, user types.User, sink Sink) (*Connection, error) {
	conn := NewConnection(uuid.NewString(), user, sink)

	first, err := cs.registry.Register(conn)
	if err != nil {
		return nil, err
	}
	cs.stats.Incr(stats.MetricActiveConnections)
	cs.log.Printf("user %q connected (connection %s)", user.Username, conn.Id)

	if first {
		cs.stats.Incr(stats.MetricOnlineUsers)
		cs.presence.Connected(ctx, user)
	}

	roomIds, err := cs.db.ListActiveRoomIds(ctx, user.Id)
	if err != nil {
		cs.log.Printf("list rooms for user %d: %v", user.Id, err)
		return conn, nil
	}
	for _, roomId := range roomIds {
		if _, err := cs.registry.Subscribe(conn.Id, roomId); err != nil {
			cs.log.Printf("auto-subscribe %s to room %d: %v", conn.Id, roomId, err)
		}
	}

	return conn, nil
}

// Disconnect deregisters the connection and, for the user's last
// connection, marks the user offline. It runs independently of any
// in-flight operation started by the connection.
func (cs *ChatServer) Disconnect(conn *Connection) {
	_, last, ok := cs.registry.Deregister(conn.Id)
	if !ok {
		return
	}
	conn.sink.Close()
	cs.stats.Decr(stats.MetricActiveConnections)
	cs.log.Printf("user %q disconnected (connection %s)", conn.User.Username, conn.Id)

	if last {
		cs.stats.Decr(stats.MetricOnlineUsers)

		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		cs.presence.Disconnected(ctx, conn.User)
	}
}

// HandleMessage processes one raw inbound frame from conn. Errors and
// panics are reported to conn only.
func (cs *ChatServer) HandleMessage(conn *Connection, raw []byte) {
	var msgId int
	defer func() {
		if r := recover(); r != nil {
			cs.log.Printf("panic handling message from connection %s: %v", conn.Id, r)
			conn.Deliver(ErrorMessage(msgId, errInternal))
		}
	}()

	msg, err := parseClientMessage(raw)
	if msg != nil {
		msgId = msg.Id
	}
	if err != nil {
		conn.Deliver(ErrorMessage(msgId, err))
		return
	}

	// detached from the connection so a disconnect does not cancel writes
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	if err := cs.dispatch(ctx, conn, msg); err != nil {
		if types.Code(err) == "internal_error" || errors.Is(err, types.ErrPersistence) {
			cs.log.Printf("%s from connection %s: %v", msg.Event, conn.Id, err)
		}
		conn.Deliver(ErrorMessage(msg.Id, err))
	}
}

func (cs *ChatServer) dispatch(ctx context.Context, conn *Connection, msg *ClientMessage) error {
	switch msg.Event {
	case EventJoinRoom:
		var p RoomPayload
		if err := decodeRoomPayload(msg, &p); err != nil {
			return err
		}
		if err := cs.fanout.JoinRoom(ctx, conn, p.RoomId); err != nil {
			return err
		}
		conn.Deliver(Ack(msg.Id, EventJoinedRoom, p))
	case EventLeaveRoom:
		var p RoomPayload
		if err := decodeRoomPayload(msg, &p); err != nil {
			return err
		}
		if err := cs.fanout.LeaveRoom(conn, p.RoomId); err != nil {
			return err
		}
		conn.Deliver(Ack(msg.Id, EventLeftRoom, p))
	case EventSendMessage:
		var p SendMessagePayload
		if err := decodePayload(msg.Event, msg.Data, &p); err != nil {
			return err
		}
		_, err := cs.pipeline.SendMessage(ctx, conn.User, p)
		return err
	case EventTypingStart, EventTypingStop:
		var p RoomPayload
		if err := decodeRoomPayload(msg, &p); err != nil {
			return err
		}
		return cs.fanout.Typing(conn, p.RoomId, msg.Event == EventTypingStart)
	case EventAddReaction:
		var p ReactionPayload
		if err := decodePayload(msg.Event, msg.Data, &p); err != nil {
			return err
		}
		if p.MessageId <= 0 {
			return types.Validationf("message_id is required")
		}
		_, err := cs.pipeline.ToggleReaction(ctx, conn.User, p.MessageId, p.Emoji)
		return err
	case EventMarkRead:
		var p MarkReadPayload
		if err := decodePayload(msg.Event, msg.Data, &p); err != nil {
			return err
		}
		_, err := cs.pipeline.MarkRead(ctx, conn.User, p.ids())
		return err
	case EventUpdateStatus:
		var p StatusPayload
		if err := decodePayload(msg.Event, msg.Data, &p); err != nil {
			return err
		}
		return cs.presence.UpdateStatus(ctx, conn.User, p.Status)
	default:
		return types.Validationf("unknown event %q", msg.Event)
	}

	return nil
}

func decodeRoomPayload(msg *ClientMessage, p *RoomPayload) error {
	if err := decodePayload(msg.Event, msg.Data, p); err != nil {
		return err
	}
	if p.RoomId <= 0 {
		return types.Validationf("%s: room_id is required", msg.Event)
	}
	return nil
}

// Shutdown closes every live connection and the relay, then waits for
// background writes to finish or ctx to expire.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	conns := cs.registry.Close()
	cs.log.Printf("closed %d connections", len(conns))

	if cs.relay != nil {
		cs.relay.Close()
	}

	done := make(chan struct{})
	go func() {
		cs.pipeline.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

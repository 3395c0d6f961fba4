package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/npezzotti/go-chatroom-realtime/internal/stats"
	"github.com/npezzotti/go-chatroom-realtime/internal/types"
)

// Relay carries broadcasts to other server processes. Room broadcasts are
// published per room; user broadcasts are published once per user.
type Relay interface {
	Publish(roomId int64, payload []byte) error
	PublishUser(userId int64, payload []byte) error
	Subscribe(onRoom func(roomId int64, payload []byte), onUser func(userId int64, payload []byte)) error
	Close()
}

// relayedMessage mirrors ServerMessage with the payload left encoded.
type relayedMessage struct {
	Id        int             `json:"id,omitempty"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// userBroadcast is the relayed form of BroadcastToUserRooms.
type userBroadcast struct {
	RoomIds []int64         `json:"room_ids"`
	Message json.RawMessage `json:"message"`
}

type Fanout struct {
	registry *Registry
	oracle   *MembershipOracle
	relay    Relay
	stats    stats.StatsProvider
	log      *log.Logger
}

func NewFanout(registry *Registry, oracle *MembershipOracle, relay Relay, su stats.StatsProvider, logger *log.Logger) *Fanout {
	return &Fanout{
		registry: registry,
		oracle:   oracle,
		relay:    relay,
		stats:    su,
		log:      logger,
	}
}

// BroadcastToRoom delivers msg to every connection subscribed to roomId
// except excludeConnId, and forwards it to the relay. It returns the number
// of local deliveries.
func (f *Fanout) BroadcastToRoom(roomId int64, msg *ServerMessage, excludeConnId string) int {
	n := f.deliverLocal(roomId, msg, excludeConnId)

	if f.relay != nil {
		payload, err := json.Marshal(msg)
		if err != nil {
			f.log.Printf("relay: encode %s: %v", msg.Event, err)
			return n
		}
		if err := f.relay.Publish(roomId, payload); err != nil {
			f.log.Printf("relay: %v", err)
		}
	}

	return n
}

func (f *Fanout) deliverLocal(roomId int64, msg *ServerMessage, excludeConnId string) int {
	n := 0
	for _, conn := range f.registry.ConnectionsFor(roomId) {
		if conn.Id == excludeConnId {
			continue
		}
		if f.deliver(conn, msg) {
			n++
		}
	}
	return n
}

func (f *Fanout) deliver(conn *Connection, msg *ServerMessage) bool {
	if !conn.Deliver(msg) {
		f.stats.Incr(stats.MetricDroppedDeliveries)
		f.log.Printf("dropped %s for connection %s (user %d)", msg.Event, conn.Id, conn.User.Id)
		return false
	}
	return true
}

// BroadcastToUserRooms delivers msg once to every connection subscribed to
// any of roomIds and to all of userId's own connections. Other processes
// receive it once and apply the same rule.
func (f *Fanout) BroadcastToUserRooms(userId int64, roomIds []int64, msg *ServerMessage) int {
	n := f.deliverToUserRooms(userId, roomIds, msg)

	if f.relay != nil {
		encoded, err := json.Marshal(msg)
		if err != nil {
			f.log.Printf("relay: encode %s: %v", msg.Event, err)
			return n
		}
		payload, err := json.Marshal(userBroadcast{RoomIds: roomIds, Message: encoded})
		if err != nil {
			f.log.Printf("relay: encode %s: %v", msg.Event, err)
			return n
		}
		if err := f.relay.PublishUser(userId, payload); err != nil {
			f.log.Printf("relay: %v", err)
		}
	}

	return n
}

func (f *Fanout) deliverToUserRooms(userId int64, roomIds []int64, msg *ServerMessage) int {
	seen := make(map[string]struct{})
	n := 0

	send := func(conns []*Connection) {
		for _, conn := range conns {
			if _, ok := seen[conn.Id]; ok {
				continue
			}
			seen[conn.Id] = struct{}{}
			if f.deliver(conn, msg) {
				n++
			}
		}
	}

	for _, roomId := range roomIds {
		send(f.registry.ConnectionsFor(roomId))
	}
	send(f.registry.UserConnections(userId))

	return n
}

// handleRelayed delivers a room broadcast published by another process.
func (f *Fanout) handleRelayed(roomId int64, payload []byte) {
	var rm relayedMessage
	if err := json.Unmarshal(payload, &rm); err != nil {
		f.log.Printf("relay: decode message for room %d: %v", roomId, err)
		return
	}

	f.deliverLocal(roomId, rm.serverMessage(), "")
}

// handleRelayedUser delivers a user broadcast published by another process.
func (f *Fanout) handleRelayedUser(userId int64, payload []byte) {
	var ub userBroadcast
	var rm relayedMessage
	if err := json.Unmarshal(payload, &ub); err != nil {
		f.log.Printf("relay: decode message for user %d: %v", userId, err)
		return
	}
	if err := json.Unmarshal(ub.Message, &rm); err != nil {
		f.log.Printf("relay: decode message for user %d: %v", userId, err)
		return
	}

	f.deliverToUserRooms(userId, ub.RoomIds, rm.serverMessage())
}

func (rm relayedMessage) serverMessage() *ServerMessage {
	return &ServerMessage{
		Id:        rm.Id,
		Event:     rm.Event,
		Data:      rm.Data,
		Timestamp: rm.Timestamp,
	}
}

// JoinRoom subscribes conn to roomId after checking membership. Nothing is
// subscribed or broadcast when the user is not an active member.
func (f *Fanout) JoinRoom(ctx context.Context, conn *Connection, roomId int64) error {
	if _, err := f.oracle.RequireMember(ctx, conn.User.Id, roomId); err != nil {
		return err
	}

	added, err := f.registry.Subscribe(conn.Id, roomId)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrNotFound, err)
	}

	if added {
		f.BroadcastToRoom(roomId, NewServerMessage(EventUserJoined, RoomUserPayload{
			RoomId: roomId,
			User:   conn.User,
		}), conn.Id)
	}

	return nil
}

// LeaveRoom unsubscribes conn from roomId. No membership check is made.
func (f *Fanout) LeaveRoom(conn *Connection, roomId int64) error {
	removed, err := f.registry.Unsubscribe(conn.Id, roomId)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrNotFound, err)
	}

	if removed {
		f.BroadcastToRoom(roomId, NewServerMessage(EventUserLeft, RoomUserPayload{
			RoomId: roomId,
			User:   conn.User,
		}), conn.Id)
	}

	return nil
}

// Typing relays a typing indicator. It only requires the connection to be
// subscribed; membership is not re-checked against the store.
func (f *Fanout) Typing(conn *Connection, roomId int64, isTyping bool) error {
	if !f.registry.IsSubscribed(conn.Id, roomId) {
		return fmt.Errorf("%w: not subscribed to room %d", types.ErrAccessDenied, roomId)
	}

	f.BroadcastToRoom(roomId, NewServerMessage(EventUserTyping, TypingPayload{
		RoomId:   roomId,
		User:     conn.User,
		IsTyping: isTyping,
	}), conn.Id)

	return nil
}

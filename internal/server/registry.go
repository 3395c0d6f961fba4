package server

import (
	"errors"
	"sync"
	"time"

	"github.com/npezzotti/go-chatroom-realtime/internal/types"
)

var (
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrConnectionNotFound  = errors.New("connection not registered")
	ErrRegistryClosed      = errors.New("registry closed")
)

// Sink is the outbound side of a live connection. Deliver must not block;
// it reports false when the message could not be queued.
type Sink interface {
	Deliver(msg *ServerMessage) bool
	Close()
}

// Connection is one authenticated live session. Its subscription set is
// owned by the Registry that holds it.
type Connection struct {
	Id        string
	User      types.User
	CreatedAt time.Time

	sink  Sink
	rooms map[int64]struct{}
}

func NewConnection(id string, user types.User, sink Sink) *Connection {
	return &Connection{
		Id:        id,
		User:      user,
		CreatedAt: Now(),
		sink:      sink,
		rooms:     make(map[int64]struct{}),
	}
}

func (c *Connection) Deliver(msg *ServerMessage) bool {
	return c.sink.Deliver(msg)
}

// Registry tracks live connections and the rooms each one listens to. A
// single lock guards the connection, room and user indices so fanout reads
// never observe a partially applied subscribe.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	rooms  map[int64]map[string]*Connection
	users  map[int64]map[string]*Connection
	closed bool
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
		rooms: make(map[int64]map[string]*Connection),
		users: make(map[int64]map[string]*Connection),
	}
}

// Register adds conn and reports whether it is the first live connection
// for its user.
func (r *Registry) Register(conn *Connection) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrRegistryClosed
	}
	if _, ok := r.conns[conn.Id]; ok {
		return false, ErrDuplicateConnection
	}

	if conn.rooms == nil {
		conn.rooms = make(map[int64]struct{})
	}
	r.conns[conn.Id] = conn

	userConns, ok := r.users[conn.User.Id]
	if !ok {
		userConns = make(map[string]*Connection)
		r.users[conn.User.Id] = userConns
	}
	userConns[conn.Id] = conn

	return len(userConns) == 1, nil
}

// Subscribe adds roomId to the connection's subscriptions. It reports whether
// the subscription was newly added.
func (r *Registry) Subscribe(connId string, roomId int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connId]
	if !ok {
		return false, ErrConnectionNotFound
	}
	if _, ok := conn.rooms[roomId]; ok {
		return false, nil
	}

	conn.rooms[roomId] = struct{}{}
	roomConns, ok := r.rooms[roomId]
	if !ok {
		roomConns = make(map[string]*Connection)
		r.rooms[roomId] = roomConns
	}
	roomConns[connId] = conn

	return true, nil
}

// Unsubscribe removes roomId from the connection's subscriptions. It reports
// whether a subscription was removed.
func (r *Registry) Unsubscribe(connId string, roomId int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connId]
	if !ok {
		return false, ErrConnectionNotFound
	}
	if _, ok := conn.rooms[roomId]; !ok {
		return false, nil
	}

	r.unsubscribeLocked(conn, roomId)
	return true, nil
}

func (r *Registry) unsubscribeLocked(conn *Connection, roomId int64) {
	delete(conn.rooms, roomId)
	if roomConns, ok := r.rooms[roomId]; ok {
		delete(roomConns, conn.Id)
		if len(roomConns) == 0 {
			delete(r.rooms, roomId)
		}
	}
}

func (r *Registry) ConnectionsFor(roomId int64) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.rooms[roomId]))
	for _, c := range r.rooms[roomId] {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry) UserConnections(userId int64) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.users[userId]))
	for _, c := range r.users[userId] {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry) Get(connId string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connId]
	return c, ok
}

func (r *Registry) Rooms(connId string) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connId]
	if !ok {
		return nil
	}

	rooms := make([]int64, 0, len(conn.rooms))
	for id := range conn.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

func (r *Registry) IsSubscribed(connId string, roomId int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[roomId][connId]
	return ok
}

// Deregister removes the connection and all of its subscriptions. It
// reports whether it was the user's last live connection; a second call for
// the same id returns ok == false.
func (r *Registry) Deregister(connId string) (conn *Connection, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok = r.conns[connId]
	if !ok {
		return nil, false, false
	}

	for roomId := range conn.rooms {
		r.unsubscribeLocked(conn, roomId)
	}
	delete(r.conns, connId)

	userConns := r.users[conn.User.Id]
	delete(userConns, connId)
	if len(userConns) == 0 {
		delete(r.users, conn.User.Id)
		last = true
	}

	return conn, last, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) NumUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Close stops accepting registrations and closes every live connection's
// sink. Connections stay indexed until they deregister themselves.
func (r *Registry) Close() []*Connection {
	r.mu.Lock()
	r.closed = true
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.sink.Close()
	}
	return conns
}

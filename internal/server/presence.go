package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-chatroom-realtime/internal/cache"
	"github.com/npezzotti/go-chatroom-realtime/internal/database"
	"github.com/npezzotti/go-chatroom-realtime/internal/types"
)

type presenceState struct {
	status   types.Status
	lastSeen time.Time
	version  uint64
}

// PresenceTracker owns the live status of every user that has connected to
// this process. Store and cache writes are best effort: failures are logged
// and never block the notification.
type PresenceTracker struct {
	db       database.GoChatRepository
	cache    cache.PresenceCache
	registry *Registry
	fanout   *Fanout
	log      *log.Logger

	mu      sync.Mutex
	seq     uint64
	states  map[int64]*presenceState
	writers map[int64]*sync.Mutex
}

func NewPresenceTracker(db database.GoChatRepository, pc cache.PresenceCache, registry *Registry, fanout *Fanout, logger *log.Logger) *PresenceTracker {
	return &PresenceTracker{
		db:       db,
		cache:    pc,
		registry: registry,
		fanout:   fanout,
		log:      logger,
		states:   make(map[int64]*presenceState),
		writers:  make(map[int64]*sync.Mutex),
	}
}

// writer returns the lock that orders store writes and notifications for
// userId.
func (t *PresenceTracker) writer(userId int64) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.writers[userId]
	if !ok {
		w = &sync.Mutex{}
		t.writers[userId] = w
	}
	return w
}

// transition moves userId to status if allowed returns true, and reports
// the version assigned to the transition.
func (t *PresenceTracker) transition(userId int64, status types.Status, allowed func(st *presenceState, live int) bool) (uint64, time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.states[userId]
	if !allowed(st, len(t.registry.UserConnections(userId))) {
		return 0, time.Time{}, false
	}
	if st == nil {
		st = &presenceState{}
		t.states[userId] = st
	}

	t.seq++
	st.status = status
	st.version = t.seq
	st.lastSeen = Now()

	return st.version, st.lastSeen, true
}

func (t *PresenceTracker) isCurrent(userId int64, version uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[userId]
	return ok && st.version == version
}

// Connected marks the user online. It is a no-op when the user already has a
// non-offline status or no live connection remains.
func (t *PresenceTracker) Connected(ctx context.Context, user types.User) {
	version, at, ok := t.transition(user.Id, types.StatusOnline, func(st *presenceState, live int) bool {
		return live > 0 && (st == nil || st.status == types.StatusOffline)
	})
	if ok {
		t.publish(ctx, user, types.StatusOnline, at, version)
	}
}

// Disconnected marks the user offline once no live connection remains.
func (t *PresenceTracker) Disconnected(ctx context.Context, user types.User) {
	version, at, ok := t.transition(user.Id, types.StatusOffline, func(st *presenceState, live int) bool {
		return live == 0 && st != nil && st.status != types.StatusOffline
	})
	if ok {
		t.publish(ctx, user, types.StatusOffline, at, version)
	}
}

// UpdateStatus sets an explicit status for a user with at least one live
// connection.
func (t *PresenceTracker) UpdateStatus(ctx context.Context, user types.User, status types.Status) error {
	switch status {
	case types.StatusOnline, types.StatusAway, types.StatusBusy:
	default:
		return types.Validationf("invalid status %q", status)
	}

	version, at, ok := t.transition(user.Id, status, func(st *presenceState, live int) bool {
		return live > 0 && st != nil && st.status != types.StatusOffline
	})
	if !ok {
		return types.Validationf("user %d has no live connection", user.Id)
	}

	t.publish(ctx, user, status, at, version)
	return nil
}

// publish persists and announces one transition. Transitions for the same
// user are published one at a time, and a transition that has been
// superseded skips whatever it has not written yet.
func (t *PresenceTracker) publish(ctx context.Context, user types.User, status types.Status, at time.Time, version uint64) {
	w := t.writer(user.Id)
	w.Lock()
	defer w.Unlock()

	if !t.isCurrent(user.Id, version) {
		return
	}

	online := status != types.StatusOffline

	err := t.db.UpdatePresence(ctx, database.UpdatePresenceParams{
		UserId:   user.Id,
		Status:   string(status),
		IsOnline: online,
		LastSeen: at,
	})
	if err != nil {
		t.log.Printf("persist presence for user %d: %v", user.Id, err)
	}

	if t.cache != nil {
		if err := t.cache.SetStatus(ctx, user.Id, string(status)); err != nil {
			t.log.Printf("cache presence for user %d: %v", user.Id, err)
		}
	}

	// a newer transition owns the notification
	if !t.isCurrent(user.Id, version) {
		return
	}

	roomIds, err := t.db.ListActiveRoomIds(ctx, user.Id)
	if err != nil {
		t.log.Printf("list rooms for user %d: %v", user.Id, err)
	}

	user.Status = status
	user.IsOnline = online
	if !online {
		user.LastSeen = &at
	}

	t.fanout.BroadcastToUserRooms(user.Id, roomIds, NewServerMessage(EventUserStatusUpdated, StatusUpdatedPayload{
		UserId: user.Id,
		Status: status,
		User:   user,
	}))
}

// Status returns the user's presence. The live state is consulted first,
// then the cache, then the store. The result is advisory.
func (t *PresenceTracker) Status(ctx context.Context, userId int64) (types.Presence, error) {
	t.mu.Lock()
	st, ok := t.states[userId]
	var live presenceState
	if ok {
		live = *st
	}
	t.mu.Unlock()

	if ok && live.status != types.StatusOffline {
		return types.Presence{UserId: userId, Status: live.status, IsOnline: true}, nil
	}

	if t.cache != nil {
		status, err := t.cache.GetStatus(ctx, userId)
		switch {
		case err == nil:
			p := types.Presence{UserId: userId, Status: types.Status(status), IsOnline: types.Status(status) != types.StatusOffline}
			if ok {
				p.LastSeen = &live.lastSeen
			}
			return p, nil
		case !errors.Is(err, cache.ErrMiss):
			t.log.Printf("read cached presence for user %d: %v", userId, err)
		}
	}

	user, err := t.db.GetAccountById(ctx, userId)
	if err != nil {
		return types.Presence{}, storeError(err, "user")
	}

	return types.Presence{
		UserId:   userId,
		Status:   types.Status(user.Status),
		IsOnline: user.IsOnline,
		LastSeen: user.LastSeen,
	}, nil
}

// Online reports the number of users currently tracked as not offline.
func (t *PresenceTracker) Online() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, st := range t.states {
		if st.status != types.StatusOffline {
			n++
		}
	}
	return n
}

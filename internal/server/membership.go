package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/npezzotti/go-chatroom-realtime/internal/database"
	"github.com/npezzotti/go-chatroom-realtime/internal/types"
)

const membershipCacheSize = 10000

type Membership struct {
	Active bool
	Role   types.Role
}

type membershipKey struct {
	userId int64
	roomId int64
}

// MembershipOracle answers membership questions from the store through a
// short lived cache. Mutations routed through it invalidate the cache before
// returning, and the epoch keeps a lookup that raced with a mutation from
// caching what it read.
type MembershipOracle struct {
	db    database.GoChatRepository
	log   *log.Logger
	cache *expirable.LRU[membershipKey, Membership]

	mu    sync.Mutex
	epoch uint64
}

func NewMembershipOracle(db database.GoChatRepository, ttl time.Duration, logger *log.Logger) *MembershipOracle {
	return &MembershipOracle{
		db:    db,
		log:   logger,
		cache: expirable.NewLRU[membershipKey, Membership](membershipCacheSize, nil, ttl),
	}
}

// IsActiveMember returns the user's membership in the room. A user with no
// membership row is reported inactive; a missing room is ErrNotFound.
func (o *MembershipOracle) IsActiveMember(ctx context.Context, userId, roomId int64) (Membership, error) {
	key := membershipKey{userId: userId, roomId: roomId}
	if m, ok := o.cache.Get(key); ok {
		return m, nil
	}

	o.mu.Lock()
	epoch := o.epoch
	o.mu.Unlock()

	var m Membership
	member, err := o.db.GetMembership(ctx, roomId, userId)
	switch {
	case errors.Is(err, database.ErrNotFound):
		if _, err := o.db.GetRoomById(ctx, roomId); err != nil {
			return Membership{}, storeError(err, "room")
		}
	case err != nil:
		return Membership{}, types.Persistence(err)
	default:
		m = Membership{Active: member.IsActive, Role: types.Role(member.Role)}
	}

	o.mu.Lock()
	if o.epoch == epoch {
		o.cache.Add(key, m)
	}
	o.mu.Unlock()

	return m, nil
}

// RequireMember returns the user's role or ErrAccessDenied when the user is
// not an active member.
func (o *MembershipOracle) RequireMember(ctx context.Context, userId, roomId int64) (types.Role, error) {
	m, err := o.IsActiveMember(ctx, userId, roomId)
	if err != nil {
		return "", err
	}
	if !m.Active {
		return "", fmt.Errorf("%w: not a member of room %d", types.ErrAccessDenied, roomId)
	}
	return m.Role, nil
}

func (o *MembershipOracle) Invalidate(userId, roomId int64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.epoch++
	o.cache.Remove(membershipKey{userId: userId, roomId: roomId})
}

// AddMember adds userId to the room, reactivating a previous membership.
func (o *MembershipOracle) AddMember(ctx context.Context, actorId, roomId, userId int64) (types.Member, error) {
	role, err := o.RequireMember(ctx, actorId, roomId)
	if err != nil {
		return types.Member{}, err
	}
	if !role.CanManageMembers() {
		return types.Member{}, fmt.Errorf("%w: %s cannot add members", types.ErrAccessDenied, role)
	}

	user, err := o.db.GetAccountById(ctx, userId)
	if err != nil {
		return types.Member{}, storeError(err, "user")
	}

	defer o.Invalidate(userId, roomId)
	member, err := o.db.UpsertMembership(ctx, roomId, userId, string(types.RoleMember))
	if err != nil {
		return types.Member{}, types.Persistence(err)
	}
	member.User = user

	return member.ToMember(), nil
}

// RemoveMember deactivates userId's membership. Members may remove
// themselves; removing others requires a managing role. The owner cannot
// leave. Open connections of the removed user are not unsubscribed.
func (o *MembershipOracle) RemoveMember(ctx context.Context, actorId, roomId, userId int64) error {
	target, err := o.RequireMember(ctx, userId, roomId)
	if err != nil {
		if errors.Is(err, types.ErrAccessDenied) {
			return fmt.Errorf("%w: user %d is not a member of room %d", types.ErrNotFound, userId, roomId)
		}
		return err
	}
	if target == types.RoleOwner {
		return types.Validationf("the room owner cannot leave the room")
	}

	if actorId != userId {
		role, err := o.RequireMember(ctx, actorId, roomId)
		if err != nil {
			return err
		}
		if !role.CanManageMembers() {
			return fmt.Errorf("%w: %s cannot remove members", types.ErrAccessDenied, role)
		}
	}

	defer o.Invalidate(userId, roomId)
	if err := o.db.DeactivateMembership(ctx, roomId, userId, time.Now()); err != nil {
		return storeError(err, "membership")
	}

	return nil
}

// ChangeRole sets a member's role. Ownership cannot be granted or revoked.
func (o *MembershipOracle) ChangeRole(ctx context.Context, actorId, roomId, userId int64, role types.Role) error {
	if !role.Valid() || role == types.RoleOwner {
		return types.Validationf("invalid role %q", role)
	}

	actorRole, err := o.RequireMember(ctx, actorId, roomId)
	if err != nil {
		return err
	}
	if !actorRole.CanManageMembers() {
		return fmt.Errorf("%w: %s cannot change roles", types.ErrAccessDenied, actorRole)
	}

	target, err := o.RequireMember(ctx, userId, roomId)
	if err != nil {
		if errors.Is(err, types.ErrAccessDenied) {
			return fmt.Errorf("%w: user %d is not a member of room %d", types.ErrNotFound, userId, roomId)
		}
		return err
	}
	if target == types.RoleOwner {
		return types.Validationf("the owner's role cannot be changed")
	}

	defer o.Invalidate(userId, roomId)
	if err := o.db.UpdateMemberRole(ctx, roomId, userId, string(role)); err != nil {
		return storeError(err, "membership")
	}

	return nil
}

// storeError maps a repository error onto the domain taxonomy.
func storeError(err error, what string) error {
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: %s", types.ErrNotFound, what)
	}
	return types.Persistence(err)
}

package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-chatroom-realtime/internal/database"
	"github.com/npezzotti/go-chatroom-realtime/internal/testutil"
	"github.com/npezzotti/go-chatroom-realtime/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMembershipOracle_IsActiveMember(t *testing.T) {
	db := &database.MockGoChatRepository{}
	defer db.AssertExpectations(t)

	db.On("GetMembership", mock.Anything, int64(10), int64(1)).
		Return(database.Member{RoomId: 10, UserId: 1, Role: "admin", IsActive: true}, nil).Once()
	db.On("GetMembership", mock.Anything, int64(10), int64(2)).
		Return(database.Member{}, database.ErrNotFound).Once()
	db.On("GetRoomById", mock.Anything, int64(10)).
		Return(database.Room{Id: 10}, nil).Once()
	db.On("GetMembership", mock.Anything, int64(11), int64(1)).
		Return(database.Member{}, database.ErrNotFound)
	db.On("GetRoomById", mock.Anything, int64(11)).
		Return(database.Room{}, database.ErrNotFound)
	db.On("GetMembership", mock.Anything, int64(12), int64(1)).
		Return(database.Member{}, errors.New("connection reset"))

	o := NewMembershipOracle(db, time.Minute, testutil.TestLogger(t))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		m, err := o.IsActiveMember(ctx, 1, 10)
		assert.NoError(t, err)
		assert.Equal(t, Membership{Active: true, Role: types.RoleAdmin}, m)

		m, err = o.IsActiveMember(ctx, 2, 10)
		assert.NoError(t, err)
		assert.False(t, m.Active, "a user without a membership row is inactive")
	}

	_, err := o.IsActiveMember(ctx, 1, 11)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = o.IsActiveMember(ctx, 1, 12)
	assert.ErrorIs(t, err, types.ErrPersistence)

	_, err = o.RequireMember(ctx, 2, 10)
	assert.ErrorIs(t, err, types.ErrAccessDenied)

	role, err := o.RequireMember(ctx, 1, 10)
	assert.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, role)
}

func TestMembershipOracle_InvalidateRacesLookup(t *testing.T) {
	db := &database.MockGoChatRepository{}

	o := NewMembershipOracle(db, time.Minute, testutil.TestLogger(t))

	reading := make(chan struct{})
	release := make(chan struct{})
	db.On("GetMembership", mock.Anything, int64(10), int64(1)).
		Run(func(mock.Arguments) {
			close(reading)
			<-release
		}).
		Return(database.Member{RoomId: 10, UserId: 1, Role: "member", IsActive: true}, nil).Once()
	db.On("GetMembership", mock.Anything, int64(10), int64(1)).
		Return(database.Member{RoomId: 10, UserId: 1, Role: "member", IsActive: false}, nil).Once()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m, err := o.IsActiveMember(context.Background(), 1, 10)
		assert.NoError(t, err)
		assert.True(t, m.Active, "the racing read returns what it saw")
	}()

	<-reading
	o.Invalidate(1, 10)
	close(release)
	wg.Wait()

	m, err := o.IsActiveMember(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.False(t, m.Active, "a lookup that raced an invalidation must not be cached")
	db.AssertExpectations(t)
}

func TestMembershipOracle_Mutations(t *testing.T) {
	db := testutil.TestRepository(t)
	o := NewMembershipOracle(db, time.Minute, testutil.TestLogger(t))
	ctx := context.Background()

	owner := createUser(t, db, "owner")
	admin := createUser(t, db, "admin")
	member := createUser(t, db, "member")
	outsider := createUser(t, db, "outsider")
	roomId := createRoom(t, db, owner, admin, member)

	require.NoError(t, o.ChangeRole(ctx, owner.Id, roomId, admin.Id, types.RoleAdmin))

	t.Run("add member", func(t *testing.T) {
		_, err := o.AddMember(ctx, member.Id, roomId, outsider.Id)
		assert.ErrorIs(t, err, types.ErrAccessDenied, "plain members cannot add members")

		_, err = o.AddMember(ctx, admin.Id, roomId, 9999)
		assert.ErrorIs(t, err, types.ErrNotFound)

		m, err := o.IsActiveMember(ctx, outsider.Id, roomId)
		require.NoError(t, err)
		require.False(t, m.Active)

		added, err := o.AddMember(ctx, admin.Id, roomId, outsider.Id)
		assert.NoError(t, err)
		assert.Equal(t, types.RoleMember, added.Role)
		assert.True(t, added.IsActive)
		assert.Equal(t, outsider.Username, added.User.Username)

		m, err = o.IsActiveMember(ctx, outsider.Id, roomId)
		assert.NoError(t, err)
		assert.True(t, m.Active, "adding must invalidate the cached negative")
	})

	t.Run("change role", func(t *testing.T) {
		assert.ErrorIs(t, o.ChangeRole(ctx, owner.Id, roomId, member.Id, types.RoleOwner), types.ErrValidation)
		assert.ErrorIs(t, o.ChangeRole(ctx, owner.Id, roomId, member.Id, "janitor"), types.ErrValidation)
		assert.ErrorIs(t, o.ChangeRole(ctx, member.Id, roomId, outsider.Id, types.RoleModerator), types.ErrAccessDenied)
		assert.ErrorIs(t, o.ChangeRole(ctx, admin.Id, roomId, owner.Id, types.RoleMember), types.ErrValidation)

		assert.NoError(t, o.ChangeRole(ctx, admin.Id, roomId, member.Id, types.RoleModerator))
		m, err := o.IsActiveMember(ctx, member.Id, roomId)
		assert.NoError(t, err)
		assert.Equal(t, types.RoleModerator, m.Role)
	})

	t.Run("remove member", func(t *testing.T) {
		assert.ErrorIs(t, o.RemoveMember(ctx, owner.Id, roomId, owner.Id), types.ErrValidation, "the owner cannot leave")
		assert.ErrorIs(t, o.RemoveMember(ctx, member.Id, roomId, admin.Id), types.ErrAccessDenied)

		assert.NoError(t, o.RemoveMember(ctx, outsider.Id, roomId, outsider.Id), "members can leave on their own")
		assert.ErrorIs(t, o.RemoveMember(ctx, owner.Id, roomId, outsider.Id), types.ErrNotFound)

		assert.NoError(t, o.RemoveMember(ctx, admin.Id, roomId, member.Id))
		m, err := o.IsActiveMember(ctx, member.Id, roomId)
		assert.NoError(t, err)
		assert.False(t, m.Active)

		// re-adding reactivates the previous membership
		readded, err := o.AddMember(ctx, owner.Id, roomId, member.Id)
		assert.NoError(t, err)
		assert.True(t, readded.IsActive)
		assert.Nil(t, readded.LeftAt)
	})
}

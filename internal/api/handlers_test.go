package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatroom-realtime/internal/config"
	"github.com/npezzotti/go-chatroom-realtime/internal/database"
	"github.com/npezzotti/go-chatroom-realtime/internal/server"
	"github.com/npezzotti/go-chatroom-realtime/internal/testutil"
	"github.com/npezzotti/go-chatroom-realtime/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// findCookie is a helper function to find a cookie by name in the response recorder.
// It returns the cookie if found, or nil if not found.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()

	buf := &bytes.Buffer{}
	if s, ok := v.(string); ok {
		buf.WriteString(s)
		return buf
	}
	require.NoError(t, json.NewEncoder(buf).Encode(v), "failed to marshal request body")
	return buf
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "failed to decode response: %s", rr.Body.String())
	return v
}

func TestCreateAccountHandler(t *testing.T) {
	expectedUser := database.User{
		Id:           1,
		Username:     "newuser",
		DisplayName:  "newuser",
		EmailAddress: "newuser@example.com",
		PasswordHash: "hashedpassword",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	tcases := []struct {
		name         string
		body         any
		callsDb      bool
		mockUser     database.User
		mockErr      error
		expectedCode int
	}{
		{
			name: "successfully creates a new account",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			callsDb:      true,
			mockUser:     expectedUser,
			expectedCode: http.StatusCreated,
		},
		{
			name:         "failed with invalid json body",
			body:         "invalid json",
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "fails with missing username",
			body: RegisterRequest{
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "fails with missing email",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Password: "password",
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "fails with missing password",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "fails with duplicate email",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			callsDb:      true,
			mockErr:      fmt.Errorf("%w: users_email_address_key", database.ErrConflict),
			expectedCode: http.StatusConflict,
		},
		{
			name: "fails with db error",
			body: RegisterRequest{
				Username: expectedUser.Username,
				Email:    expectedUser.EmailAddress,
				Password: "password",
			},
			callsDb:      true,
			mockErr:      errors.New("db error"),
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockGoChatRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.callsDb {
				regReq := tc.body.(RegisterRequest)
				mockRepo.On("CreateAccount", mock.Anything, mock.MatchedBy(func(req database.CreateAccountParams) bool {
					return req.Username == regReq.Username &&
						req.DisplayName == regReq.Username &&
						req.EmailAddress == regReq.Email &&
						verifyPassword(req.PasswordHash, regReq.Password)
				})).Return(tc.mockUser, tc.mockErr).Once()
			}

			app := NewGoChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, mockRepo, &config.Config{})

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, tc.body))
			app.createAccount(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode == http.StatusCreated {
				u := decode[types.Account](t, rr)
				assert.Equal(t, expectedUser.Id, u.Id)
				assert.Equal(t, expectedUser.Username, u.Username)
				assert.Equal(t, expectedUser.EmailAddress, u.EmailAddress)
				assert.NotContains(t, rr.Body.String(), "hashedpassword", "expected password hash to be omitted")
				return
			}

			apiErr := decode[ApiError](t, rr)
			assert.Equal(t, tc.expectedCode, apiErr.StatusCode)
		})
	}
}

func TestLoginHandler(t *testing.T) {
	hash, err := hashPassword("password")
	require.NoError(t, err)

	dbUser := database.User{
		Id:           1,
		Username:     "test",
		DisplayName:  "Test",
		EmailAddress: "test@example.com",
		PasswordHash: hash,
	}
	blocked := dbUser
	blocked.IsBlocked = true

	tcases := []struct {
		name         string
		body         any
		mockUser     database.User
		mockErr      error
		callsDb      bool
		expectedCode int
	}{
		{
			name:         "successful login",
			body:         LoginRequest{Email: dbUser.EmailAddress, Password: "password"},
			mockUser:     dbUser,
			callsDb:      true,
			expectedCode: http.StatusOK,
		},
		{
			name:         "wrong password",
			body:         LoginRequest{Email: dbUser.EmailAddress, Password: "wrong"},
			mockUser:     dbUser,
			callsDb:      true,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "blocked account",
			body:         LoginRequest{Email: dbUser.EmailAddress, Password: "password"},
			mockUser:     blocked,
			callsDb:      true,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "unknown email",
			body:         LoginRequest{Email: "nobody@example.com", Password: "password"},
			mockErr:      database.ErrNotFound,
			callsDb:      true,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "db error",
			body:         LoginRequest{Email: dbUser.EmailAddress, Password: "password"},
			mockErr:      errors.New("db error"),
			callsDb:      true,
			expectedCode: http.StatusInternalServerError,
		},
		{
			name:         "missing password",
			body:         LoginRequest{Email: dbUser.EmailAddress},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "invalid json",
			body:         "{",
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockGoChatRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.callsDb {
				lr := tc.body.(LoginRequest)
				mockRepo.On("GetAccountByEmail", mock.Anything, lr.Email).Return(tc.mockUser, tc.mockErr).Once()
			}

			app := NewGoChatApp(http.NewServeMux(), testutil.TestLogger(t), nil, mockRepo, &config.Config{
				SigningKey: []byte("test-signing-key"),
			})

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, tc.body))
			app.login(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode != http.StatusOK {
				assert.Nil(t, findCookie(rr, tokenCookieKey), "expected no session cookie")
				return
			}

			cookie := findCookie(rr, tokenCookieKey)
			require.NotNil(t, cookie, "expected session cookie")
			assert.True(t, cookie.HttpOnly)

			resp := decode[LoginResponse](t, rr)
			assert.Equal(t, dbUser.Id, resp.User.Id)
			assert.Equal(t, dbUser.EmailAddress, resp.User.EmailAddress)
			assert.Equal(t, cookie.Value, resp.Token)

			userId, err := app.extractUserIdFromToken(resp.Token)
			assert.NoError(t, err)
			assert.Equal(t, dbUser.Id, userId)
		})
	}
}

func TestLogoutHandler(t *testing.T) {
	app := &GoChatApp{log: testutil.TestLogger(t)}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil)
	app.logout(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookie := findCookie(rr, tokenCookieKey)
	require.NotNil(t, cookie, "expected cookie to be overwritten")
	assert.Empty(t, cookie.Value)
	assert.True(t, cookie.Expires.Before(time.Now().Add(time.Second)), "expected cookie to be expired")
}

func Test_pageParams(t *testing.T) {
	app := &GoChatApp{maxPageSize: 20}

	tcases := []struct {
		name           string
		query          string
		expectedBefore int64
		expectedLimit  int
		expectErr      bool
	}{
		{name: "defaults", query: "", expectedLimit: 20},
		{name: "cursor and limit", query: "?before=42&limit=5", expectedBefore: 42, expectedLimit: 5},
		{name: "limit capped", query: "?limit=500", expectedLimit: 20},
		{name: "invalid cursor", query: "?before=abc", expectErr: true},
		{name: "negative cursor", query: "?before=-1", expectErr: true},
		{name: "zero limit", query: "?limit=0", expectErr: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/"+tc.query, nil)
			before, limit, err := app.pageParams(req)
			if tc.expectErr {
				assert.ErrorIs(t, err, types.ErrValidation)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedBefore, before)
			assert.Equal(t, tc.expectedLimit, limit)
		})
	}
}

func Test_validateCreateRoom(t *testing.T) {
	tcases := []struct {
		name      string
		req       CreateRoomRequest
		expectErr bool
	}{
		{name: "group room", req: CreateRoomRequest{Name: "general", Type: roomTypeGroup, MemberIds: []int64{2, 3}}},
		{name: "direct room", req: CreateRoomRequest{Name: "dm", Type: roomTypeDirect, MemberIds: []int64{2}}},
		{name: "blank name", req: CreateRoomRequest{Name: "  ", Type: roomTypeGroup}, expectErr: true},
		{name: "owner listed as member", req: CreateRoomRequest{Name: "general", Type: roomTypeGroup, MemberIds: []int64{1}}, expectErr: true},
		{name: "direct room with two members", req: CreateRoomRequest{Name: "dm", Type: roomTypeDirect, MemberIds: []int64{2, 3}}, expectErr: true},
		{name: "unknown type", req: CreateRoomRequest{Name: "general", Type: "channel"}, expectErr: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateCreateRoom(tc.req, 1)
			if tc.expectErr {
				assert.ErrorIs(t, err, types.ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

// apiFixture serves the full handler chain backed by a sqlite database and a
// real chat server.
type apiFixture struct {
	app *GoChatApp
	db  *database.SqlGoChatRepository
	cs  *server.ChatServer
}

func newApiFixture(t *testing.T) *apiFixture {
	t.Helper()

	db := testutil.TestRepository(t)
	logger := testutil.TestLogger(t)
	cs, err := server.NewChatServer(logger, db, testutil.TestStats(t), server.Options{MembershipCacheTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	})

	app := NewGoChatApp(http.NewServeMux(), logger, cs, db, &config.Config{
		SigningKey:     []byte("test-signing-key"),
		AllowedOrigins: []string{"http://localhost:3000"},
		MaxPageSize:    20,
	})

	return &apiFixture{app: app, db: db, cs: cs}
}

func (f *apiFixture) createUser(t *testing.T, name string) types.User {
	t.Helper()

	hash, err := hashPassword("password")
	require.NoError(t, err)

	u, err := f.db.CreateAccount(context.Background(), database.CreateAccountParams{
		Username:     name,
		DisplayName:  name,
		EmailAddress: name + "@example.com",
		PasswordHash: hash,
	})
	require.NoError(t, err)
	return u.ToUser()
}

func (f *apiFixture) token(t *testing.T, user types.User) string {
	t.Helper()

	token, err := f.app.createJwtForSession(user, time.Hour)
	require.NoError(t, err)
	return token
}

// do sends a request through the full handler chain. A zero user sends the
// request unauthenticated.
func (f *apiFixture) do(t *testing.T, method, target string, user types.User, body any) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, jsonBody(t, body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if user.Id != 0 {
		req.Header.Set("Authorization", "Bearer "+f.token(t, user))
	}

	rr := httptest.NewRecorder()
	f.app.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (f *apiFixture) createRoom(t *testing.T, owner types.User, name string, members ...types.User) types.Room {
	t.Helper()

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.Id)
	}

	rr := f.do(t, http.MethodPost, "/api/rooms", owner, CreateRoomRequest{Name: name, MemberIds: ids})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[types.Room](t, rr)
}

func (f *apiFixture) sendMessage(t *testing.T, sender types.User, roomId int64, req SendMessageRequest) types.Message {
	t.Helper()

	rr := f.do(t, http.MethodPost, fmt.Sprintf("/api/rooms/%d/messages", roomId), sender, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[types.Message](t, rr)
}

func content(s string) *string {
	return &s
}

func TestSessionHandler(t *testing.T) {
	f := newApiFixture(t)
	alice := f.createUser(t, "alice")

	rr := f.do(t, http.MethodGet, "/api/auth/session", alice, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	u := decode[types.Account](t, rr)
	assert.Equal(t, alice.Id, u.Id)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.EmailAddress, "the session carries the caller's own email")

	rr = f.do(t, http.MethodGet, "/api/auth/session", types.User{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// a valid token for an account that does not exist
	rr = f.do(t, http.MethodGet, "/api/auth/session", types.User{Id: 999}, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRoomHandlers(t *testing.T) {
	f := newApiFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	carol := f.createUser(t, "carol")

	room := f.createRoom(t, alice, "general", bob)
	assert.NotEmpty(t, room.ExternalId)
	assert.Equal(t, "general", room.Name)
	assert.Equal(t, roomTypeGroup, room.Type)
	assert.Equal(t, alice.Id, room.CreatedBy)

	t.Run("members list their rooms", func(t *testing.T) {
		rr := f.do(t, http.MethodGet, "/api/rooms", bob, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		rooms := decode[[]types.Room](t, rr)
		require.Len(t, rooms, 1)
		assert.Equal(t, room.Id, rooms[0].Id)

		rr = f.do(t, http.MethodGet, "/api/rooms", carol, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "[]\n", rr.Body.String())
	})

	t.Run("get room includes members", func(t *testing.T) {
		rr := f.do(t, http.MethodGet, fmt.Sprintf("/api/rooms/%d", room.Id), bob, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		got := decode[types.Room](t, rr)
		assert.Equal(t, room.Id, got.Id)
		assert.Len(t, got.Members, 2)
	})

	t.Run("non members are denied", func(t *testing.T) {
		rr := f.do(t, http.MethodGet, fmt.Sprintf("/api/rooms/%d", room.Id), carol, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr = f.do(t, http.MethodGet, fmt.Sprintf("/api/rooms/%d/messages", room.Id), carol, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("unknown room", func(t *testing.T) {
		rr := f.do(t, http.MethodGet, "/api/rooms/9999", alice, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("invalid room id", func(t *testing.T) {
		rr := f.do(t, http.MethodGet, "/api/rooms/abc", alice, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("invalid room is rejected", func(t *testing.T) {
		rr := f.do(t, http.MethodPost, "/api/rooms", alice, CreateRoomRequest{Name: ""})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		apiErr := decode[ApiError](t, rr)
		assert.Contains(t, apiErr.Message, "room name is required")
	})

	t.Run("requires authentication", func(t *testing.T) {
		rr := f.do(t, http.MethodGet, "/api/rooms", types.User{}, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestMemberHandlers(t *testing.T) {
	f := newApiFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	carol := f.createUser(t, "carol")
	dave := f.createUser(t, "dave")

	room := f.createRoom(t, alice, "general", bob)
	membersPath := fmt.Sprintf("/api/rooms/%d/members", room.Id)

	rr := f.do(t, http.MethodPost, membersPath, bob, AddMemberRequest{UserId: dave.Id})
	assert.Equal(t, http.StatusForbidden, rr.Code, "expected plain members not to add members")

	rr = f.do(t, http.MethodPost, membersPath, alice, AddMemberRequest{UserId: carol.Id})
	assert.Equal(t, http.StatusCreated, rr.Code)
	member := decode[types.Member](t, rr)
	assert.Equal(t, carol.Id, member.User.Id)
	assert.Equal(t, types.RoleMember, member.Role)

	rr = f.do(t, http.MethodGet, membersPath, carol, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]types.Member](t, rr), 3)

	rr = f.do(t, http.MethodPut, fmt.Sprintf("%s/%d", membersPath, carol.Id), alice, ChangeRoleRequest{Role: types.RoleModerator})
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodPut, fmt.Sprintf("%s/%d", membersPath, alice.Id), alice, ChangeRoleRequest{Role: types.RoleMember})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "expected owner role to be immutable")

	rr = f.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", membersPath, carol.Id), alice, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodGet, fmt.Sprintf("/api/rooms/%d", room.Id), carol, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code, "expected removed member to lose access")

	rr = f.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", membersPath, alice.Id), alice, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "expected owner not to leave")
}

func TestMessageHandlers(t *testing.T) {
	f := newApiFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")

	room := f.createRoom(t, alice, "general", bob)
	messagesPath := fmt.Sprintf("/api/rooms/%d/messages", room.Id)

	m1 := f.sendMessage(t, alice, room.Id, SendMessageRequest{Content: content("Hello world")})
	m2 := f.sendMessage(t, bob, room.Id, SendMessageRequest{Content: content("hi"), ReplyToId: &m1.Id})
	m3 := f.sendMessage(t, alice, room.Id, SendMessageRequest{
		Type:  types.MessageTypeFile,
		Files: []server.FilePayload{{Filename: "a.png", OriginalName: "cat.png", MimeType: "image/png", Size: 10, Url: "https://cdn.example.com/a.png"}},
	})

	require.NotNil(t, m2.ReplyTo)
	assert.Equal(t, m1.Id, m2.ReplyTo.Id)
	assert.Len(t, m3.Files, 1)

	t.Run("history is paged newest first", func(t *testing.T) {
		rr := f.do(t, http.MethodGet, messagesPath+"?limit=2", bob, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		page := decode[[]types.Message](t, rr)
		require.Len(t, page, 2)
		assert.Equal(t, m3.Id, page[0].Id)
		assert.Equal(t, m2.Id, page[1].Id)

		rr = f.do(t, http.MethodGet, fmt.Sprintf("%s?limit=2&before=%d", messagesPath, page[1].Id), bob, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		page = decode[[]types.Message](t, rr)
		require.Len(t, page, 1)
		assert.Equal(t, m1.Id, page[0].Id)
	})

	t.Run("invalid message is rejected", func(t *testing.T) {
		rr := f.do(t, http.MethodPost, messagesPath, alice, SendMessageRequest{Content: content("   ")})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("search", func(t *testing.T) {
		rr := f.do(t, http.MethodGet, messagesPath+"/search?q=HELLO", bob, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		found := decode[[]types.Message](t, rr)
		require.Len(t, found, 1)
		assert.Equal(t, m1.Id, found[0].Id)

		rr = f.do(t, http.MethodGet, messagesPath+"/search", bob, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("files", func(t *testing.T) {
		rr := f.do(t, http.MethodGet, fmt.Sprintf("/api/rooms/%d/files", room.Id), bob, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		files := decode[[]types.File](t, rr)
		require.Len(t, files, 1)
		assert.Equal(t, "a.png", files[0].Filename)
	})

	t.Run("only the sender edits", func(t *testing.T) {
		path := fmt.Sprintf("/api/messages/%d", m1.Id)
		rr := f.do(t, http.MethodPut, path, bob, EditMessageRequest{Content: "hijacked"})
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr = f.do(t, http.MethodPut, path, alice, EditMessageRequest{Content: "Hello everyone"})
		assert.Equal(t, http.StatusOK, rr.Code)
		edited := decode[types.Message](t, rr)
		assert.True(t, edited.IsEdited)
		assert.Equal(t, "Hello everyone", *edited.Content)
	})

	t.Run("reactions toggle", func(t *testing.T) {
		path := fmt.Sprintf("/api/messages/%d/reactions", m1.Id)
		rr := f.do(t, http.MethodPost, path, bob, ReactionRequest{Emoji: "👍"})
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decode[types.Message](t, rr).Reactions, 1)

		rr = f.do(t, http.MethodPost, path, bob, ReactionRequest{Emoji: "👍"})
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, decode[types.Message](t, rr).Reactions)
	})

	t.Run("read receipts", func(t *testing.T) {
		rr := f.do(t, http.MethodPost, "/api/messages/read", bob, MarkReadRequest{MessageIds: []int64{m1.Id, m1.Id, m3.Id}})
		assert.Equal(t, http.StatusOK, rr.Code)
		receipts := decode[[]types.ReadReceipt](t, rr)
		require.Len(t, receipts, 2)
		for _, r := range receipts {
			assert.Equal(t, bob.Id, r.UserId)
		}

		rr = f.do(t, http.MethodPost, "/api/messages/read", bob, MarkReadRequest{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("pins require a moderator", func(t *testing.T) {
		pinsPath := fmt.Sprintf("/api/rooms/%d/pins", room.Id)

		rr := f.do(t, http.MethodPost, pinsPath, bob, PinRequest{MessageId: m1.Id})
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr = f.do(t, http.MethodPost, pinsPath, alice, PinRequest{MessageId: m1.Id})
		assert.Equal(t, http.StatusCreated, rr.Code)
		pinned := decode[types.PinnedMessage](t, rr)
		assert.Equal(t, m1.Id, pinned.Message.Id)
		assert.Equal(t, alice.Id, pinned.PinnedBy)

		rr = f.do(t, http.MethodGet, pinsPath, bob, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decode[[]types.PinnedMessage](t, rr), 1)

		rr = f.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", pinsPath, m1.Id), alice, nil)
		assert.Equal(t, http.StatusNoContent, rr.Code)

		rr = f.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", pinsPath, m1.Id), alice, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)

		rr = f.do(t, http.MethodGet, pinsPath, bob, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, decode[[]types.PinnedMessage](t, rr))
	})

	t.Run("delete hides the message", func(t *testing.T) {
		path := fmt.Sprintf("/api/messages/%d", m2.Id)
		rr := f.do(t, http.MethodDelete, path, alice, nil)
		assert.Equal(t, http.StatusOK, rr.Code, "expected the owner to moderate")
		deleted := decode[types.Message](t, rr)
		assert.True(t, deleted.IsDeleted)

		rr = f.do(t, http.MethodGet, messagesPath, bob, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		for _, m := range decode[[]types.Message](t, rr) {
			assert.NotEqual(t, m2.Id, m.Id)
		}
	})

	t.Run("unknown message", func(t *testing.T) {
		rr := f.do(t, http.MethodDelete, "/api/messages/9999", alice, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestUserHandlers(t *testing.T) {
	f := newApiFixture(t)
	alice := f.createUser(t, "alice")
	f.createUser(t, "alicia")
	f.createUser(t, "bob")

	rr := f.do(t, http.MethodGet, "/api/users/search?q=ALI", alice, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "@example.com", "search results are public profiles")
	users := decode[[]types.User](t, rr)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "alicia", users[1].Username)

	rr = f.do(t, http.MethodGet, "/api/users/search", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/presence", alice.Id), alice, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	p := decode[types.Presence](t, rr)
	assert.Equal(t, alice.Id, p.UserId)
	assert.False(t, p.IsOnline)

	rr = f.do(t, http.MethodGet, "/api/users/9999/presence", alice, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthCheckRoute(t *testing.T) {
	f := newApiFixture(t)

	rr := f.do(t, http.MethodGet, "/healthz", types.User{}, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	resp := decode[HealthResponse](t, rr)
	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, "ok", resp.Checks["database"])
}

func TestServeWs(t *testing.T) {
	f := newApiFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	room := f.createRoom(t, alice, "general", bob)

	srv := httptest.NewServer(f.app.srv.Handler)
	t.Cleanup(srv.Close)
	wsUrl := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	t.Run("rejects unauthenticated handshake", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsUrl, nil)
		assert.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects foreign origin", func(t *testing.T) {
		header := http.Header{"Origin": []string{"http://evil.example.com"}}
		_, _, err := websocket.DefaultDialer.Dial(wsUrl+"?token="+f.token(t, bob), header)
		assert.Error(t, err)
	})

	t.Run("delivers room messages", func(t *testing.T) {
		ws, _, err := websocket.DefaultDialer.Dial(wsUrl+"?token="+f.token(t, bob), nil)
		require.NoError(t, err, "failed to dial websocket")
		t.Cleanup(func() { ws.Close() })

		// the handshake completes before the connection joins its rooms
		assert.Eventually(t, func() bool {
			return len(f.cs.Registry().ConnectionsFor(room.Id)) == 1
		}, 2*time.Second, 10*time.Millisecond)

		sent := f.sendMessage(t, alice, room.Id, SendMessageRequest{Content: content("over the wire")})

		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			var frame struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			require.NoError(t, ws.ReadJSON(&frame), "waiting for new message")
			if frame.Event != server.EventNewMessage {
				continue
			}

			var msg types.Message
			require.NoError(t, json.Unmarshal(frame.Data, &msg))
			assert.Equal(t, sent.Id, msg.Id)
			assert.Equal(t, "over the wire", *msg.Content)
			assert.NotContains(t, string(frame.Data), "alice@example.com", "other members must not see the sender's email")
			assert.NotContains(t, string(frame.Data), "email_address")
			break
		}
	})
}

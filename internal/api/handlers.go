package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatroom-realtime/internal/database"
	"github.com/npezzotti/go-chatroom-realtime/internal/server"
	"github.com/npezzotti/go-chatroom-realtime/internal/types"
)

const (
	defaultPageSize    = 50
	healthCheckTimeout = 2 * time.Second

	roomTypeGroup  = "group"
	roomTypeDirect = "direct"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User  types.Account `json:"user"`
	Token string        `json:"token"`
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type CreateRoomRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	IsPrivate   bool    `json:"is_private"`
	MemberIds   []int64 `json:"member_ids"`
}

type AddMemberRequest struct {
	UserId int64 `json:"user_id"`
}

type ChangeRoleRequest struct {
	Role types.Role `json:"role"`
}

type SendMessageRequest struct {
	Content   *string              `json:"content"`
	Type      types.MessageType    `json:"type"`
	ReplyToId *int64               `json:"reply_to_id"`
	Files     []server.FilePayload `json:"files"`
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

type MarkReadRequest struct {
	MessageIds []int64 `json:"message_ids"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

type PinRequest struct {
	MessageId int64 `json:"message_id"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *GoChatApp) writeError(w http.ResponseWriter, err error) {
	errResp := ErrorFromDomain(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Printf("internal error: %v", err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

// requestUser resolves the authenticated account of the request. It writes
// the error response itself when it returns false.
func (s *GoChatApp) requestUser(w http.ResponseWriter, r *http.Request) (types.User, bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return types.User{}, false
	}

	user, err := s.cs.Authenticate(r.Context(), userId)
	if err != nil {
		s.writeError(w, err)
		return types.User{}, false
	}

	return user, true
}

func pathId(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, types.Validationf("invalid %s", name)
	}
	return id, nil
}

// pageParams reads the before cursor and limit query parameters. The limit
// is capped at the configured page size.
func (s *GoChatApp) pageParams(r *http.Request) (int64, int, error) {
	var before int64
	limit := min(defaultPageSize, s.maxPageSize)

	if v := r.URL.Query().Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, types.Validationf("invalid before cursor")
		}
		before = n
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, 0, types.Validationf("invalid limit")
		}
		limit = min(n, s.maxPageSize)
	}

	return before, limit, nil
}

// roomMember resolves the room in the path and checks the caller is an
// active member of it.
func (s *GoChatApp) roomMember(w http.ResponseWriter, r *http.Request) (types.User, int64, bool) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return types.User{}, 0, false
	}

	roomId, err := pathId(r, "id")
	if err != nil {
		s.writeError(w, err)
		return types.User{}, 0, false
	}

	if _, err := s.cs.Oracle().RequireMember(r.Context(), user.Id, roomId); err != nil {
		s.writeError(w, err)
		return types.User{}, 0, false
	}

	return user, roomId, true
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{Status: "OK", Checks: make(map[string]string, len(s.checks))}
	for _, name := range s.checkNames() {
		if err := s.checks[name](ctx); err != nil {
			s.log.Printf("health check %s: %v", name, err)
			resp.Status = "DEGRADED"
			resp.Checks[name] = "error: " + err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	statusCode := http.StatusOK
	if resp.Status != "OK" {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJson(w, statusCode, resp)
}

func (s *GoChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	newUser, err := s.db.CreateAccount(r.Context(), database.CreateAccountParams{
		Username:     req.Username,
		DisplayName:  displayName,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, newUser.ToAccount())
}

func (s *GoChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountByEmail(r.Context(), lr.Email)
	if errors.Is(err, database.ErrNotFound) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	if dbUser.IsBlocked || !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account := dbUser.ToAccount()
	token, err := s.createJwtForSession(account.User, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, LoginResponse{User: account, Token: token})
}

func (s *GoChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) session(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	dbUser, err := s.db.GetAccountById(r.Context(), user.Id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, dbUser.ToAccount())
}

func (s *GoChatApp) searchUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requestUser(w, r); !ok {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	_, limit, err := s.pageParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	dbUsers, err := s.db.SearchAccounts(r.Context(), query, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	users := make([]types.User, 0, len(dbUsers))
	for _, u := range dbUsers {
		users = append(users, u.ToUser())
	}

	s.writeJson(w, http.StatusOK, users)
}

func (s *GoChatApp) getPresence(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requestUser(w, r); !ok {
		return
	}

	userId, err := pathId(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	p, err := s.cs.Presence().Status(r.Context(), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, p)
}

func (s *GoChatApp) listRooms(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	dbRooms, err := s.db.ListRoomsForUser(r.Context(), user.Id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	rooms := make([]types.Room, 0, len(dbRooms))
	for _, room := range dbRooms {
		rooms = append(rooms, room.ToRoom())
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *GoChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var createRoomReq CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&createRoomReq); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	if createRoomReq.Type == "" {
		createRoomReq.Type = roomTypeGroup
	}
	if err := validateCreateRoom(createRoomReq, user.Id); err != nil {
		s.writeError(w, err)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newRoom, err := s.db.CreateRoom(r.Context(), database.CreateRoomParams{
		ExternalId:  sid,
		Name:        strings.TrimSpace(createRoomReq.Name),
		Description: createRoomReq.Description,
		Type:        createRoomReq.Type,
		IsPrivate:   createRoomReq.IsPrivate,
		OwnerId:     user.Id,
		MemberIds:   createRoomReq.MemberIds,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, newRoom.ToRoom())
}

func validateCreateRoom(req CreateRoomRequest, ownerId int64) error {
	if strings.TrimSpace(req.Name) == "" {
		return types.Validationf("room name is required")
	}
	if slices.Contains(req.MemberIds, ownerId) {
		return types.Validationf("the owner cannot be listed as a member")
	}

	switch req.Type {
	case roomTypeGroup:
	case roomTypeDirect:
		if len(req.MemberIds) != 1 {
			return types.Validationf("direct rooms have exactly one other member")
		}
	default:
		return types.Validationf("invalid room type %q", req.Type)
	}

	return nil
}

func (s *GoChatApp) getRoom(w http.ResponseWriter, r *http.Request) {
	_, roomId, ok := s.roomMember(w, r)
	if !ok {
		return
	}

	dbRoom, err := s.db.GetRoomById(r.Context(), roomId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	members, err := s.members(r.Context(), roomId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	room := dbRoom.ToRoom()
	room.Members = members
	s.writeJson(w, http.StatusOK, room)
}

func (s *GoChatApp) members(ctx context.Context, roomId int64) ([]types.Member, error) {
	dbMembers, err := s.db.ListMembers(ctx, roomId)
	if err != nil {
		return nil, err
	}

	members := make([]types.Member, 0, len(dbMembers))
	for _, m := range dbMembers {
		members = append(members, m.ToMember())
	}
	return members, nil
}

func (s *GoChatApp) listMembers(w http.ResponseWriter, r *http.Request) {
	_, roomId, ok := s.roomMember(w, r)
	if !ok {
		return
	}

	members, err := s.members(r.Context(), roomId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, members)
}

func (s *GoChatApp) addMember(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	roomId, err := pathId(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	member, err := s.cs.Oracle().AddMember(r.Context(), user.Id, roomId, req.UserId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, member)
}

func (s *GoChatApp) changeRole(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	roomId, err := pathId(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	memberId, err := pathId(r, "userId")
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req ChangeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.Oracle().ChangeRole(r.Context(), user.Id, roomId, memberId, req.Role); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *GoChatApp) removeMember(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	roomId, err := pathId(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	memberId, err := pathId(r, "userId")
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.cs.Oracle().RemoveMember(r.Context(), user.Id, roomId, memberId); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *GoChatApp) hydrateAll(ctx context.Context, dbMessages []database.Message) ([]types.Message, error) {
	messages := make([]types.Message, 0, len(dbMessages))
	for _, m := range dbMessages {
		msg, err := s.cs.Pipeline().Hydrate(ctx, m)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// getMessages returns a page of a room's history, newest first. Pass the
// smallest id of a page as before to fetch the next one.
func (s *GoChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	_, roomId, ok := s.roomMember(w, r)
	if !ok {
		return
	}

	before, limit, err := s.pageParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	dbMessages, err := s.db.ListMessages(r.Context(), roomId, before, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	messages, err := s.hydrateAll(r.Context(), dbMessages)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *GoChatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	roomId, err := pathId(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.cs.Pipeline().SendMessage(r.Context(), user, server.SendMessagePayload{
		RoomId:    roomId,
		Content:   req.Content,
		Type:      req.Type,
		ReplyToId: req.ReplyToId,
		Files:     req.Files,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *GoChatApp) searchMessages(w http.ResponseWriter, r *http.Request) {
	_, roomId, ok := s.roomMember(w, r)
	if !ok {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	_, limit, err := s.pageParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	dbMessages, err := s.db.SearchMessages(r.Context(), roomId, query, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	messages, err := s.hydrateAll(r.Context(), dbMessages)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *GoChatApp) listFiles(w http.ResponseWriter, r *http.Request) {
	_, roomId, ok := s.roomMember(w, r)
	if !ok {
		return
	}

	before, limit, err := s.pageParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	dbFiles, err := s.db.ListFilesForRoom(r.Context(), roomId, before, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	files := make([]types.File, 0, len(dbFiles))
	for _, f := range dbFiles {
		files = append(files, f.ToFile())
	}

	s.writeJson(w, http.StatusOK, files)
}

func (s *GoChatApp) listPins(w http.ResponseWriter, r *http.Request) {
	_, roomId, ok := s.roomMember(w, r)
	if !ok {
		return
	}

	dbPins, err := s.db.ListPinnedMessages(r.Context(), roomId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	pins := make([]types.PinnedMessage, 0, len(dbPins))
	for _, p := range dbPins {
		msg, err := s.cs.Pipeline().Hydrate(r.Context(), p.Message)
		if err != nil {
			s.writeError(w, err)
			return
		}
		pins = append(pins, types.PinnedMessage{
			RoomId:   p.RoomId,
			Message:  msg,
			PinnedBy: p.PinnedBy,
			PinnedAt: p.PinnedAt,
		})
	}

	s.writeJson(w, http.StatusOK, pins)
}

func (s *GoChatApp) pinMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	roomId, err := pathId(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageId <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pinned, err := s.cs.Pipeline().PinMessage(r.Context(), user, roomId, req.MessageId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, pinned)
}

func (s *GoChatApp) unpinMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	roomId, err := pathId(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	messageId, err := pathId(r, "messageId")
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.cs.Pipeline().UnpinMessage(r.Context(), user, roomId, messageId); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *GoChatApp) editMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	messageId, err := pathId(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.cs.Pipeline().EditMessage(r.Context(), user, messageId, req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, msg)
}

func (s *GoChatApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	messageId, err := pathId(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	msg, err := s.cs.Pipeline().DeleteMessage(r.Context(), user, messageId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, msg)
}

func (s *GoChatApp) markRead(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	receipts, err := s.cs.Pipeline().MarkRead(r.Context(), user, req.MessageIds)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, receipts)
}

func (s *GoChatApp) toggleReaction(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	messageId, err := pathId(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req ReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.cs.Pipeline().ToggleReaction(r.Context(), user, messageId, req.Emoji)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, msg)
}

func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(conn, s.cs, s.log)
	if err := client.Start(r.Context(), user); err != nil {
		if errors.Is(err, server.ErrRegistryClosed) {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		}
		s.log.Println("start client:", err)
		conn.Close()
	}
}

package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-chatroom-realtime/internal/config"
	"github.com/npezzotti/go-chatroom-realtime/internal/database"
	"github.com/npezzotti/go-chatroom-realtime/internal/server"
	"github.com/teris-io/shortid"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type GoChatApp struct {
	log             *log.Logger
	db              database.GoChatRepository
	srv             *http.Server
	cs              *server.ChatServer
	signingKey      []byte
	allowedOrigins  []string
	maxPageSize     int
	checks          map[string]HealthCheck
	generateShortId func() (string, error)
}

func NewGoChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.GoChatRepository, cfg *config.Config) *GoChatApp {
	if logger == nil {
		logger = log.Default()
	}

	s := &GoChatApp{
		log:             logger,
		db:              db,
		cs:              cs,
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		maxPageSize:     cfg.MaxPageSize,
		checks:          make(map[string]HealthCheck),
		generateShortId: shortid.Generate,
	}
	if s.maxPageSize <= 0 {
		s.maxPageSize = defaultPageSize
	}
	if db != nil {
		s.checks["database"] = db.Ping
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))

	mux.HandleFunc("GET /api/users/search", s.authMiddleware(s.searchUsers))
	mux.HandleFunc("GET /api/users/{id}/presence", s.authMiddleware(s.getPresence))

	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms/{id}", s.authMiddleware(s.getRoom))
	mux.HandleFunc("GET /api/rooms/{id}/members", s.authMiddleware(s.listMembers))
	mux.HandleFunc("POST /api/rooms/{id}/members", s.authMiddleware(s.addMember))
	mux.HandleFunc("PUT /api/rooms/{id}/members/{userId}", s.authMiddleware(s.changeRole))
	mux.HandleFunc("DELETE /api/rooms/{id}/members/{userId}", s.authMiddleware(s.removeMember))
	mux.HandleFunc("GET /api/rooms/{id}/messages", s.authMiddleware(s.getMessages))
	mux.HandleFunc("POST /api/rooms/{id}/messages", s.authMiddleware(s.sendMessage))
	mux.HandleFunc("GET /api/rooms/{id}/messages/search", s.authMiddleware(s.searchMessages))
	mux.HandleFunc("GET /api/rooms/{id}/files", s.authMiddleware(s.listFiles))
	mux.HandleFunc("GET /api/rooms/{id}/pins", s.authMiddleware(s.listPins))
	mux.HandleFunc("POST /api/rooms/{id}/pins", s.authMiddleware(s.pinMessage))
	mux.HandleFunc("DELETE /api/rooms/{id}/pins/{messageId}", s.authMiddleware(s.unpinMessage))

	mux.HandleFunc("PUT /api/messages/{id}", s.authMiddleware(s.editMessage))
	mux.HandleFunc("DELETE /api/messages/{id}", s.authMiddleware(s.deleteMessage))
	mux.HandleFunc("POST /api/messages/read", s.authMiddleware(s.markRead))
	mux.HandleFunc("POST /api/messages/{id}/reactions", s.authMiddleware(s.toggleReaction))

	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = handlers.CombinedLoggingHandler(logger.Writer(), h)
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

// AddHealthCheck registers a dependency reported by GET /healthz.
func (s *GoChatApp) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

func (s *GoChatApp) checkNames() []string {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *GoChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *GoChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

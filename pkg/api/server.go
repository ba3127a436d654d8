// Package api serves the peerchat HTTP surface: REST endpoints over the
// session services, the serverless-style auth functions and the WebSocket
// realtime feed.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jhjames1/peerchat/pkg/appstate"
	"github.com/jhjames1/peerchat/pkg/auth"
	"github.com/jhjames1/peerchat/pkg/config"
	"github.com/jhjames1/peerchat/pkg/database"
	"github.com/jhjames1/peerchat/pkg/events"
	"github.com/jhjames1/peerchat/pkg/services"
)

// Server is the HTTP API server.
type Server struct {
	cfg        *config.Config
	router     *gin.Engine
	httpServer *http.Server

	dbClient          *database.Client
	tokens            *auth.TokenIssuer
	sessionService    *services.SessionService
	messageService    *services.MessageService
	specialistService *services.SpecialistService
	proposalService   *services.ProposalService
	connManager       *events.ConnectionManager

	appState appstate.Store
	warnings *services.SystemWarningsService
}

// NewServer creates the API server and registers its routes.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	tokens *auth.TokenIssuer,
	sessionService *services.SessionService,
	messageService *services.MessageService,
	specialistService *services.SpecialistService,
	proposalService *services.ProposalService,
	connManager *events.ConnectionManager,
) *Server {
	s := &Server{
		cfg:               cfg,
		dbClient:          dbClient,
		tokens:            tokens,
		sessionService:    sessionService,
		messageService:    messageService,
		specialistService: specialistService,
		proposalService:   proposalService,
		connManager:       connManager,
		appState:          appstate.NewMemoryStore(),
	}
	s.router = gin.New()
	s.setupRoutes()
	return s
}

// SetAppStateStore replaces the default in-memory app state store.
func (s *Server) SetAppStateStore(st appstate.Store) {
	s.appState = st
}

// SetWarnings attaches the system warnings service reported by /health.
func (s *Server) SetWarnings(w *services.SystemWarningsService) {
	s.warnings = w
}

// Handler returns the underlying http.Handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger())
	s.router.Use(securityHeaders())
	s.router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type", "apikey", "x-client-info"},
		MaxAge:          12 * time.Hour,
	}))

	s.router.GET("/health", s.healthHandler)

	fn := s.router.Group("/functions/v1")
	fn.POST("/specialist-login", s.specialistLoginHandler)
	fn.POST("/guest-token", s.guestTokenHandler)

	v1 := s.router.Group("/api/v1")
	v1.Use(auth.Middleware(s.tokens))

	v1.POST("/sessions/start", s.startSessionHandler)
	v1.GET("/sessions", s.listSessionsHandler)
	v1.GET("/sessions/:id", s.getSessionHandler)
	v1.POST("/sessions/:id/claim", s.claimSessionHandler)
	v1.POST("/sessions/:id/end", s.endSessionHandler)
	v1.POST("/sessions/:id/touch", s.touchSessionHandler)

	v1.GET("/sessions/:id/messages", s.listMessagesHandler)
	v1.POST("/sessions/:id/messages", s.sendMessageHandler)
	v1.POST("/sessions/:id/read", s.markReadHandler)

	v1.GET("/specialists/:id", s.getSpecialistHandler)
	v1.PUT("/specialists/:id/status", s.updateStatusHandler)
	v1.GET("/specialists/:id/slots", s.slotsHandler)
	v1.POST("/specialists/:id/schedules", s.addScheduleHandler)
	v1.GET("/specialists/:id/schedules", s.listSchedulesHandler)
	v1.GET("/specialists/:id/proposals", s.listProposalsHandler)

	v1.POST("/proposals", s.createProposalHandler)
	v1.POST("/proposals/:id/respond", s.respondProposalHandler)

	v1.GET("/state", s.getStateHandler)
	v1.PUT("/state", s.putStateHandler)

	v1.GET("/ws", s.wsHandler)
}

// Start serves HTTP on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

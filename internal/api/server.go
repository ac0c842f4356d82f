package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradedesk/internal/favorites"
	"github.com/ajitpratap0/tradedesk/internal/metrics"
	"github.com/ajitpratap0/tradedesk/internal/notifications"
	"github.com/ajitpratap0/tradedesk/internal/session"
)

// Server is the REST and WebSocket transport the view layer talks to
type Server struct {
	router    *gin.Engine
	session   *session.Session
	favorites *favorites.Store
	inbox     *notifications.Inbox
	hub       *Hub
	limiter   *RateLimiter
	addr      string
	server    *http.Server
}

// Config contains server configuration
type Config struct {
	Addr      string // host:port to listen on
	Session   *session.Session
	Favorites *favorites.Store
	Inbox     *notifications.Inbox // optional; enables GET /notifications
	Hub       *Hub                 // optional; enables GET /ws

	// AllowOrigins defaults to every origin
	AllowOrigins []string

	// IntentLimit caps mutating requests per client IP per IntentWindow;
	// zero disables the limit
	IntentLimit  int
	IntentWindow time.Duration
}

// NewServer creates a new API server
func NewServer(config Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(metrics.GinMiddleware())

	origins := config.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	s := &Server{
		router:    router,
		session:   config.Session,
		favorites: config.Favorites,
		inbox:     config.Inbox,
		hub:       config.Hub,
		addr:      config.Addr,
	}
	if config.IntentLimit > 0 {
		window := config.IntentWindow
		if window <= 0 {
			window = time.Minute
		}
		s.limiter = NewRateLimiter("intent", config.IntentLimit, window)
	}

	s.setupRoutes()

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// LoggerMiddleware logs every request
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logEvent := log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}

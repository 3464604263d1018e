// Package server exposes tutoring sessions over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/alis/internal/logger"
	"github.com/abhisek/alis/internal/session"
	"github.com/abhisek/alis/internal/store"
	"github.com/abhisek/alis/internal/tutor"
)

// Sessions is the session API the handlers serve. *session.Dispatcher
// implements it.
type Sessions interface {
	Dispatch(ctx context.Context, key string, cmd tutor.Command) (tutor.Output, error)
	Get(ctx context.Context, key string) (tutor.Output, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, limit int) ([]session.Summary, error)
	Log(ctx context.Context, key string, opts store.QueryOpts) ([]store.LogEntry, error)
}

// Options configures a Server.
type Options struct {
	Addr        string
	CORSOrigins []string
}

// Server is the HTTP front end of the dispatcher.
type Server struct {
	sessions Sessions
	log      *logger.Logger
	opts     Options
	engine   *gin.Engine
}

// New builds the router.
func New(sessions Sessions, log *logger.Logger, opts Options) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{sessions: sessions, log: log.With("component", "http"), opts: opts}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(s.log))
	r.Use(CORS(opts.CORSOrigins))

	r.GET("/healthz", s.health)

	api := r.Group("/api")
	{
		api.GET("/sessions", s.listSessions)
		api.POST("/sessions", s.createSession)
		api.GET("/sessions/:key", s.getSession)
		api.DELETE("/sessions/:key", s.deleteSession)
		api.POST("/sessions/:key/events", s.dispatch)
		api.GET("/sessions/:key/log", s.sessionLog)
	}

	s.engine = r
	return s
}

// Handler returns the router for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

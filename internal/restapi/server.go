package restapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Limbo-corps/LimboDB/internal/engine"
	"github.com/Limbo-corps/LimboDB/internal/logging"
	"github.com/Limbo-corps/LimboDB/pkg/config"
)

// Server wraps an engine.Engine behind a small HTTP API: create/list
// databases, select the active one, and run statements against it.
// net/http serves requests concurrently, but the engine and its
// managers are not: every handler that touches eng holds engMu for the
// duration, serializing requests the same way the single-threaded REPL
// already does.
type Server struct {
	router     *gin.Engine
	eng        *engine.Engine
	engMu      sync.Mutex
	cfg        *config.Config
	httpServer *http.Server
	log        *logging.Logger
}

// NewServer builds a Server around eng, configured from cfg.RestAPI.
func NewServer(eng *engine.Engine, cfg *config.Config) *Server {
	log := logging.GetLogger("restapi")
	log.Info("initializing REST API server")

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware(log))

	if cfg.RestAPI.CORS {
		corsConfig := cors.Config{
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}
		if len(cfg.RestAPI.AllowOrigins) > 0 {
			corsConfig.AllowOrigins = cfg.RestAPI.AllowOrigins
		} else {
			corsConfig.AllowAllOrigins = true
		}
		router.Use(cors.New(corsConfig))
	}

	router.Use(MaxBodySizeMiddleware(DefaultBodyLimit))

	s := &Server{router: router, eng: eng, cfg: cfg, log: log}
	s.setupRoutes()
	return s
}

// requestIDMiddleware attaches a fresh correlation id to every request's
// log lines, the way the teacher's server correlates a session id across
// a request's handlers.
func requestIDMiddleware(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set("request_id", id)
		start := time.Now()
		c.Next()
		log.Debug("request handled", "request_id", id, "method", c.Request.Method,
			"path", c.Request.URL.Path, "status", c.Writer.Status(), "duration_ms", time.Since(start).Milliseconds())
	}
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/v1")
	{
		v1.GET("/health", s.health)
		v1.POST("/databases", s.createDatabase)
		v1.GET("/databases", s.listDatabases)
		v1.POST("/databases/:name/use", s.useDatabase)
		v1.POST("/databases/:name/query", s.runQuery)
	}
}

func (s *Server) health(c *gin.Context) {
	SuccessResponse(c, "ok", nil)
}

func (s *Server) createDatabase(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Name == "" {
		BadRequestError(c, "request body must be {\"name\": \"<database>\"}")
		return
	}

	s.engMu.Lock()
	err := s.eng.CreateDatabase(body.Name)
	s.engMu.Unlock()
	if err != nil {
		ConflictError(c, err.Error())
		return
	}
	CreatedResponse(c, fmt.Sprintf("database %q created", body.Name), nil)
}

func (s *Server) listDatabases(c *gin.Context) {
	s.engMu.Lock()
	names, err := s.eng.ListDatabases()
	s.engMu.Unlock()
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	SuccessResponse(c, fmt.Sprintf("%d database(s)", len(names)), names)
}

func (s *Server) useDatabase(c *gin.Context) {
	name := c.Param("name")
	s.engMu.Lock()
	_, err := s.eng.Use(name)
	s.engMu.Unlock()
	if err != nil {
		NotFoundError(c, err.Error())
		return
	}
	SuccessResponse(c, fmt.Sprintf("using database %q", name), nil)
}

func (s *Server) runQuery(c *gin.Context) {
	name := c.Param("name")
	var body struct {
		Statement string `json:"statement"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Statement == "" {
		BadRequestError(c, "request body must be {\"statement\": \"<sql>\"}")
		return
	}

	s.engMu.Lock()
	defer s.engMu.Unlock()

	db := s.eng.Current()
	if db == nil || db.Name != name {
		var err error
		db, err = s.eng.Use(name)
		if err != nil {
			NotFoundError(c, err.Error())
			return
		}
	}

	result, err := db.Executor.Execute(body.Statement)
	if err != nil {
		BadRequestError(c, err.Error())
		return
	}
	SuccessResponse(c, result.Message, gin.H{
		"columns": result.Columns,
		"rows":    result.Rows,
	})
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully within shutdownTimeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.RestAPI.Host, s.cfg.RestAPI.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting REST API server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("stopping REST API server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying Gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

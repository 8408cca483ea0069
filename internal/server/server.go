// Package server exposes batch screening over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/jobs"
	"github.com/spigell/cv-screener/internal/screening"
)

const (
	defaultListen         = ":5000"
	defaultMaxUploadBytes = 512 << 20
	shutdownTimeout       = 15 * time.Second
)

type Config struct {
	Listen         string
	UploadDir      string
	MaxUploadBytes int64
	FrontendURL    string
	Extensions     []string
	ShortlistSize  int
	Version        string
}

// JobStore tracks screening jobs. *jobs.Registry is the implementation used
// by the serve command.
type JobStore interface {
	Create(description string, mustHaves []string) jobs.Job
	SetTotal(id string, total int) error
	Progress(id string, processed int) error
	Complete(id string, candidates *screening.Candidates) error
	Fail(id string, err error) error
	Get(id string) (jobs.Job, error)
	Status(id string) (jobs.Status, error)
}

type Server struct {
	config   Config
	pipeline *screening.Pipeline
	registry JobStore
	logger   *zap.Logger
	router   *gin.Engine

	// ctx bounds background jobs; it is cancelled on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, pipeline *screening.Pipeline, registry JobStore, logger *zap.Logger) *Server {
	if cfg.Listen == "" {
		cfg.Listen = defaultListen
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(os.TempDir(), "cv-screener-uploads")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.ShortlistSize <= 0 {
		cfg.ShortlistSize = screening.DefaultShortlistSize
	}
	if registry == nil {
		registry = jobs.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   cfg,
		pipeline: pipeline,
		registry: registry,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 32 << 20
	r.Use(requestLogger(s.logger), gin.Recovery(), cors(s.config.FrontendURL))

	r.POST("/upload-zip", s.uploadZip)
	r.GET("/shortlist/:id", s.shortlist)
	r.GET("/job-status/:id", s.jobStatus)
	r.GET("/debug/job/:id", s.debugJob)
	r.GET("/health", s.health)

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down and waits for running jobs.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("listen", s.config.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close cancels background jobs and waits for them to clean up.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until all background jobs have finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func cors(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

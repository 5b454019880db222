// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sua-org/cam-timelapse/internal/core"
	"github.com/sua-org/cam-timelapse/internal/supervisor"
)

// StatusSource é o que o servidor lê do agendador.
type StatusSource interface {
	State() supervisor.ScheduleState
	LastCycle() (core.CycleResult, bool)
}

// Server expõe /health, /api/status, /api/cameras/:name e /metrics.
type Server struct {
	addr       string
	engine     *gin.Engine
	httpServer *http.Server
	source     StatusSource
	cameras    []core.Camera
	log        *slog.Logger
}

func New(addr string, source StatusSource, cameras []core.Camera, metrics http.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		addr:    addr,
		engine:  engine,
		source:  source,
		cameras: cameras,
		log:     slog.Default().With("component", "http"),
	}
	s.setupRoutes(metrics)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(metrics http.Handler) {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/api/status", s.handleStatus)
	s.engine.GET("/api/cameras/:name", s.handleCamera)
	if metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(metrics))
	}
}

// Handler é usado nos testes com httptest.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	state := s.source.State()
	status := "running"
	if state.Cancelled {
		status = "stopping"
	}
	resp := gin.H{
		"status":    status,
		"cameras":   len(s.cameras),
		"state":     state,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if last, ok := s.source.LastCycle(); ok {
		resp["last_cycle"] = gin.H{
			"id":          last.ID,
			"started_at":  last.StartedAt.UTC().Format(time.RFC3339),
			"duration_ms": last.Duration.Milliseconds(),
			"outcomes":    last.Outcomes,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCamera(c *gin.Context) {
	name := c.Param("name")
	var cam *core.Camera
	for i := range s.cameras {
		if s.cameras[i].ID == name {
			cam = &s.cameras[i]
			break
		}
	}
	if cam == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "camera_not_found",
			"message": fmt.Sprintf("camera %q is not configured", name),
		})
		return
	}

	resp := gin.H{"camera": cam}
	if last, ok := s.source.LastCycle(); ok {
		if out, ok := last.Outcomes[name]; ok {
			resp["cycle_id"] = last.ID
			resp["outcome"] = out
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Start serve até ctx terminar e então faz shutdown gracioso.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.log.Info("http server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

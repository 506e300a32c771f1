package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"marketfeed/config"
	"marketfeed/internal/channel"
	"marketfeed/internal/stream"
	"marketfeed/logger"
)

// Server hosts the HTTP status endpoint: liveness plus a JSON snapshot of
// stream states and queue occupancy for dashboards and probes.
type Server struct {
	cfg        config.StatusConfig
	app        config.MarketfeedConfig
	scheduler  *stream.Scheduler
	channels   *channel.Channels
	httpServer *http.Server
	startedAt  time.Time
	log        *logger.Entry
}

// NewServer constructs the status server when the feature is enabled.
// When disabled the returned server is nil and callers skip it.
func NewServer(cfg config.StatusConfig, app config.MarketfeedConfig, scheduler *stream.Scheduler, channels *channel.Channels, log *logger.Log) *Server {
	if !cfg.Enabled {
		return nil
	}

	cfg.Address = normalizeAddress(cfg.Address)

	return &Server{
		cfg:       cfg,
		app:       app,
		scheduler: scheduler,
		channels:  channels,
		log:       log.WithComponent("status-server"),
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.TestMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealth)
	router.GET("/api/status", s.handleStatus)
	router.GET("/api/streams", s.handleStreams)
	router.GET("/api/queue", s.handleQueue)

	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}

	s.startedAt = time.Now()
	s.httpServer = &http.Server{Handler: router}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Status server stopped unexpectedly")
		}
	}()

	s.log.WithFields(logger.Fields{"address": listener.Addr().String()}).Info("Status server listening")
	return nil
}

// Stop shuts the listener down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.WithError(err).Warn("Status server shutdown failed")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	length, capacity := s.channels.Depth()
	c.JSON(http.StatusOK, gin.H{
		"name":       s.app.Name,
		"version":    s.app.Version,
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
		"streams":    s.streamStates(),
		"queue": gin.H{
			"length":   length,
			"capacity": capacity,
		},
	})
}

func (s *Server) handleStreams(c *gin.Context) {
	c.JSON(http.StatusOK, s.streamStates())
}

func (s *Server) handleQueue(c *gin.Context) {
	stats := s.channels.GetStats()
	length, capacity := s.channels.Depth()
	c.JSON(http.StatusOK, gin.H{
		"length":   length,
		"capacity": capacity,
		"sent":     stats.EventsSent,
		"consumed": stats.EventsConsumed,
		"aborted":  stats.SendAborted,
	})
}

func (s *Server) streamStates() map[string]string {
	states := make(map[string]string)
	for name, state := range s.scheduler.States() {
		states[name] = state.String()
	}
	return states
}

func normalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ":8880"
	}
	if !strings.Contains(address, ":") {
		return ":" + address
	}
	return address
}

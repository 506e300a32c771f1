package stream

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"marketfeed/config"
	"marketfeed/logger"
)

// BuildStreamList expands the configured symbols into the stream names to
// subscribe: one kline stream at the configured interval plus one ticker
// stream per symbol. Stream names are lowercase per the exchange contract.
func BuildStreamList(symbols []string, klineInterval string) []string {
	streams := make([]string, 0, len(symbols)*2)
	for _, symbol := range symbols {
		s := strings.ToLower(strings.TrimSpace(symbol))
		if s == "" {
			continue
		}
		streams = append(streams, s+"@kline_"+klineInterval)
		streams = append(streams, s+"@ticker")
	}
	return streams
}

// Partition splits streams into contiguous chunks of at most groupSize,
// preserving order. Every stream lands in exactly one chunk.
func Partition(streams []string, groupSize int) [][]string {
	if groupSize <= 0 {
		groupSize = 1
	}
	groups := make([][]string, 0, (len(streams)+groupSize-1)/groupSize)
	for start := 0; start < len(streams); start += groupSize {
		end := start + groupSize
		if end > len(streams) {
			end = len(streams)
		}
		groups = append(groups, streams[start:end])
	}
	return groups
}

// Scheduler owns one connection per stream group and drives their shared
// lifecycle. All groups feed the same handler.
type Scheduler struct {
	config  config.StreamsConfig
	wsBase  string
	handler Handler

	mu      sync.Mutex
	conns   []*Conn
	running bool
	log     *logger.Entry
	logRoot *logger.Log
}

func NewScheduler(cfg config.StreamsConfig, wsBase string, handler Handler, log *logger.Log) *Scheduler {
	return &Scheduler{
		config:  cfg,
		wsBase:  wsBase,
		handler: handler,
		log:     log.WithComponent("stream-scheduler"),
		logRoot: log,
	}
}

// Start partitions the configured streams and opens one connection per
// group. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	streams := BuildStreamList(s.config.Symbols, s.config.KlineInterval)
	if len(streams) == 0 {
		return fmt.Errorf("no streams to subscribe")
	}

	groups := Partition(streams, s.config.GroupSize)
	s.log.WithFields(logger.Fields{
		"streams": len(streams),
		"groups":  len(groups),
	}).Info("Starting stream groups")

	opts := Options{
		ReconnectDelay: s.config.ReconnectDelay,
		ReadTimeout:    s.config.ReadTimeout,
		PingInterval:   s.config.PingInterval,
	}

	s.conns = make([]*Conn, 0, len(groups))
	for i, group := range groups {
		name := fmt.Sprintf("group-%d", i)
		url := CombinedStreamURL(s.wsBase, group)
		conn := NewConn(name, url, s.handler, opts, s.logRoot)
		conn.Start(ctx)
		s.conns = append(s.conns, conn)
	}
	s.running = true
	return nil
}

// Stop closes every group connection and waits for their loops to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.running = false
	s.mu.Unlock()

	for _, conn := range conns {
		conn.Stop()
	}
	s.log.Info("All stream groups stopped")
}

// States reports the lifecycle state of each group connection, for the
// periodic health report.
func (s *Scheduler) States() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[string]State, len(s.conns))
	for _, conn := range s.conns {
		states[conn.name] = conn.State()
	}
	return states
}

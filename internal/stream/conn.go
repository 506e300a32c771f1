package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"marketfeed/logger"
	"marketfeed/models"
)

// State tracks where a connection is in its lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Handler consumes one decoded frame. A returned error is logged and the
// connection keeps reading; it never tears the socket down.
type Handler func(msg models.RawStreamMessage) error

// Options tune a single connection. Zero values fall back to defaults
// suitable for Binance combined streams.
type Options struct {
	ReconnectDelay time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
}

func (o *Options) applyDefaults() {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = time.Minute
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 20 * time.Second
	}
}

// Conn is one websocket connection to a combined stream endpoint. It owns
// its reconnect loop: any read failure moves it to reconnecting and it
// dials again after a fixed delay until the context is cancelled.
type Conn struct {
	name    string
	url     string
	handler Handler
	opts    Options

	state  int32
	mu     sync.Mutex
	ws     *websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logger.Entry
}

// CombinedStreamURL builds the combined-stream endpoint for the given
// stream names, e.g. wss://host/stream?streams=a@kline_1h/b@ticker.
func CombinedStreamURL(wsBase string, streams []string) string {
	return strings.TrimRight(wsBase, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

func NewConn(name, url string, handler Handler, opts Options, log *logger.Log) *Conn {
	opts.applyDefaults()
	return &Conn{
		name:    name,
		url:     url,
		handler: handler,
		opts:    opts,
		log: log.WithComponent("stream-conn").WithFields(logger.Fields{
			"connection": name,
		}),
	}
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() State {
	return State(atomic.LoadInt32(&c.state))
}

func (c *Conn) setState(s State) {
	atomic.StoreInt32(&c.state, int32(s))
}

// Start launches the connection loop. It returns immediately; dialing and
// reading happen on a background goroutine until Stop or ctx cancellation.
func (c *Conn) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(runCtx)
}

// Stop closes the socket and waits for the loop to exit.
func (c *Conn) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	ws := c.ws
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if ws != nil {
		ws.Close()
	}
	c.wg.Wait()
	c.setState(StateDisconnected)
}

func (c *Conn) run(ctx context.Context) {
	defer c.wg.Done()

	for {
		c.setState(StateConnecting)
		ws, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return
			}
			c.log.WithError(err).Warn("Dial failed, scheduling reconnect")
		} else {
			c.setState(StateConnected)
			c.log.WithFields(logger.Fields{"url": c.url}).Info("Stream connected")

			err = c.readLoop(ctx, ws)
			ws.Close()
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return
			}
			c.log.WithError(err).Warn("Stream read failed, scheduling reconnect")
		}

		c.setState(StateReconnecting)
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	return ws, nil
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	})

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go c.pingLoop(pingCtx, ws)

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		logger.IncrementStreamRead(len(message))
		c.dispatch(message)
	}
}

func (c *Conn) pingLoop(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// dispatch decodes one frame and hands it to the handler. Handler errors
// and panics are contained here so one bad message never kills the feed.
func (c *Conn) dispatch(message []byte) {
	var msg models.RawStreamMessage
	if err := json.Unmarshal(message, &msg); err != nil || len(msg.Data) == 0 {
		// Not a combined-stream envelope; pass the raw payload through.
		msg = models.RawStreamMessage{Data: message}
	}
	msg.Timestamp = time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.log.WithFields(logger.Fields{
				"stream": msg.Stream,
				"panic":  fmt.Sprintf("%v", r),
			}).Error("Handler panicked on stream message")
		}
	}()

	if err := c.handler(msg); err != nil {
		c.log.WithError(err).WithFields(logger.Fields{
			"stream": msg.Stream,
		}).Warn("Handler rejected stream message")
	}
}

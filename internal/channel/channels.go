package channel

import (
	"context"
	"sync"

	"marketfeed/logger"
	"marketfeed/models"
)

type ChannelStats struct {
	EventsSent     int64
	EventsConsumed int64
	SendAborted    int64
}

// Channels owns the bounded queue between the dispatcher and the event
// processor. Sends block when the queue is full so bursts apply
// backpressure upstream instead of losing events.
type Channels struct {
	Events chan models.IngestionEvent

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(eventBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Events: make(chan models.IngestionEvent, eventBufferSize),
		log:    log,
	}

	log.WithComponent("event_channels").WithFields(logger.Fields{
		"event_buffer_size": eventBufferSize,
	}).Info("Event channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Events)
	c.log.WithComponent("event_channels").Info("Event channels closed")
}

func (c *Channels) IncrementEventsSent() {
	c.statsMutex.Lock()
	c.stats.EventsSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementEventsConsumed() {
	c.statsMutex.Lock()
	c.stats.EventsConsumed++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementSendAborted() {
	c.statsMutex.Lock()
	c.stats.SendAborted++
	c.statsMutex.Unlock()
}

// SendEvent enqueues an event, blocking while the queue is full. It
// returns false only when ctx is cancelled before the event is accepted.
func (c *Channels) SendEvent(ctx context.Context, event models.IngestionEvent) bool {
	select {
	case c.Events <- event:
		c.IncrementEventsSent()
		return true
	case <-ctx.Done():
		c.IncrementSendAborted()
		return false
	}
}

// Depth reports the current queue occupancy for the metrics report.
func (c *Channels) Depth() (length, capacity int) {
	return len(c.Events), cap(c.Events)
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

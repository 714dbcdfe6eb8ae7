package handler

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/hertz-contrib/sse"
	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/events"
)

// StreamHandler drains the domain event queue into a server-sent event
// stream. Events are transient; a client that connects late sees only what
// happens from then on.
type StreamHandler struct {
	queue *events.Queue
}

func NewStreamHandler(queue *events.Queue) *StreamHandler {
	return &StreamHandler{queue: queue}
}

// Stream serves the live update feed.
func (h *StreamHandler) Stream(ctx context.Context, c *app.RequestContext) {
	stream := sse.NewStream(c)

	for {
		select {
		case ev, ok := <-h.queue.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				hlog.Warnf("marshal stream event: %v", err)
				continue
			}
			if err := stream.Publish(&sse.Event{
				Event: ev.Type,
				Data:  data,
			}); err != nil {
				// Client went away.
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

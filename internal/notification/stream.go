package notification

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const heartbeatInterval = 15 * time.Second

// Subscriber is the subscription surface of a Hub.
type Subscriber interface {
	Subscribe(fn func(Update)) (unsubscribe func())
	Done() <-chan struct{}
}

// StreamHandler serves wallet updates as server-sent events.
type StreamHandler struct {
	hub Subscriber
}

// NewStreamHandler builds an SSE handler over hub.
func NewStreamHandler(hub Subscriber) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// Events streams `update` events until the client disconnects or the hub closes.
func (h *StreamHandler) Events(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	updates := make(chan Update, listenerCapacity)
	unsubscribe := h.hub.Subscribe(func(u Update) {
		select {
		case updates <- u:
		default:
		}
	})
	done := h.hub.Done()

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()
		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil || w.Flush() != nil {
			return
		}
		for {
			select {
			case <-done:
				return
			case u := <-updates:
				payload, err := json.Marshal(u)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", TopicUpdate, payload)
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}

package bots

import (
	"context"
	"sync"
	"time"
)

// redeliveryWindow is how long a message id is remembered. Slack retries an
// event up to three times within a few minutes when the first delivery is slow.
const redeliveryWindow = 10 * time.Minute

// MessageHandler turns an incoming chat message into a reply.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg IncomingMessage) (*OutgoingMessage, error)
}

// Gateway sits between the platform handlers and the command processor and
// drops redelivered messages, so a retried "ask" never posts a question twice.
type Gateway struct {
	handler MessageHandler
	now     func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewGateway(handler MessageHandler) *Gateway {
	return &Gateway{handler: handler, now: time.Now, seen: map[string]time.Time{}}
}

// Process hands msg to the handler. It returns a nil reply and no error
// when msg was already processed.
func (g *Gateway) Process(ctx context.Context, msg IncomingMessage) (*OutgoingMessage, error) {
	if msg.MessageID != "" && !g.firstDelivery(string(msg.Platform)+"/"+msg.ChannelID+"/"+msg.MessageID) {
		return nil, nil
	}
	return g.handler.HandleMessage(ctx, msg)
}

func (g *Gateway) firstDelivery(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, at := range g.seen {
		if now.Sub(at) > redeliveryWindow {
			delete(g.seen, k)
		}
	}
	if _, ok := g.seen[key]; ok {
		return false
	}
	g.seen[key] = now
	return true
}

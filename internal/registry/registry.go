// Package registry tracks consumer-server subscribers and their per-client
// bounded broadcast queues. It is adapted from the project's in-memory
// session store idiom (RWMutex-guarded map, logged on every mutation),
// generalized here to connected clients instead of cooking sessions.
package registry

import (
	"sync"

	"github.com/hammamikhairi/ottocook/internal/domain"
	"github.com/hammamikhairi/ottocook/internal/logger"
)

// QueueDepth is the per-client bounded queue depth, ~1.28s of audio at
// 80ms per frame, per spec §4.5.
const QueueDepth = 16

// Client is one subscribed consumer connection's outbound queue. Kick
// carries a disconnect reason when the registry evicts a client (e.g. a
// slow-consumer overflow); the connection's writer goroutine must select
// on it alongside Queue.
type Client struct {
	ID    string
	Queue chan []byte
	Kick  chan string
}

// Registry is an in-memory, concurrency-safe set of connected consumer
// clients. Safe for concurrent access from the acceptor goroutine and the
// capture/detection broadcast path.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logger.Logger
}

// New creates an empty Registry.
func New(log *logger.Logger) *Registry {
	return &Registry{clients: make(map[string]*Client), log: log}
}

// Add registers a new subscribed client with a fresh bounded queue.
// Returns domain.ErrAlreadyExists if the id is already registered.
func (r *Registry) Add(id string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[id]; ok {
		return nil, domain.ErrAlreadyExists
	}
	c := &Client{ID: id, Queue: make(chan []byte, QueueDepth), Kick: make(chan string, 1)}
	r.clients[id] = c
	r.log.Debug("registry: client %s subscribed (total=%d)", id, len(r.clients))
	return c, nil
}

// Remove unregisters a client, e.g. on disconnect or slow-consumer drop.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
	r.log.Debug("registry: client %s removed (total=%d)", id, len(r.clients))
}

// Broadcast performs a non-blocking send of payload to every client's
// queue. Clients whose queue is full are reported back to the caller so
// it can disconnect them with a slow-consumer error, per spec §4.5 —
// capture must never block on a slow subscriber.
func (r *Registry) Broadcast(payload []byte) (overflowed []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, c := range r.clients {
		select {
		case c.Queue <- payload:
		default:
			overflowed = append(overflowed, id)
		}
	}
	return overflowed
}

// Evict removes a client and wakes its connection handler with reason so
// it can send an Error frame and close the socket.
func (r *Registry) Evict(id, reason string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	select {
	case c.Kick <- reason:
	default:
	}
	r.log.Debug("registry: client %s evicted: %s", id, reason)
}

// Count returns the number of currently registered clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

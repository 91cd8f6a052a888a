// Package memory contains an in-memory publisher for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/awwvision/internal/scrape"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []scrape.StoredEvent
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// PublishStored records the event.
func (p *Publisher) PublishStored(_ context.Context, event scrape.StoredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns the recorded publishes.
func (p *Publisher) Events() []scrape.StoredEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]scrape.StoredEvent, len(p.events))
	copy(out, p.events)
	return out
}

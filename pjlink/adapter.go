package pjlink

import "sync"

// Adapter decouples protocol delivery from application frame pacing. It
// subscribes to a Projector's responses on whatever Pool worker goroutine
// raises them, deep-copies each into a producer queue under a mutex, and
// lets the application thread drain a consumer queue on its own schedule
// by calling Drain.
type Adapter struct {
	mx       sync.Mutex
	producer []*Command
}

// NewAdapter creates an Adapter subscribed to p's responses.
func NewAdapter(p *Projector) *Adapter {
	a := &Adapter{}
	p.OnResponse(a.onResponse)
	return a
}

func (a *Adapter) onResponse(cmd *Command) {
	clone := cmd.Clone()
	a.mx.Lock()
	a.producer = append(a.producer, clone)
	a.mx.Unlock()
}

// Drain atomically swaps the producer queue for an empty one and returns
// what had accumulated since the last Drain, in arrival order. Intended to
// be called once per application tick.
func (a *Adapter) Drain() []*Command {
	a.mx.Lock()
	consumer := a.producer
	a.producer = nil
	a.mx.Unlock()
	return consumer
}

// Package identity models the external identity provider: who is signed in, and the
// events it emits when that changes.
package identity

import (
	"context"
	"sync"
)

type EventType string

const (
	EventSignedIn       EventType = "signedIn"
	EventTokenRefreshed EventType = "tokenRefreshed"
	EventSignedOut      EventType = "signedOut"
)

type Identity struct {
	AccountId string `json:"account_id"`
	Email     string `json:"email"`
}

type Event struct {
	Type     EventType
	Identity *Identity
}

// Provider is the identity source consumed by the session controller.
// CurrentIdentity returns nil without error when nobody is signed in.
type Provider interface {
	CurrentIdentity(ctx context.Context) (*Identity, error)
	Subscribe(fn func(Event)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// Hub is an in-process Provider. Events are delivered synchronously, in subscription order.
type Hub struct {
	mu      sync.Mutex
	current *Identity
	subs    map[int]func(Event)
	order   []int
	next    int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(Event))}
}

func (h *Hub) CurrentIdentity(ctx context.Context) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return nil, nil
	}
	c := *h.current
	return &c, nil
}

func (h *Hub) Subscribe(fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.order = append(h.order, id)
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			for i, v := range h.order {
				if v == id {
					h.order = append(h.order[:i], h.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (h *Hub) SignIn(id Identity) {
	h.set(&id, EventSignedIn)
}

// Refresh re-announces the current identity; it is a no-op when nobody is signed in.
func (h *Hub) Refresh() {
	h.mu.Lock()
	current := h.current
	h.mu.Unlock()
	if current == nil {
		return
	}
	h.publish(Event{Type: EventTokenRefreshed, Identity: copyIdentity(current)})
}

func (h *Hub) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.set(nil, EventSignedOut)
	return nil
}

func (h *Hub) set(id *Identity, t EventType) {
	h.mu.Lock()
	h.current = id
	h.mu.Unlock()
	h.publish(Event{Type: t, Identity: copyIdentity(id)})
}

func (h *Hub) publish(ev Event) {
	h.mu.Lock()
	fns := make([]func(Event), 0, len(h.order))
	for _, id := range h.order {
		fns = append(fns, h.subs[id])
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func copyIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

// Static is a Provider for a single request: the identity is fixed and no events are ever emitted.
type Static struct {
	Identity *Identity
}

func (s Static) CurrentIdentity(ctx context.Context) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return copyIdentity(s.Identity), nil
}

func (s Static) Subscribe(func(Event)) func() { return func() {} }

func (s Static) SignOut(context.Context) error { return nil }

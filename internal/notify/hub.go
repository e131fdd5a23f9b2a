package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is pushed to a user's open application tabs.
//
// Types: "show" (Notification set), "close" (Tag set), "focus", "permission"
// (the tab should prompt the user and reconnect with the answer).
type Event struct {
	Type         string        `json:"type"`
	Notification *Notification `json:"notification,omitempty"`
	Tag          string        `json:"tag,omitempty"`
	At           time.Time     `json:"at"`
}

// Hub fans events out to the tabs each user has open.
//
// Publish never blocks: subscribers use buffered channels and a slow
// subscriber drops events.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[string]*subscriber
}

type subscriber struct {
	ch   chan Event
	perm Permission
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[string]*subscriber{}}
}

// Subscribe registers a tab for userID that reported perm as its notification
// permission. The returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe(userID string, perm Permission, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	id := uuid.NewString()
	sub := &subscriber{ch: make(chan Event, buffer), perm: perm}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = map[string]*subscriber{}
	}
	h.subs[userID][id] = sub
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(sub.ch)
		})
	}
	return sub.ch, unsub
}

// Publish delivers e to every tab of userID and returns how many accepted it.
func (h *Hub) Publish(userID string, e Event) int {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	// Sends are non-blocking, so holding the read lock keeps unsubscribe
	// from closing a channel mid-send without stalling it.
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, s := range h.subs[userID] {
		select {
		case s.ch <- e:
			n++
		default:
		}
	}
	return n
}

// Permission aggregates the permission reported by the user's tabs: granted
// if any tab granted it, denied if any refused and none granted.
func (h *Hub) Permission(userID string) Permission {
	h.mu.RLock()
	defer h.mu.RUnlock()
	perm := PermissionDefault
	for _, s := range h.subs[userID] {
		switch s.perm {
		case PermissionGranted:
			return PermissionGranted
		case PermissionDenied:
			perm = PermissionDenied
		}
	}
	return perm
}

// Subscribers returns the number of open tabs for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Runtime returns a notification Runtime bound to userID's tabs.
func (h *Hub) Runtime(userID string) Runtime {
	return hubRuntime{hub: h, userID: userID}
}

type hubRuntime struct {
	hub    *Hub
	userID string
}

func (r hubRuntime) Supported() bool { return true }

func (r hubRuntime) RequestPermission(ctx context.Context) (Permission, error) {
	perm := r.hub.Permission(r.userID)
	if perm == PermissionDefault {
		r.hub.Publish(r.userID, Event{Type: "permission"})
	}
	return perm, nil
}

func (r hubRuntime) Show(ctx context.Context, n Notification) error {
	r.hub.Publish(r.userID, Event{Type: "show", Notification: &n, Tag: n.Tag})
	return nil
}

func (r hubRuntime) Close(tag string) {
	r.hub.Publish(r.userID, Event{Type: "close", Tag: tag})
}

func (r hubRuntime) Focus() {
	r.hub.Publish(r.userID, Event{Type: "focus"})
}

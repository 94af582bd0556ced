package auth

import (
	"sync"

	"github.com/MarcoPoloResearchLab/marinet/internal/records"
)

// Event names the auth transition delivered to listeners.
type Event string

const (
	EventSignedIn    Event = "SIGNED_IN"
	EventSignedOut   Event = "SIGNED_OUT"
	EventUserUpdated Event = "USER_UPDATED"
)

// Listener receives auth transitions. user is nil when signed out.
type Listener func(event Event, user *records.Profile)

// Subject is the registry of auth listeners. Delivery is synchronous, on the publishing
// goroutine, in registration order.
type Subject struct {
	mu          sync.Mutex
	subscribers []subscriber
	nextID      int64
	closed      bool
}

type subscriber struct {
	id       int64
	listener Listener
}

// Subscription removes its listener when unsubscribed.
type Subscription struct {
	subject *Subject
	id      int64
	once    sync.Once
}

// NewSubject constructs an open registry.
func NewSubject() *Subject {
	return &Subject{}
}

// Subscribe registers listener. Subscribing to a closed subject yields an inert subscription.
func (s *Subject) Subscribe(listener Listener) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || listener == nil {
		return &Subscription{}
	}
	s.nextID++
	s.subscribers = append(s.subscribers, subscriber{id: s.nextID, listener: listener})
	return &Subscription{subject: s, id: s.nextID}
}

// Publish delivers the event to every listener registered at the time of the call.
func (s *Subject) Publish(event Event, user *records.Profile) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	listeners := make([]Listener, 0, len(s.subscribers))
	for _, entry := range s.subscribers {
		listeners = append(listeners, entry.listener)
	}
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(event, cloneProfile(user))
	}
}

// Len reports the number of registered listeners.
func (s *Subject) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Close drops every listener; later publishes are ignored.
func (s *Subject) Close() {
	s.mu.Lock()
	s.closed = true
	s.subscribers = nil
	s.mu.Unlock()
}

func (s *Subject) unsubscribe(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for index, entry := range s.subscribers {
		if entry.id == id {
			s.subscribers = append(s.subscribers[:index], s.subscribers[index+1:]...)
			return
		}
	}
}

// Unsubscribe removes the listener. Calling it more than once is harmless.
func (sub *Subscription) Unsubscribe() {
	if sub == nil || sub.subject == nil {
		return
	}
	sub.once.Do(func() {
		sub.subject.unsubscribe(sub.id)
	})
}

func cloneProfile(profile *records.Profile) *records.Profile {
	if profile == nil {
		return nil
	}
	copied := *profile
	return &copied
}

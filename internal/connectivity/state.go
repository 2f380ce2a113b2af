// Package connectivity reports whether the remote store is reachable and
// notifies observers when that changes.
package connectivity

import (
	"sync"
)

// Oracle is the read side used by the dispatcher and the synchronizer.
type Oracle interface {
	Online() bool
	// Subscribe delivers every transition. The func unsubscribes.
	Subscribe() (<-chan bool, func())
}

const subscriberBuffer = 8

// State is a settable Oracle. Set only emits when the value changes.
type State struct {
	mu     sync.Mutex
	online bool
	subs   map[int]chan bool
	nextID int
}

func NewState(online bool) *State {
	return &State{online: online, subs: make(map[int]chan bool)}
}

func (s *State) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Set records the new state and reports whether it was a transition.
func (s *State) Set(online bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.online == online {
		return false
	}
	s.online = online
	for _, ch := range s.subs {
		select {
		case ch <- online:
		default:
			// Full: drop the oldest event so the setter never blocks.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
	return true
}

func (s *State) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, subscriberBuffer)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

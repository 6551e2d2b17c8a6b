// Package roster keeps the list of users online in the chat service and the
// websocket listener that feeds it.
package roster

import "sync"

// State is the latest roster received. Each update replaces the whole list.
type State struct {
	mu      sync.RWMutex
	users   []string
	subs    map[int]chan []string
	nextSub int
}

// NewState returns an empty roster.
func NewState() *State {
	return &State{subs: make(map[int]chan []string)}
}

// Replace swaps in users and notifies subscribers. The slice is copied.
func (s *State) Replace(users []string) {
	cp := make([]string, len(users))
	copy(cp, users)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = cp
	for _, ch := range s.subs {
		// keep only the newest roster in a slow subscriber's buffer
		select {
		case <-ch:
		default:
		}
		ch <- cp
	}
}

// Snapshot returns a copy of the current roster, empty before the first update.
func (s *State) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.users))
	copy(out, s.users)
	return out
}

// Subscribe returns a channel receiving every later roster. Receivers must not
// modify the slices. cancel closes the channel.
func (s *State) Subscribe() (<-chan []string, func()) {
	ch := make(chan []string, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

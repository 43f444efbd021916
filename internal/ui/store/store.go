package store

import "sync"

// Listener observes committed mutations together with the resulting state.
type Listener func(Mutation, State)

// Store holds the shared UI state. Commits are serialised; readers get
// copies.
type Store struct {
	mu        sync.RWMutex
	state     State
	listeners map[int]Listener
	nextID    int
}

// New constructs a Store seeded with DefaultState.
func New() *Store {
	return NewWithState(DefaultState())
}

// NewWithState constructs a Store seeded with initial.
func NewWithState(initial State) *Store {
	return &Store{
		state:     initial.Clone(),
		listeners: make(map[int]Listener),
	}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Commit applies m and notifies subscribers outside the lock.
func (s *Store) Commit(m Mutation) State {
	if m == nil {
		return s.State()
	}

	s.mu.Lock()
	next := m.Apply(s.state.Clone())
	s.state = next
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(m, next.Clone())
	}
	return next.Clone()
}

// Replace swaps the whole state, as when a browser app hydrates from the
// snapshot rendered by the server.
func (s *Store) Replace(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st.Clone()
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

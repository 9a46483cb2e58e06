package conversation

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnknownMessage is returned when an update targets an id that is not in the log
	ErrUnknownMessage = errors.New("unknown message id")
	// ErrMessageClosed is returned when an update targets a message that is not the open stream
	ErrMessageClosed = errors.New("message is not open for streaming")
)

// State is the ordered message log plus the current pipeline phase.
// The pipeline mutates it; views read snapshots and subscribe to events.
type State struct {
	mu        sync.RWMutex
	messages  []Message
	index     map[string]int
	openID    string
	phase     Phase
	listeners []subscription
	nextSub   int
	now       func() time.Time
}

// NewState creates an empty conversation in the idle phase
func NewState() *State {
	return &State{
		index: make(map[string]int),
		phase: PhaseIdle,
		now:   time.Now,
	}
}

// Subscribe registers a listener and returns a function that removes it
func (s *State) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners = append(s.listeners, subscription{id: id, fn: l})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Notify publishes an event to every listener
func (s *State) Notify(ev Event) {
	s.mu.RLock()
	subs := s.listeners
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(ev)
	}
}

// Append adds a message to the end of the log, assigning an id and timestamp when missing
func (s *State) Append(m Message) Message {
	s.mu.Lock()
	m = s.appendLocked(m)
	s.mu.Unlock()

	s.notifyMessage(EventMessageAppended, m)
	return m
}

// OpenStream appends an empty assistant text message whose text may later be
// replaced with UpdateByID. Opening a new stream closes the previous one.
func (s *State) OpenStream() Message {
	s.mu.Lock()
	m := s.appendLocked(AssistantText(""))
	s.openID = m.ID
	s.mu.Unlock()

	s.notifyMessage(EventMessageAppended, m)
	return m
}

// CloseStream freezes the open streaming message if id matches it
func (s *State) CloseStream(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openID == id {
		s.openID = ""
	}
}

// UpdateByID replaces the text of the open streaming message in place
func (s *State) UpdateByID(id, text string) (Message, error) {
	s.mu.Lock()
	pos, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return Message{}, ErrUnknownMessage
	}
	if s.openID != id {
		s.mu.Unlock()
		return Message{}, ErrMessageClosed
	}
	s.messages[pos].Text = text
	m := s.messages[pos]
	s.mu.Unlock()

	s.notifyMessage(EventMessageUpdated, m)
	return m, nil
}

// Messages returns a snapshot of the log in order
func (s *State) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the log
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Phase returns the current pipeline phase
func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// SetPhase changes the phase and publishes phase-changed when it differs
func (s *State) SetPhase(p Phase) {
	s.mu.Lock()
	if s.phase == p {
		s.mu.Unlock()
		return
	}
	s.phase = p
	s.mu.Unlock()

	s.Notify(Event{Type: EventPhaseChanged, Phase: p})
}

// Clear empties the whole log
func (s *State) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.index = make(map[string]int)
	s.openID = ""
	s.mu.Unlock()

	s.Notify(Event{Type: EventReset})
}

func (s *State) appendLocked(m Message) Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now()
	}
	if m.Table != nil {
		table := *m.Table
		m.Table = &table
	}
	s.index[m.ID] = len(s.messages)
	s.messages = append(s.messages, m)
	return m
}

func (s *State) notifyMessage(t EventType, m Message) {
	s.Notify(Event{Type: t, Message: &m})
}

type subscription struct {
	id int
	fn Listener
}

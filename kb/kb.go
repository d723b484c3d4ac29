package kb

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/signalsfoundry/decay-simulator/model"
)

var (
	// ErrBodyExists indicates a body with the same name is already registered.
	ErrBodyExists = errors.New("central body already exists")
	// ErrBodyNotFound indicates a requested body is not in the catalog.
	ErrBodyNotFound = errors.New("central body not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventBodySelected EventType = iota
)

// Event is emitted to subscribers when the selected body changes.
type Event struct {
	Type EventType
	Body model.CentralBody
}

// KnowledgeBase is an in-memory, thread-safe catalog of central bodies with a
// single selected body.
type KnowledgeBase struct {
	// notifyMu orders selections with their notifications, so subscribers
	// see changes in the same order they were applied.
	notifyMu sync.Mutex
	mu       sync.RWMutex

	bodies   map[string]model.CentralBody
	selected string

	subs map[int]func(Event)
	next int
}

// NewKnowledgeBase constructs a catalog seeded with the built-in bodies and
// EARTH selected.
func NewKnowledgeBase() *KnowledgeBase {
	kb := &KnowledgeBase{
		bodies: make(map[string]model.CentralBody),
		subs:   make(map[int]func(Event)),
	}
	for _, b := range []model.CentralBody{model.Earth, model.Moon, model.Mars, model.Venus} {
		kb.bodies[b.Name] = b
	}
	kb.selected = model.Earth.Name
	return kb
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// AddBody registers a new body. Names are case-insensitive.
func (kb *KnowledgeBase) AddBody(b model.CentralBody) error {
	b.Name = normalize(b.Name)
	if b.Name == "" {
		return fmt.Errorf("%w: body name is required", model.ErrInvalidConfiguration)
	}
	if err := b.Validate(); err != nil {
		return err
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.bodies[b.Name]; exists {
		return fmt.Errorf("%w: %q", ErrBodyExists, b.Name)
	}
	kb.bodies[b.Name] = b
	return nil
}

// GetBody looks up a body by name.
func (kb *KnowledgeBase) GetBody(name string) (model.CentralBody, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	b, ok := kb.bodies[normalize(name)]
	if !ok {
		return model.CentralBody{}, fmt.Errorf("%w: %q", ErrBodyNotFound, name)
	}
	return b, nil
}

// ListBodies returns all bodies sorted by name.
func (kb *KnowledgeBase) ListBodies() []model.CentralBody {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.CentralBody, 0, len(kb.bodies))
	for _, b := range kb.bodies {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// Selected returns the currently selected body.
func (kb *KnowledgeBase) Selected() model.CentralBody {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.bodies[kb.selected]
}

// Select makes the named body current and notifies subscribers. Selecting the
// already-selected body is a no-op and does not notify. Concurrent selections
// are serialised, so the last event delivered always names Selected().
// Subscribers must not call Select.
func (kb *KnowledgeBase) Select(name string) (model.CentralBody, error) {
	kb.notifyMu.Lock()
	defer kb.notifyMu.Unlock()

	kb.mu.Lock()
	b, ok := kb.bodies[normalize(name)]
	if !ok {
		kb.mu.Unlock()
		return model.CentralBody{}, fmt.Errorf("%w: %q", ErrBodyNotFound, name)
	}
	if b.Name == kb.selected {
		kb.mu.Unlock()
		return b, nil
	}
	kb.selected = b.Name
	subs := make([]func(Event), 0, len(kb.subs))
	for _, fn := range kb.subs {
		subs = append(subs, fn)
	}
	kb.mu.Unlock()

	// Subscribers may read the catalog, so mu is released first.
	event := Event{Type: EventBodySelected, Body: b}
	for _, sub := range subs {
		sub(event)
	}
	return b, nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.next
	kb.next++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

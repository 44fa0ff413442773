package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"video2notes/internal/services"
)

var (
	// ErrAlreadyResolved reports a second resolution for the same checkpoint.
	ErrAlreadyResolved = errors.New("checkpoint already resolved")
	// ErrNoCheckpoint reports a resolution for a stage that is not waiting.
	ErrNoCheckpoint = errors.New("no open checkpoint for stage")
	// ErrDuplicate reports an Open for a stage that already has one open.
	ErrDuplicate = errors.New("checkpoint already open for stage")
)

// Checkpoint is a single-use rendezvous between a stage waiting for user input
// and the resolver supplying it.
type Checkpoint struct {
	Stage    string
	Kind     Kind
	Prompt   json.RawMessage
	OpenedAt time.Time

	result    chan json.RawMessage
	deadline  time.Time
	resolved  bool
	cancelled bool
}

// Prompt is the externally visible view of an open checkpoint.
type Prompt struct {
	Stage    string          `json:"stage"`
	Kind     Kind            `json:"kind"`
	Prompt   json.RawMessage `json:"prompt"`
	OpenedAt time.Time       `json:"opened_at"`
	Deadline *time.Time      `json:"deadline,omitempty"`
}

// Manager tracks open checkpoints keyed by stage id.
type Manager struct {
	mu       sync.Mutex
	open     map[string]*Checkpoint
	answered map[string]struct{}
	now      func() time.Time
}

// NewManager constructs an empty manager.
func NewManager() *Manager {
	return &Manager{
		open:     make(map[string]*Checkpoint),
		answered: make(map[string]struct{}),
		now:      time.Now,
	}
}

// Open registers a checkpoint for stageID. The prompt is marshalled to JSON
// immediately so later mutation by the caller has no effect.
func (m *Manager) Open(stageID string, kind Kind, prompt any) (*Checkpoint, error) {
	raw, err := json.Marshal(prompt)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint prompt: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.open[stageID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, stageID)
	}
	delete(m.answered, stageID)
	cp := &Checkpoint{
		Stage:    stageID,
		Kind:     kind,
		Prompt:   raw,
		OpenedAt: m.now().UTC(),
		result:   make(chan json.RawMessage, 1),
	}
	m.open[stageID] = cp
	return cp, nil
}

// Await blocks until cp is resolved, cancelled, ctx ends, or timeout elapses.
// A zero timeout waits indefinitely. The checkpoint is discarded on return.
func (m *Manager) Await(ctx context.Context, cp *Checkpoint, timeout time.Duration) (json.RawMessage, error) {
	if cp == nil {
		return nil, ErrNoCheckpoint
	}
	defer m.discard(cp)

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
		m.mu.Lock()
		cp.deadline = m.now().Add(timeout).UTC()
		m.mu.Unlock()
	}

	select {
	case payload, ok := <-cp.result:
		if !ok {
			return nil, services.Wrap(services.ErrCancelled, cp.Stage, "await checkpoint", "checkpoint cancelled", nil)
		}
		return payload, nil
	case <-ctx.Done():
		return nil, services.Wrap(services.ErrCancelled, cp.Stage, "await checkpoint", "", ctx.Err())
	case <-timer:
		return nil, services.Wrap(services.ErrTimeout, cp.Stage, "await checkpoint",
			fmt.Sprintf("no response within %s", timeout), nil)
	}
}

// Resolve validates payload and hands it to the waiting stage. An invalid
// payload leaves the checkpoint open.
func (m *Manager) Resolve(stageID string, payload json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.open[stageID]
	if !ok {
		if _, done := m.answered[stageID]; done {
			return fmt.Errorf("%w: %s", ErrAlreadyResolved, stageID)
		}
		return fmt.Errorf("%w: %s", ErrNoCheckpoint, stageID)
	}
	if cp.resolved || cp.cancelled {
		return fmt.Errorf("%w: %s", ErrAlreadyResolved, stageID)
	}
	if err := validatePayload(cp.Kind, payload); err != nil {
		return services.Wrap(services.ErrValidation, stageID, "resolve checkpoint", err.Error(), nil)
	}
	if err := checkAgainstPrompt(cp.Kind, cp.Prompt, payload); err != nil {
		return services.Wrap(services.ErrValidation, stageID, "resolve checkpoint", err.Error(), nil)
	}
	cp.resolved = true
	m.answered[stageID] = struct{}{}
	cp.result <- append(json.RawMessage(nil), payload...)
	close(cp.result)
	return nil
}

// Cancel unblocks the waiter for stageID without a payload.
func (m *Manager) Cancel(stageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cp, ok := m.open[stageID]; ok {
		m.cancelLocked(cp)
	}
}

// CancelAll unblocks every open checkpoint.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cp := range m.open {
		m.cancelLocked(cp)
	}
}

// Pending lists open, unresolved checkpoints ordered by open time.
func (m *Manager) Pending() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Prompt, 0, len(m.open))
	for _, cp := range m.open {
		if cp.resolved || cp.cancelled {
			continue
		}
		p := Prompt{
			Stage:    cp.Stage,
			Kind:     cp.Kind,
			Prompt:   append(json.RawMessage(nil), cp.Prompt...),
			OpenedAt: cp.OpenedAt,
		}
		if !cp.deadline.IsZero() {
			d := cp.deadline
			p.Deadline = &d
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// Answered reports whether stageID's last checkpoint was resolved with a
// payload.
func (m *Manager) Answered(stageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.answered[stageID]
	return ok
}

// Forget clears the resolved marker for stageID, typically at the start of a
// new run.
func (m *Manager) Forget(stageID string) {
	m.mu.Lock()
	delete(m.answered, stageID)
	m.mu.Unlock()
}

// Reset drops all resolved markers.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.answered = make(map[string]struct{})
	m.mu.Unlock()
}

func (m *Manager) cancelLocked(cp *Checkpoint) {
	if cp.resolved || cp.cancelled {
		return
	}
	cp.cancelled = true
	close(cp.result)
	delete(m.open, cp.Stage)
}

func (m *Manager) discard(cp *Checkpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.open[cp.Stage]; ok && current == cp {
		delete(m.open, cp.Stage)
		if !cp.resolved && !cp.cancelled {
			cp.cancelled = true
			close(cp.result)
		}
	}
}

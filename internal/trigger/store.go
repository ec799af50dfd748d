package trigger

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Store is the authoritative in-memory trigger set, keyed by ID. The
// synchronizer replaces the whole set when the remote ID set differs;
// control-plane mutations apply in place and remote state wins on the
// next pass.
type Store struct {
	mu       sync.RWMutex
	triggers map[string]*Trigger

	defaultCooldown int
	logger          *zap.Logger
}

func NewStore(defaultCooldownSeconds int, logger *zap.Logger) *Store {
	return &Store{
		triggers:        make(map[string]*Trigger),
		defaultCooldown: defaultCooldownSeconds,
		logger:          logger,
	}
}

// Create validates and inserts a new trigger, assigning it an ID.
// A trigger without conditions would match every flow and is rejected.
func (s *Store) Create(t *Trigger) (*Trigger, error) {
	if t.Conditions.Empty() {
		return nil, fmt.Errorf("trigger must have conditions")
	}
	if t.Action.Type == "" {
		t.Action.Type = ActionLog
	}
	if t.CooldownSeconds <= 0 {
		t.CooldownSeconds = s.defaultCooldown
	}
	t.ID = NewID()

	s.mu.Lock()
	s.triggers[t.ID] = t
	s.mu.Unlock()

	s.logger.Info("created trigger", zap.String("id", t.ID), zap.String("name", t.Name))
	return t, nil
}

// Patch is a partial trigger update; nil fields are left untouched.
type Patch struct {
	Name            *string     `json:"name"`
	Enabled         *bool       `json:"enabled"`
	CooldownSeconds *int        `json:"cooldown_seconds"`
	Conditions      *Conditions `json:"conditions"`
	Action          *Action     `json:"action"`
}

// Update applies a shallow merge to an existing trigger.
func (s *Store) Update(id string, p Patch) (*Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.triggers[id]
	if !ok {
		return nil, fmt.Errorf("trigger %s not found", id)
	}
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Enabled != nil {
		t.Enabled = *p.Enabled
	}
	if p.CooldownSeconds != nil {
		t.CooldownSeconds = *p.CooldownSeconds
	}
	if p.Conditions != nil {
		if p.Conditions.Empty() {
			return nil, fmt.Errorf("trigger conditions must not be empty")
		}
		t.Conditions = *p.Conditions
	}
	if p.Action != nil {
		t.Action = *p.Action
	}
	return t, nil
}

// Delete removes a trigger, reporting whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.triggers[id]; !ok {
		return false
	}
	delete(s.triggers, id)
	return true
}

// Get returns a trigger by ID.
func (s *Store) Get(id string) (*Trigger, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.triggers[id]
	return t, ok
}

// List returns all triggers sorted by name.
func (s *Store) List() []*Trigger {
	s.mu.RLock()
	out := make([]*Trigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Enabled returns the enabled triggers.
func (s *Store) Enabled() []*Trigger {
	var out []*Trigger
	for _, t := range s.List() {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out
}

// HasRateTriggers reports whether any enabled trigger carries a rate
// condition, i.e. whether aggregate evaluation has work to do.
func (s *Store) HasRateTriggers() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.triggers {
		if t.Enabled && t.Conditions.HasRateCondition() {
			return true
		}
	}
	return false
}

// ReplaceIfChanged atomically swaps the trigger set when the incoming ID
// set differs from the current one. Returns whether a swap happened;
// reconciliation with an identical ID set is a no-op, keeping repeated
// synchronizer passes idempotent.
func (s *Store) ReplaceIfChanged(triggers []*Trigger) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(triggers) == len(s.triggers) {
		same := true
		for _, t := range triggers {
			if _, ok := s.triggers[t.ID]; !ok {
				same = false
				break
			}
		}
		if same {
			return false
		}
	}

	next := make(map[string]*Trigger, len(triggers))
	for _, t := range triggers {
		if t.CooldownSeconds <= 0 {
			t.CooldownSeconds = s.defaultCooldown
		}
		next[t.ID] = t
	}
	s.triggers = next
	return true
}

// Len returns the trigger count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.triggers)
}

package patientflow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/pkg/clock"
)

// Change is one record rewritten by a store mutation.
type Change struct {
	Before Patient
	After  Patient
}

// Store is the authoritative in-memory patient collection. Every write holds
// the store lock for its whole read-modify-write, so rules fired from
// different timers never interleave on the same record.
type Store struct {
	mu    sync.RWMutex
	order []uuid.UUID
	byID  map[uuid.UUID]Patient
	clock clock.Clock
}

// NewStore returns an empty store stamping UpdatedAt from clk.
func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{byID: make(map[uuid.UUID]Patient), clock: clk}
}

// Insert adds a new patient.
func (s *Store) Insert(p Patient) error {
	if p.QueueID == uuid.Nil {
		return fmt.Errorf("queue_id is required")
	}
	if err := validateNew(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.QueueID]; ok {
		return fmt.Errorf("%s: %w", p.QueueID, ErrDuplicate)
	}
	now := s.clock.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.byID[p.QueueID] = p.Clone()
	s.order = append(s.order, p.QueueID)
	return nil
}

// Replace overwrites the record with the same queue_id.
func (s *Store) Replace(p Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byID[p.QueueID]
	if !ok {
		return fmt.Errorf("%s: %w", p.QueueID, ErrNotFound)
	}
	if err := checkReplace(old, p); err != nil {
		return err
	}
	p.UpdatedAt = s.clock.Now()
	s.byID[p.QueueID] = p.Clone()
	return nil
}

// Update applies fn to a copy of the record and stores the result if fn
// returns nil. The read, fn and the write happen under one lock.
func (s *Store) Update(id uuid.UUID, fn func(p *Patient) error) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byID[id]
	if !ok {
		return Change{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	next := old.Clone()
	if err := fn(&next); err != nil {
		return Change{}, err
	}
	if err := checkReplace(old, next); err != nil {
		return Change{}, err
	}
	next.UpdatedAt = s.clock.Now()
	s.byID[id] = next.Clone()
	return Change{Before: old, After: next}, nil
}

// MapAll runs fn over every patient in insertion order as a single atomic
// pass and commits the records fn reports as changed. A rewrite that breaks a
// record invariant is dropped and reported in the returned error; the rest of
// the pass still commits.
func (s *Store) MapAll(fn func(p Patient) (Patient, bool)) ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var changes []Change
	var errs []error
	for _, id := range s.order {
		old := s.byID[id]
		next, changed := fn(old.Clone())
		if !changed {
			continue
		}
		if err := checkReplace(old, next); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		next.UpdatedAt = now
		s.byID[id] = next.Clone()
		changes = append(changes, Change{Before: old, After: next})
	}
	return changes, errors.Join(errs...)
}

// Get returns a copy of one patient.
func (s *Store) Get(id uuid.UUID) (Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return Patient{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

// All returns copies of every patient in insertion order.
func (s *Store) All() []Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Patient, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// Len returns the number of patients.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func validateNew(p Patient) error {
	if !p.Status.Valid() {
		return fmt.Errorf("%q: %w", p.Status, ErrInvalidStatus)
	}
	if p.Severity < 1 || p.Severity > 10 {
		return ErrInvalidSeverity
	}
	if p.PatientName == "" || p.NHSNumber == "" {
		return fmt.Errorf("patient_name and nhs_number are required")
	}
	return nil
}

// checkReplace enforces the record invariants between two versions of the
// same patient.
func checkReplace(old, next Patient) error {
	if next.QueueID != old.QueueID {
		return fmt.Errorf("queue_id: %w", ErrImmutableField)
	}
	if next.PatientName != old.PatientName {
		return fmt.Errorf("patient_name: %w", ErrImmutableField)
	}
	if next.NHSNumber != old.NHSNumber {
		return fmt.Errorf("nhs_number: %w", ErrImmutableField)
	}
	if next.Severity != old.Severity {
		return fmt.Errorf("severity: %w", ErrImmutableField)
	}
	if !next.CreatedAt.Equal(old.CreatedAt) {
		return fmt.Errorf("created_at: %w", ErrImmutableField)
	}
	if !next.Status.Valid() {
		return fmt.Errorf("%q: %w", next.Status, ErrInvalidStatus)
	}
	if !setOnce(old.DispatchTime, next.DispatchTime) {
		return fmt.Errorf("dispatch_time: %w", ErrLegAlreadyStarted)
	}
	if !setOnce(old.PrepTabDispatchTime, next.PrepTabDispatchTime) {
		return fmt.Errorf("prep_tab_dispatch_time: %w", ErrLegAlreadyStarted)
	}
	if len(next.AmbulanceUpdates) < len(old.AmbulanceUpdates) {
		return ErrAppendOnly
	}
	for i, u := range old.AmbulanceUpdates {
		n := next.AmbulanceUpdates[i]
		if !n.Timestamp.Equal(u.Timestamp) || n.Text != u.Text || n.Video != u.Video {
			return ErrAppendOnly
		}
	}
	return nil
}

// setOnce allows nil -> value and value -> same value, nothing else.
func setOnce(old, next *time.Time) bool {
	if old == nil {
		return true
	}
	return next != nil && next.Equal(*old)
}

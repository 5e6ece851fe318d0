// Package activity holds the recent activity history the anticipation
// pipeline analyzes on every tick.
package activity

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidActivity is returned when an event has out-of-range or missing fields
var ErrInvalidActivity = errors.New("invalid activity")

// DefaultCapacity is the ring buffer size used when none is configured
const DefaultCapacity = 1000

// Event is a timestamped record of what the user was doing. Events are
// immutable once recorded.
type Event struct {
	ID              string                 `json:"id"`
	Timestamp       time.Time              `json:"timestamp"`
	Type            string                 `json:"activity_type"`
	Context         map[string]interface{} `json:"context,omitempty"`
	DurationSeconds float64                `json:"duration_seconds"`
	Intensity       float64                `json:"intensity"`
}

// NormalizeType folds an activity type to the form used for matching
func NormalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// Validate checks the range constraints of an event
func (e Event) Validate() error {
	if strings.TrimSpace(e.Type) == "" {
		return fmt.Errorf("%w: activity type is required", ErrInvalidActivity)
	}
	if math.IsNaN(e.Intensity) || e.Intensity < 0 || e.Intensity > 1 {
		return fmt.Errorf("%w: intensity %v outside [0,1]", ErrInvalidActivity, e.Intensity)
	}
	if math.IsNaN(e.DurationSeconds) || math.IsInf(e.DurationSeconds, 0) || e.DurationSeconds < 0 {
		return fmt.Errorf("%w: duration %v must be a non-negative number", ErrInvalidActivity, e.DurationSeconds)
	}
	return nil
}

// Store is an append-only ring buffer of recent events. The oldest event is
// evicted once capacity is reached.
type Store struct {
	mu       sync.RWMutex
	buf      []Event
	head     int // index of the oldest event
	size     int
	capacity int
	now      func() time.Time
}

// NewStore creates a store holding at most capacity events. now supplies
// timestamps for events recorded without one.
func NewStore(capacity int, now func() time.Time) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		buf:      make([]Event, capacity),
		capacity: capacity,
		now:      now,
	}
}

// Record validates and appends an event, returning its id. Missing ids and
// timestamps are filled in. Nothing is stored when validation fails.
func (s *Store) Record(e Event) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	e.Type = NormalizeType(e.Type)
	e.Context = copyContext(e.Context)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size < s.capacity {
		s.buf[(s.head+s.size)%s.capacity] = e
		s.size++
	} else {
		s.buf[s.head] = e
		s.head = (s.head + 1) % s.capacity
	}

	return e.ID, nil
}

// Recent returns up to n most recent events, oldest first
func (s *Store) Recent(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || s.size == 0 {
		return []Event{}
	}
	if n > s.size {
		n = s.size
	}

	out := make([]Event, n)
	start := s.size - n
	for i := 0; i < n; i++ {
		out[i] = s.buf[(s.head+start+i)%s.capacity]
	}
	return out
}

// Len returns the number of stored events
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Capacity returns the configured capacity
func (s *Store) Capacity() int {
	return s.capacity
}

func copyContext(in map[string]interface{}) map[string]interface{} {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

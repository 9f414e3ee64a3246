package sandbox

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/countersign/internal/workflow"
)

const defaultSubscriberCapacity = 16

// Record is one envelope the sandbox accepted.
type Record struct {
	ID         string            `json:"id"`
	RequestID  string            `json:"request_id,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
	Envelope   workflow.Envelope `json:"envelope"`
}

// Store keeps accepted envelopes in memory and fans them out to subscribers.
type Store struct {
	mu          sync.RWMutex
	records     map[string]Record
	failNext    int
	failStatus  int
	subscribers map[chan Record]struct{}
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		records:     map[string]Record{},
		subscribers: map[chan Record]struct{}{},
	}
}

// FailNext makes the next n submissions fail with status (500 when zero).
func (s *Store) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if status == 0 {
		status = 500
	}
	s.failNext = n
	s.failStatus = status
}

// takeFailure consumes one scheduled failure.
func (s *Store) takeFailure() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext == 0 {
		return 0, false
	}
	s.failNext--
	return s.failStatus, true
}

// Add stores env and notifies subscribers. Slow subscribers miss records
// rather than block the request.
func (s *Store) Add(env workflow.Envelope, requestID string, now time.Time) Record {
	rec := Record{
		ID:         "env_" + uuid.NewString(),
		RequestID:  requestID,
		ReceivedAt: now,
		Envelope:   env,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	for ch := range s.subscribers {
		select {
		case ch <- rec:
		default:
		}
	}
	return rec
}

// Get returns the record with id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// List returns records ordered by arrival, optionally filtered to one
// signer email.
func (s *Store) List(signerEmail string) []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if signerEmail == "" || hasSigner(rec.Envelope, signerEmail) {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	return out
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Subscribe returns a channel receiving every record added from now on and
// a function that ends the subscription.
func (s *Store) Subscribe() (<-chan Record, func()) {
	ch := make(chan Record, defaultSubscriberCapacity)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func hasSigner(env workflow.Envelope, email string) bool {
	for _, sg := range env.Signers {
		if sg.Email == email {
			return true
		}
	}
	return false
}

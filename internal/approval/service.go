package approval

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/e-m-dev/remedy/internal/eventbus"
	"github.com/google/uuid"
)

var (
	// ErrTimeout means the approval was not resolved before its deadline.
	ErrTimeout = errors.New("approval timed out")

	// ErrDenied means an approver explicitly rejected the request.
	ErrDenied = errors.New("approval denied")

	// ErrNotFound means no pending request exists for the given id.
	ErrNotFound = errors.New("approval request not found")
)

// Request is one pending approval gate inside a run.
type Request struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	NodeID      string    `json:"node_id"`
	Message     string    `json:"message"`
	RequestedAt time.Time `json:"requested_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Resolution is the decision made on a request.
type Resolution struct {
	Approved bool
	Approver string
	Comment  string
}

// Service tracks pending approval requests and delivers their resolutions to
// the suspended run. Resolutions arrive asynchronously (operator UI, NATS);
// the waiting run picks whichever of resolution, timeout, or cancellation
// comes first.
type Service struct {
	sink eventbus.Sink

	mu       sync.Mutex
	pending  map[string]chan Resolution
	requests map[string]*Request
}

// NewService creates an approval service publishing request events through
// the given sink.
func NewService(sink eventbus.Sink) *Service {
	return &Service{
		sink:     sink,
		pending:  make(map[string]chan Resolution),
		requests: make(map[string]*Request),
	}
}

// Wait registers an approval request and blocks until it is resolved, the
// timeout elapses, or the context is cancelled.
func (s *Service) Wait(ctx context.Context, runID, nodeID, message string, timeout time.Duration) (Resolution, error) {
	request := &Request{
		ID:          uuid.NewString(),
		RunID:       runID,
		NodeID:      nodeID,
		Message:     message,
		RequestedAt: time.Now().UTC(),
		ExpiresAt:   time.Now().UTC().Add(timeout),
	}

	ch := make(chan Resolution, 1)

	s.mu.Lock()
	s.pending[request.ID] = ch
	s.requests[request.ID] = request
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, request.ID)
		delete(s.requests, request.ID)
		s.mu.Unlock()
	}()

	if err := s.sink.Publish(eventbus.SubjectApprovalRequested, request); err != nil {
		log.Printf("Warning: failed to publish approval request %s: %v", request.ID, err)
	}

	log.Printf("[Approval] Waiting on request %s (run %s, node %s, timeout %s)",
		request.ID, runID, nodeID, timeout)

	select {
	case resolution := <-ch:
		if !resolution.Approved {
			return resolution, ErrDenied
		}
		return resolution, nil
	case <-time.After(timeout):
		return Resolution{}, ErrTimeout
	case <-ctx.Done():
		return Resolution{}, ctx.Err()
	}
}

// Resolve delivers a decision to the run waiting on the given request.
func (s *Service) Resolve(approvalID string, approved bool, approver, comment string) error {
	s.mu.Lock()
	ch, ok := s.pending[approvalID]
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	resolution := Resolution{Approved: approved, Approver: approver, Comment: comment}

	select {
	case ch <- resolution:
		log.Printf("[Approval] Request %s resolved: approved=%v by %s", approvalID, approved, approver)
		return nil
	default:
		// Already resolved
		return ErrNotFound
	}
}

// Pending returns copies of all outstanding approval requests.
func (s *Service) Pending() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*Request, 0, len(s.requests))
	for _, r := range s.requests {
		snapshot := *r
		result = append(result, &snapshot)
	}
	return result
}

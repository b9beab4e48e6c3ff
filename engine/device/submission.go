package device

import (
	"context"
	"sync"
)

// Submission tracks the completion of a Submit call.
type Submission interface {
	// Done returns a channel that is closed once the submission has finished.
	//
	// Returns:
	//   - <-chan struct{}: the completion channel
	Done() <-chan struct{}

	// Wait blocks until the submission finishes or ctx is done. Cancelling ctx stops the
	// wait, not the work already enqueued on the device.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//
	// Returns:
	//   - error: the submission's error, or ctx.Err() if the wait was abandoned
	Wait(ctx context.Context) error

	// Err returns the submission's error. It is nil until Done is closed.
	//
	// Returns:
	//   - error: the pass failure, or nil on success or while still running
	Err() error
}

// submission is the implementation of the Submission interface shared by every device.
type submission struct {
	done chan struct{}
	once sync.Once
	mu   sync.Mutex
	err  error
}

var _ Submission = &submission{}

// NewSubmission creates a pending Submission together with the function that completes it.
// Only the first call to the complete function has an effect.
//
// Returns:
//   - Submission: the pending submission
//   - func(error): completes the submission with the given error (nil for success)
func NewSubmission() (Submission, func(error)) {
	s := &submission{done: make(chan struct{})}
	return s, s.complete
}

// Completed returns a Submission that has already finished with err.
//
// Parameters:
//   - err: the completion error, or nil
//
// Returns:
//   - Submission: the finished submission
func Completed(err error) Submission {
	s, complete := NewSubmission()
	complete(err)
	return s
}

func (s *submission) complete(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *submission) Done() <-chan struct{} {
	return s.done
}

func (s *submission) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *submission) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

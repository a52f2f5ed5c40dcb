package runtime

import "sync"

// shares counts the owner's reference to an engine object plus one reference
// per dependent handle. The object is freed exactly once, when the count
// reaches zero, so a parent is never freed before its children.
type shares struct {
	free   func() error
	n      int
	closed bool
	mu     sync.Mutex
}

func newShares(free func() error) *shares {
	return &shares{n: 1, free: free}
}

// acquire takes a dependent reference. It fails once the owner has closed.
func (s *shares) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.n == 0 {
		return false
	}
	s.n++
	return true
}

// release drops one reference and frees the object on the last one.
func (s *shares) release() error {
	s.mu.Lock()
	s.n--
	last := s.n == 0
	s.mu.Unlock()
	if last {
		return s.free()
	}
	return nil
}

// closeOwner drops the owner's reference. Only the first call does anything.
func (s *shares) closeOwner() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.release()
}

func (s *shares) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// dependents returns the number of references held by other handles.
func (s *shares) dependents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.n
	}
	return s.n - 1
}

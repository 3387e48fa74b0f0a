package protocol

// Sequence tags outbound frames. The zero value starts at 0.
// It is not safe for concurrent use; the owning device serializes access.
type Sequence struct {
	next byte
}

// Next returns the current value and advances, wrapping 255 -> 0.
func (s *Sequence) Next() byte {
	v := s.next
	s.next++
	return v
}

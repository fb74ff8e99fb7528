package codec

import "sync"

// DuplicateFilter tracks the last accepted sequence number per transmitter
// address and drops exact retransmissions: same sequence number with the
// retry bit set.
type DuplicateFilter struct {
	mu   sync.Mutex
	last map[[6]byte]uint16
}

// NewDuplicateFilter returns an empty filter.
func NewDuplicateFilter() *DuplicateFilter {
	return &DuplicateFilter{last: make(map[[6]byte]uint16)}
}

// Accept reports whether a frame from sender with the given sequence
// number and retry bit should be processed (true) or dropped as a
// duplicate (false). Every call stores seq as the sender's last sequence
// number, retried or not. Only that one number is kept per sender, so a
// retry of any older sequence number is accepted.
func (d *DuplicateFilter) Accept(sender [6]byte, seq uint16, retry bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, seen := d.last[sender]
	d.last[sender] = seq
	if seen && retry && seq == prev {
		return false
	}
	return true
}

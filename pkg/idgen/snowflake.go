package idgen

import (
	"errors"
	"strconv"
	"sync"
)

// ID layout, most significant bit first:
//
//	1 bit   sign, always zero
//	41 bits milliseconds since Epoch
//	10 bits node
//	12 bits per-millisecond sequence
const (
	nodeBits     = 10
	sequenceBits = 12

	maxNodeID   = 1<<nodeBits - 1
	maxSequence = 1<<sequenceBits - 1

	nodeShift      = sequenceBits
	timestampShift = sequenceBits + nodeBits

	// Epoch is 2024-01-01T00:00:00Z in milliseconds.
	Epoch = 1704067200000
)

var (
	ErrNodeIDTooLarge = errors.New("node ID out of range")
	ErrClockMovedBack = errors.New("clock moved backwards")
)

// Snowflake hands out time-ordered 64-bit IDs that are unique per node.
type Snowflake struct {
	mu       sync.Mutex
	clock    Clock
	nodeID   int64
	lastTime int64
	sequence int64
}

// New creates a generator for nodeID. A nil clock means the system clock.
func New(nodeID int64, clock Clock) (*Snowflake, error) {
	if nodeID < 0 || nodeID > maxNodeID {
		return nil, ErrNodeIDTooLarge
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Snowflake{clock: clock, nodeID: nodeID, lastTime: -1}, nil
}

// Next returns the next ID. It fails if the clock went backwards since the
// previous call, so an ID is never handed out twice.
func (s *Snowflake) Next() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	switch {
	case now < s.lastTime:
		return 0, ErrClockMovedBack
	case now == s.lastTime:
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// sequence space for this millisecond is used up
			for now <= s.lastTime {
				now = s.clock.Now()
			}
		}
	default:
		s.sequence = 0
	}
	s.lastTime = now

	return (now-Epoch)<<timestampShift | s.nodeID<<nodeShift | s.sequence, nil
}

// NewID returns Next formatted as a decimal string.
func (s *Snowflake) NewID() (string, error) {
	id, err := s.Next()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// Decompose splits an ID into its timestamp (ms since Unix epoch), node and sequence.
func Decompose(id int64) (ms, node, seq int64) {
	ms = id>>timestampShift + Epoch
	node = id >> nodeShift & maxNodeID
	seq = id & maxSequence
	return ms, node, seq
}

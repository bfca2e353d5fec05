package offline

import (
	"sync/atomic"
	"time"
)

// IDGenerator derives message ids from the send time and a wrapping counter
// so ids issued within the same second stay distinct. Only the low 16 bits of
// the seconds survive, so ids repeat after about 18 hours; NextFree skips the
// ones still in use.
type IDGenerator struct {
	counter atomic.Uint32
	now     func() time.Time
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

func (g *IDGenerator) Next() uint32 {
	n := g.counter.Add(1)
	return uint32(g.now().Unix()<<16) | (n & 0xFFFF)
}

// NextFree returns the next id for which taken reports false.
func (g *IDGenerator) NextFree(taken func(uint32) bool) uint32 {
	for {
		id := g.Next()
		if taken == nil || !taken(id) {
			return id
		}
	}
}

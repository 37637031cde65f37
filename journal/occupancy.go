package journal

import "github.com/bits-and-blooms/bitset"

// Occupancy is a read-only snapshot of which log-relative blocks within
// [first, first+maxlen) are currently in use by a transaction awaiting
// checkpoint, versus free for allocation. It exists for diagnostics - the
// jbd2info CLI reports it - and is recomputed on demand rather than
// maintained incrementally, since it is never on the commit hot path.
type Occupancy struct {
	First  uint32
	MaxLen uint32
	inUse  *bitset.BitSet
}

// InUse reports whether log-relative block index i (already wrapped into
// [0, MaxLen)) is occupied.
func (o *Occupancy) InUse(i uint32) bool {
	if o.inUse == nil {
		return false
	}
	return o.inUse.Test(uint(i))
}

// Count returns the number of occupied blocks.
func (o *Occupancy) Count() uint {
	if o.inUse == nil {
		return 0
	}
	return o.inUse.Count()
}

// occupancy builds an Occupancy snapshot of the journal's current window:
// every block from Start up to (but excluding) the space manager's next
// free block is in use.
func (j *Journal) occupancy() *Occupancy {
	o := &Occupancy{First: j.sb.First, MaxLen: j.sb.MaxLen, inUse: bitset.New(uint(j.sb.MaxLen))}

	if j.sb.Start == 0 || j.sb.Start == j.space.last {
		return o
	}

	pos := j.sb.Start
	for {
		o.inUse.Set(uint(pos - j.sb.First))
		next := wrapLog(j.sb, pos+1)
		if next == j.space.last {
			break
		}
		pos = next
	}
	return o
}

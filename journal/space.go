package journal

// spaceManager tracks the circular window of log blocks
// [sb.First, sb.First+sb.MaxLen) and hands out the next free block to
// transactions being built. It never allocates past Start except by first
// running a checkpoint purge, since Start is the oldest block the log still
// needs in order to recover.
type spaceManager struct {
	sb     *Superblock
	purge  func(flush, once bool) error
	first  uint32 // log-relative first usable block, copied from sb.First
	maxLen uint32 // copied from sb.MaxLen
	last   uint32 // log-relative next block to hand out
}

// newSpaceManager builds a space manager over sb. purge is called when the
// log is full; it is expected to run a checkpoint pass that advances
// sb.Start, which free up room for allocBlock to proceed.
func newSpaceManager(sb *Superblock, purge func(flush, once bool) error) *spaceManager {
	last := sb.Start
	if last == 0 {
		last = sb.First
	}
	return &spaceManager{
		sb:     sb,
		purge:  purge,
		first:  sb.First,
		maxLen: sb.MaxLen,
		last:   last,
	}
}

// wrap folds a log-relative block index back into [first, first+maxLen).
func (m *spaceManager) wrap(block uint32) uint32 {
	limit := m.first + m.maxLen
	if block >= limit {
		block = m.first + (block-m.first)%m.maxLen
	}
	return block
}

// allocBlock hands out the next free log block and advances last past it.
// If the circular buffer has caught up with Start (no free blocks remain)
// it first asks the checkpoint queue to checkpoint and release its oldest
// transaction (a flushing purge that stops after one), then fails with
// ErrLogFull if that still didn't free any room.
func (m *spaceManager) allocBlock() (uint32, error) {
	next := m.wrap(m.last + 1)
	if next == m.sb.Start && m.sb.Start != 0 {
		if m.purge != nil {
			if err := m.purge(true, true); err != nil {
				return 0, err
			}
		}
		if next == m.sb.Start {
			return 0, ErrLogFull
		}
	}
	block := m.last
	m.last = next
	return block, nil
}

// reset reloads last from the superblock's current Start, used after
// recovery or a fresh Mount establishes where the log actually begins.
func (m *spaceManager) reset() {
	last := m.sb.Start
	if last == 0 {
		last = m.sb.First
	}
	m.last = last
}

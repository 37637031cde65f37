package journal

import "fmt"

// dirtyBlock is one block a transaction has been asked to write atomically:
// its home location plus the bytes that should land there.
type dirtyBlock struct {
	homeBlock uint64
	data      []byte
}

// Transaction accumulates block writes and revokes between Begin and
// Commit. Only one Transaction may be open on a Journal at a time.
type Transaction struct {
	id         uint32
	startBlock uint32 // log-relative block of this transaction's descriptor
	allocated  uint32 // blocks handed out to this transaction so far

	dirty   []dirtyBlock
	revoked []uint64

	committed  bool
	writtenCnt int // how many of dirty[] have been checkpointed back to their home LBA
}

// dataCnt is the number of dirty blocks this transaction writes back to
// their home locations at checkpoint. It does not shrink as blocks are
// written back; writtenCnt counts those.
func (t *Transaction) dataCnt() int { return len(t.dirty) }

// MarkDirty records that homeBlock should be overwritten with data once the
// transaction commits. Calling it twice for the same home block keeps only
// the most recent data, matching a filesystem re-dirtying a buffer before
// flush.
func (t *Transaction) MarkDirty(homeBlock uint64, data []byte) error {
	if t.committed {
		return NewProtocolMisuseError("MarkDirty called on a committed transaction")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	for i := range t.dirty {
		if t.dirty[i].homeBlock == homeBlock {
			t.dirty[i].data = buf
			return nil
		}
	}
	t.dirty = append(t.dirty, dirtyBlock{homeBlock: homeBlock, data: buf})
	return nil
}

// Revoke records that homeBlock must not be replayed by this transaction or
// any transaction with a lower trans-id, typically because the block has
// been freed and reallocated to something recovery must not overwrite.
func (t *Transaction) Revoke(homeBlock uint64) error {
	if t.committed {
		return NewProtocolMisuseError("Revoke called on a committed transaction")
	}
	t.revoked = append(t.revoked, homeBlock)
	return nil
}

// Dirty reports whether the transaction has any work to commit.
func (t *Transaction) Dirty() bool {
	return len(t.dirty) > 0 || len(t.revoked) > 0
}

func (t *Transaction) String() string {
	return fmt.Sprintf("transaction{id=%d, dirty=%d, revoked=%d}", t.id, len(t.dirty), len(t.revoked))
}

package journal

// checkpointQueue is the FIFO of committed transactions that have not yet
// been fully checkpointed: their data blocks may still only exist in the
// log, not yet written back to their home locations. The log cannot reuse
// a transaction's blocks until it leaves this queue.
type checkpointQueue struct {
	items []*Transaction
}

func (q *checkpointQueue) push(t *Transaction) {
	q.items = append(q.items, t)
}

func (q *checkpointQueue) front() *Transaction {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *checkpointQueue) popFront() {
	if len(q.items) == 0 {
		return
	}
	q.items = q.items[1:]
}

func (q *checkpointQueue) empty() bool {
	return len(q.items) == 0
}

// purgeHost is implemented by Journal; it is the checkpoint queue's only
// way to touch the device and the superblock.
type purgeHost interface {
	// checkpointWriteback writes every not-yet-written dirty block of t to
	// its home LBA and sets t.writtenCnt to len(t.dirty).
	checkpointWriteback(t *Transaction) error
	advanceStart(block uint32, transID uint32)
}

// purge walks the checkpoint queue from the front:
//
//   - while the front transaction T has no dirty blocks left to write back,
//     or (flush is set and every dirty block has already been written back),
//     advance Start past T and pop it; stop after one pop if once is set.
//   - otherwise, if flush is not set, advance Start only to the start of T
//     (the oldest transaction the log still needs) and stop without popping.
//   - otherwise, write back T's remaining dirty blocks and loop, which will
//     immediately pop T since it now has nothing left to write.
func (q *checkpointQueue) purge(host purgeHost, flush, once bool) error {
	for {
		t := q.front()
		if t == nil {
			return nil
		}

		if t.dataCnt() == 0 || (flush && t.writtenCnt == t.dataCnt()) {
			host.advanceStart(t.startBlock+t.allocated, t.id+1)
			q.popFront()
			if once {
				return nil
			}
			continue
		}

		if !flush {
			host.advanceStart(t.startBlock, t.id)
			return nil
		}

		if err := host.checkpointWriteback(t); err != nil {
			return err
		}
	}
}

package journal

import (
	"encoding/binary"
	"errors"
)

// logWalker iterates log-relative block positions starting at sb.Start,
// wrapping within [sb.First, sb.First+sb.MaxLen) and stopping once it
// returns to the block it started from - the condition that bounds every
// recovery pass to at most one trip around the circular log.
type logWalker struct {
	dev      BlockDevice
	sb       *Superblock
	blockLen int64

	pos     uint32
	started bool
}

func newLogWalker(dev BlockDevice, sb *Superblock) *logWalker {
	return &logWalker{dev: dev, sb: sb, blockLen: int64(sb.BlockSize), pos: sb.Start}
}

func (w *logWalker) done() bool {
	return w.started && w.pos == w.sb.Start
}

// read fetches the block at the current position and advances by n blocks
// (the descriptor-plus-tag-count skip SCAN performs, or 1 for every other
// record type).
func (w *logWalker) read(n uint32) ([]byte, uint32, error) {
	block := w.pos
	b, err := w.dev.ReadAt(int64(block) * w.blockLen)
	if err != nil {
		return nil, 0, NewDeviceIoError("read log block during recovery", err)
	}
	w.started = true
	w.pos = wrapLog(w.sb, w.pos+n)
	return b, block, nil
}

func wrapLog(sb *Superblock, block uint32) uint32 {
	limit := sb.First + sb.MaxLen
	if block >= limit {
		return sb.First + (block-sb.First)%sb.MaxLen
	}
	return block
}

// revokeTable maps a home LBA to the highest trans-id that revoked it; a
// data tag for that LBA is suppressed during REPLAY if the tag's own
// trans-id is not greater than the table's recorded id.
type revokeTable map[uint64]uint32

func (r revokeTable) insert(lba uint64, transID uint32) {
	if cur, ok := r[lba]; !ok || transID > cur {
		r[lba] = transID
	}
}

func (r revokeTable) suppressed(lba uint64, transID uint32) bool {
	cur, ok := r[lba]
	return ok && cur >= transID
}

// recoveryResult summarizes one recovery run for callers that want to log
// or inspect it (e.g. a diagnostic CLI).
type recoveryResult struct {
	TransactionsReplayed int
	LastTransID          uint32
	Ran                  bool
}

// recover runs the SCAN, REVOKE, and REPLAY passes over dev starting at
// sb.Start/sb.Sequence, and on success rewrites the superblock to mark the
// log clean. It is a no-op, returning a zero result with Ran=false, when
// the superblock is already clean.
func recover(dev BlockDevice, sb *Superblock, mgr *Manager) (recoveryResult, error) {
	if sb.Clean() {
		return recoveryResult{}, nil
	}

	lastTransID, transCount, err := scanPass(dev, sb)
	if err != nil {
		return recoveryResult{}, err
	}

	revokes, err := revokePass(dev, sb, lastTransID)
	if err != nil {
		return recoveryResult{}, err
	}

	if err := replayPass(dev, sb, revokes, lastTransID); err != nil {
		return recoveryResult{}, err
	}

	sb.Start = 0
	sb.Sequence = lastTransID
	if err := mgr.Store(sb); err != nil {
		return recoveryResult{}, err
	}

	return recoveryResult{TransactionsReplayed: transCount, LastTransID: lastTransID, Ran: true}, nil
}

// scanPass bounds the trans-id range recovery must consider: it walks
// every record without interpreting tag contents, advancing the trans-id
// counter on each commit block and stopping at the first record that is
// not a recognized, well-formed journal block.
func scanPass(dev BlockDevice, sb *Superblock) (lastTransID uint32, transCount int, err error) {
	w := newLogWalker(dev, sb)
	transID := sb.Sequence
	lastTransID = sb.Sequence

scan:
	for !w.done() {
		b, _, err := w.read(1)
		if err != nil {
			return lastTransID, transCount, err
		}
		h, decErr := decodeBlockHeader(b)
		if decErr != nil {
			break scan // malformed record during recovery: end of log
		}

		switch h.blockType {
		case blockTypeDescriptor:
			d, decErr := DecodeDescriptorBlock(b)
			if decErr != nil {
				break scan
			}
			// Already consumed the descriptor block itself above; skip
			// forward over its tag chain, one block per tag.
			if len(d.Tags) > 0 {
				if _, _, err := w.read(uint32(len(d.Tags))); err != nil {
					return lastTransID, transCount, err
				}
			}
		case blockTypeRevoke:
			// consumed above, nothing more to skip
		case blockTypeCommit:
			transID++
			lastTransID = transID
			transCount++
		default:
			break scan
		}
	}
	return lastTransID, transCount, nil
}

// revokePass re-walks the log and records every revoked LBA, keyed by the
// trans-id of the transaction that issued the revoke. It never looks past
// lastTransID, the boundary scanPass established: a revoke block belonging
// to a transaction that was never fully committed must not take effect.
func revokePass(dev BlockDevice, sb *Superblock, lastTransID uint32) (revokeTable, error) {
	table := revokeTable{}
	w := newLogWalker(dev, sb)
	transID := sb.Sequence

revoke:
	for !w.done() && transID < lastTransID {
		b, _, err := w.read(1)
		if err != nil {
			return nil, err
		}
		h, decErr := decodeBlockHeader(b)
		if decErr != nil {
			break revoke
		}

		switch h.blockType {
		case blockTypeDescriptor:
			d, decErr := DecodeDescriptorBlock(b)
			if decErr != nil {
				break revoke
			}
			if len(d.Tags) > 0 {
				if _, _, err := w.read(uint32(len(d.Tags))); err != nil {
					return nil, err
				}
			}
		case blockTypeRevoke:
			r, decErr := DecodeRevokeBlock(b, sb.Uses64BitBlocks())
			if decErr != nil {
				var corrupt *CorruptError
				if errors.As(decErr, &corrupt) {
					return nil, decErr
				}
				break revoke
			}
			for _, lba := range r.Blocks {
				table.insert(lba, transID)
			}
		case blockTypeCommit:
			transID++
		default:
			break revoke
		}
	}
	return table, nil
}

// replayPass walks the log a third time, writing each non-revoked tag's
// data block to its home LBA, restoring the journal magic into any block
// that had it escaped out on write. Like revokePass, it never processes a
// descriptor whose trans-id has reached lastTransID: that descriptor's
// transaction was never followed by a commit block during scanPass (a
// torn commit), so none of its data may be applied.
func replayPass(dev BlockDevice, sb *Superblock, revokes revokeTable, lastTransID uint32) error {
	w := newLogWalker(dev, sb)
	transID := sb.Sequence

replay:
	for !w.done() && transID < lastTransID {
		b, _, err := w.read(1)
		if err != nil {
			return err
		}
		h, decErr := decodeBlockHeader(b)
		if decErr != nil {
			break replay
		}

		switch h.blockType {
		case blockTypeDescriptor:
			d, decErr := DecodeDescriptorBlock(b)
			if decErr != nil {
				break replay
			}
			for _, tag := range d.Tags {
				data, _, err := w.read(1)
				if err != nil {
					return err
				}
				if err := replayTag(dev, sb, tag, transID, revokes, data); err != nil {
					return err
				}
			}
		case blockTypeRevoke:
			// nothing to replay
		case blockTypeCommit:
			transID++
		default:
			break replay
		}
	}
	return nil
}

func replayTag(dev BlockDevice, sb *Superblock, tag DescriptorTag, transID uint32, revokes revokeTable, data []byte) error {
	if tag.BlockNr == 0 {
		// The journal superblock's own block is never replayed as an
		// ordinary data block; recover rewrites it explicitly once the
		// passes finish.
		return nil
	}
	if revokes.suppressed(tag.BlockNr, transID) {
		return nil
	}

	out := make([]byte, len(data))
	copy(out, data)
	if tag.escaped() {
		if len(out) < 4 {
			return errors.New("jbd2: escaped tag data shorter than magic")
		}
		binary.BigEndian.PutUint32(out[0:4], journalMagic)
	}

	if err := dev.WriteAt(int64(tag.BlockNr)*int64(sb.BlockSize), out); err != nil {
		return NewDeviceIoError("replay data block", err)
	}
	return nil
}

package journal

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// state is the facade's single-writer state machine: Idle accepts Begin,
// Active accepts MarkDirty/Revoke/Commit. Recovery runs before either state
// is reachable and needs no state of its own.
type state int

const (
	stateIdle state = iota
	stateActive
)

// Options configures Mount.
type Options struct {
	// Logger receives structured entries for mount, commit, and recovery
	// events. A nil Logger uses logrus's standard logger.
	Logger *logrus.Logger
}

// Journal is the facade over the superblock, space manager, checkpoint
// queue, and recovery engine: the single entry point a filesystem uses to
// get write-ahead durability for a batch of block writes.
type Journal struct {
	dev BlockDevice
	mgr *Manager
	sb  *Superblock
	log *logrus.Entry

	space    *spaceManager
	cpq      *checkpointQueue
	state    state
	allocTID uint32

	lastRecovery recoveryResult
}

// Mount loads the journal superblock from dev and, if the log is not
// clean, runs recovery before returning. dev is expected to already be
// scoped to the journal's own region (see NewBackendDevice / backend.Sub).
func Mount(dev BlockDevice, opts Options) (*Journal, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithField("component", "jbd2")

	mgr := NewManager(dev)
	sb, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}

	j := &Journal{
		dev: dev,
		mgr: mgr,
		sb:  sb,
		log: entry,
		cpq: &checkpointQueue{},
	}
	j.space = newSpaceManager(sb, j.purgeForAlloc)

	if !sb.Clean() {
		entry.WithFields(logrus.Fields{"start": sb.Start, "sequence": sb.Sequence}).Info("journal not clean, running recovery")
		result, err := recover(dev, sb, mgr)
		if err != nil {
			return nil, fmt.Errorf("mount: recovery failed: %w", err)
		}
		j.lastRecovery = result
		entry.WithFields(logrus.Fields{"transactions": result.TransactionsReplayed, "last_trans_id": result.LastTransID}).Info("recovery complete")
		j.space.reset()
	} else {
		entry.Debug("journal clean, no recovery needed")
	}

	j.allocTID = sb.Sequence
	return j, nil
}

// Format initializes a fresh superblock at block 0 of dev, with a log of
// maxLen blocks starting at block 1 (so dev needs maxLen+1 blocks), and
// writes it, for callers creating a brand-new journal region rather than
// mounting an existing one.
func Format(dev BlockDevice, maxLen uint32, opts Options) (*Journal, error) {
	sb := NewSuperblock(BlockSize, maxLen, 1)
	mgr := NewManager(dev)
	if err := mgr.Store(sb); err != nil {
		return nil, fmt.Errorf("format: %w", err)
	}
	return Mount(dev, opts)
}

// LastRecovery reports the result of the recovery pass Mount ran, if any.
func (j *Journal) LastRecovery() recoveryResult { return j.lastRecovery }

// Occupancy returns a snapshot of which log blocks are currently occupied
// by uncheckpointed transactions, for diagnostics.
func (j *Journal) Occupancy() *Occupancy { return j.occupancy() }

// Begin opens a new transaction. Only one transaction may be open on a
// Journal at a time.
func (j *Journal) Begin() (*Transaction, error) {
	if j.state != stateIdle {
		return nil, NewProtocolMisuseError("Begin called while a transaction is already open")
	}
	j.state = stateActive
	return &Transaction{}, nil
}

// MarkDirty records that homeBlock should be overwritten with data when t
// commits, tagging it for escape if its first four bytes collide with the
// journal magic.
func (j *Journal) MarkDirty(t *Transaction, homeBlock uint64, data []byte) error {
	if j.state != stateActive {
		return NewProtocolMisuseError("MarkDirty called with no open transaction")
	}
	return t.MarkDirty(homeBlock, data)
}

// Revoke records that homeBlock must not be replayed by t or any earlier
// transaction.
func (j *Journal) Revoke(t *Transaction, homeBlock uint64) error {
	if j.state != stateActive {
		return NewProtocolMisuseError("Revoke called with no open transaction")
	}
	return t.Revoke(homeBlock)
}

// Commit writes t's descriptor and data blocks (only when t has dirty
// blocks), its optional revoke block, and its commit block to the log,
// updates the journal's tail, and enqueues t on the checkpoint queue unless
// the queue is empty and t has no dirty blocks. After Commit returns
// (success or error) the Journal is Idle again.
func (j *Journal) Commit(t *Transaction) error {
	if j.state != stateActive {
		return NewProtocolMisuseError("Commit called with no open transaction")
	}
	defer func() { j.state = stateIdle }()

	t.id = j.allocTID

	if len(t.dirty) == 0 && len(t.revoked) == 0 {
		j.allocTID++
		return nil
	}

	if len(t.dirty) > 0 {
		if err := j.writeDescriptorBlock(t); err != nil {
			return err
		}
		if err := j.writeDataBlocks(t); err != nil {
			return err
		}
	}
	if len(t.revoked) > 0 {
		if err := j.writeRevokeBlock(t); err != nil {
			return err
		}
	}
	if err := j.writeCommitBlock(t); err != nil {
		return err
	}

	queueWasEmpty := j.cpq.empty()
	if queueWasEmpty && len(t.dirty) == 0 {
		j.sb.Start = wrapLog(j.sb, t.startBlock+t.allocated)
		j.sb.Sequence = t.id + 1
	} else {
		if queueWasEmpty {
			j.sb.Start = t.startBlock
		}
		t.committed = true
		j.cpq.push(t)
	}
	j.allocTID++

	if err := j.mgr.Store(j.sb); err != nil {
		return err
	}

	j.log.WithFields(logrus.Fields{"trans_id": t.id, "dirty": len(t.dirty), "revoked": len(t.revoked)}).Debug("transaction committed")
	return nil
}

func (j *Journal) writeDescriptorBlock(t *Transaction) error {
	block, err := j.space.allocBlock()
	if err != nil {
		return err
	}
	t.allocated++
	if t.startBlock == 0 {
		t.startBlock = block
	}

	d := DescriptorBlock{Sequence: t.id}
	for _, db := range t.dirty {
		escaped := beginsWithMagic(db.data)
		flags := TagSameUUID
		if escaped {
			flags |= TagEscape
		}
		tag := DescriptorTag{BlockNr: db.homeBlock, Flags: flags}
		if j.sb.usesChecksumV3() {
			sumData := db.data
			if escaped {
				sumData = make([]byte, len(db.data))
				copy(sumData, db.data)
				sumData[0], sumData[1], sumData[2], sumData[3] = 0, 0, 0, 0
			}
			tag.Checksum = uint16(tagChecksum(j.sb.UUID, t.id, db.homeBlock, sumData))
		}
		d.Tags = append(d.Tags, tag)
	}

	b, err := EncodeDescriptorBlock(d, j.sb.BlockSize)
	if err != nil {
		return err
	}
	if err := j.dev.WriteAt(int64(block)*int64(j.sb.BlockSize), b); err != nil {
		return NewDeviceIoError("write descriptor block", err)
	}
	return nil
}

func (j *Journal) writeDataBlocks(t *Transaction) error {
	for _, db := range t.dirty {
		block, err := j.space.allocBlock()
		if err != nil {
			return err
		}
		t.allocated++

		out := make([]byte, len(db.data))
		copy(out, db.data)
		if beginsWithMagic(out) {
			out[0], out[1], out[2], out[3] = 0, 0, 0, 0
		}
		if err := j.dev.WriteAt(int64(block)*int64(j.sb.BlockSize), out); err != nil {
			return NewDeviceIoError("write data block", err)
		}
	}
	return nil
}

func (j *Journal) writeRevokeBlock(t *Transaction) error {
	block, err := j.space.allocBlock()
	if err != nil {
		return err
	}
	t.allocated++
	if t.startBlock == 0 {
		t.startBlock = block
	}

	r := RevokeBlock{Sequence: t.id, Blocks: t.revoked}
	b, err := EncodeRevokeBlock(r, j.sb.BlockSize, j.sb.Uses64BitBlocks())
	if err != nil {
		return err
	}
	if err := j.dev.WriteAt(int64(block)*int64(j.sb.BlockSize), b); err != nil {
		return NewDeviceIoError("write revoke block", err)
	}
	return nil
}

func (j *Journal) writeCommitBlock(t *Transaction) error {
	block, err := j.space.allocBlock()
	if err != nil {
		return err
	}
	t.allocated++

	b := EncodeCommitBlock(CommitBlock{Sequence: t.id}, j.sb.BlockSize)

	if err := j.barrier(); err != nil {
		return err
	}
	if err := j.dev.WriteAt(int64(block)*int64(j.sb.BlockSize), b); err != nil {
		return NewDeviceIoError("write commit block", err)
	}
	if err := j.barrier(); err != nil {
		return err
	}
	return nil
}

func (j *Journal) barrier() error {
	bd, ok := j.dev.(barrierDevice)
	if !ok {
		return nil
	}
	return bd.Barrier()
}

// Flush drains the entire checkpoint queue, writing every remaining
// transaction's dirty blocks back to their home locations so the log can
// be fully reclaimed.
func (j *Journal) Flush() error {
	for !j.cpq.empty() {
		if err := j.cpq.purge(j, true, false); err != nil {
			return err
		}
	}
	return j.mgr.Store(j.sb)
}

// Unmount flushes the checkpoint queue and leaves the superblock marked
// clean (Start == 0), so the next Mount skips recovery.
func (j *Journal) Unmount() error {
	if err := j.Flush(); err != nil {
		return fmt.Errorf("unmount: %w", err)
	}
	j.sb.Start = 0
	return j.mgr.Store(j.sb)
}

// purgeForAlloc is the automatic purge allocBlock runs when the log is
// full (allocBlock passes flush=true, once=true). It persists the
// superblock after the purge so the advanced Start is on disk before the
// freed log blocks are handed out again.
func (j *Journal) purgeForAlloc(flush, once bool) error {
	if err := j.cpq.purge(j, flush, once); err != nil {
		return err
	}
	return j.mgr.Store(j.sb)
}

// checkpointWriteback implements purgeHost: it writes every dirty block of
// t to its home LBA and marks it fully written back.
func (j *Journal) checkpointWriteback(t *Transaction) error {
	for _, db := range t.dirty {
		if err := j.dev.WriteAt(int64(db.homeBlock)*int64(j.sb.BlockSize), db.data); err != nil {
			return NewDeviceIoError("checkpoint writeback", err)
		}
	}
	t.writtenCnt = len(t.dirty)
	return nil
}

// advanceStart implements purgeHost: it moves the in-memory log tail and
// sequence. The superblock is persisted by the purge's caller
// (purgeForAlloc, Flush) once the purge returns.
func (j *Journal) advanceStart(block uint32, transID uint32) {
	j.sb.Start = wrapLog(j.sb, block)
	j.sb.Sequence = transID
}

// Package journaltest provides an in-memory BlockDevice for exercising the
// journal engine without a real file or block device backing it.
package journaltest

import "fmt"

// MemDevice is a fixed-size, fixed-block-size in-memory BlockDevice. It
// does not implement a barrier (journal.Journal treats that as "nothing to
// flush"), so tests that care about durability ordering check the byte
// contents directly instead.
type MemDevice struct {
	blockSize int
	blocks    [][]byte

	// FailAt, when non-nil, makes WriteAt return this error the first time
	// it is called for the given byte offset, then clears itself - used to
	// simulate a torn write partway through a commit.
	FailAt  *int64
	FailErr error
}

// NewMemDevice allocates an in-memory device of nBlocks blocks of
// blockSize bytes each, all zeroed.
func NewMemDevice(nBlocks, blockSize int) *MemDevice {
	blocks := make([][]byte, nBlocks)
	for i := range blocks {
		blocks[i] = make([]byte, blockSize)
	}
	return &MemDevice{blockSize: blockSize, blocks: blocks}
}

func (d *MemDevice) index(offsetBytes int64) (int, error) {
	if offsetBytes%int64(d.blockSize) != 0 {
		return 0, fmt.Errorf("journaltest: unaligned offset %d", offsetBytes)
	}
	idx := int(offsetBytes / int64(d.blockSize))
	if idx < 0 || idx >= len(d.blocks) {
		return 0, fmt.Errorf("journaltest: offset %d out of range", offsetBytes)
	}
	return idx, nil
}

// ReadAt implements journal.BlockDevice.
func (d *MemDevice) ReadAt(offsetBytes int64) ([]byte, error) {
	idx, err := d.index(offsetBytes)
	if err != nil {
		return nil, err
	}
	out := make([]byte, d.blockSize)
	copy(out, d.blocks[idx])
	return out, nil
}

// WriteAt implements journal.BlockDevice.
func (d *MemDevice) WriteAt(offsetBytes int64, data []byte) error {
	if d.FailAt != nil && *d.FailAt == offsetBytes {
		d.FailAt = nil
		return d.FailErr
	}
	idx, err := d.index(offsetBytes)
	if err != nil {
		return err
	}
	if len(data) != d.blockSize {
		return fmt.Errorf("journaltest: write of %d bytes, want %d", len(data), d.blockSize)
	}
	copy(d.blocks[idx], data)
	return nil
}

// BlockAt returns a copy of the raw block at the given block index, for
// assertions against on-disk layout.
func (d *MemDevice) BlockAt(idx int) []byte {
	out := make([]byte, d.blockSize)
	copy(out, d.blocks[idx])
	return out
}

// Truncate zeroes every block from idx onward, simulating a crash that
// loses everything written after a certain point in a torn-write test.
func (d *MemDevice) Truncate(idx int) {
	for i := idx; i < len(d.blocks); i++ {
		d.blocks[i] = make([]byte, d.blockSize)
	}
}

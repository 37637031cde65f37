package journal

import (
	"fmt"

	"github.com/jbd2/go-journal/backend"
)

// BlockDevice is the engine's external collaborator: a byte-addressable
// store the engine reads and writes whole blocks against at absolute
// offsets. The engine only consumes it; production callers get one from
// NewBackendDevice, this package's adapter over a backend.Storage (typically
// a region of a real block device or image file, carved out with
// backend.Sub at the journal's region offset).
type BlockDevice interface {
	// ReadAt returns exactly BlockSize bytes starting at offsetBytes.
	ReadAt(offsetBytes int64) ([]byte, error)
	// WriteAt writes data (expected to be BlockSize bytes) at offsetBytes.
	WriteAt(offsetBytes int64, data []byte) error
}

// backendDevice adapts a backend.Storage (a plain ReaderAt/WriterAt
// abstraction) into a BlockDevice fixed at one block size, and issues the
// durability barrier the commit protocol needs around the commit block
// write.
type backendDevice struct {
	storage   backend.Storage
	blockSize uint32
}

// NewBackendDevice wraps storage (a view already positioned at the start of
// the journal region, e.g. via backend.Sub(dev, regionOffset, regionSize))
// as a BlockDevice with the given fixed block size.
func NewBackendDevice(storage backend.Storage, blockSize uint32) BlockDevice {
	return &backendDevice{storage: storage, blockSize: blockSize}
}

func (d *backendDevice) ReadAt(offsetBytes int64) ([]byte, error) {
	buf := make([]byte, d.blockSize)
	n, err := d.storage.ReadAt(buf, offsetBytes)
	if err != nil && n < len(buf) {
		return nil, fmt.Errorf("short read at offset %d: %w", offsetBytes, err)
	}
	return buf, nil
}

func (d *backendDevice) WriteAt(offsetBytes int64, data []byte) error {
	w, err := d.storage.Writable()
	if err != nil {
		return err
	}
	n, err := w.WriteAt(data, offsetBytes)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short write at offset %d: wrote %d of %d bytes", offsetBytes, n, len(data))
	}
	return nil
}

// Barrier forces durability of everything written to the device so far.
// The commit protocol issues one immediately before and one immediately
// after the commit block write, so a crash can never observe the commit
// block without also observing everything that precedes it.
func (d *backendDevice) Barrier() error {
	return backend.Barrier(d.storage)
}

// barrierDevice is implemented by BlockDevice implementations that can
// issue a durability barrier; Journal type-asserts for it and treats its
// absence as "nothing to flush" (e.g. the in-memory fake used in tests).
type barrierDevice interface {
	Barrier() error
}

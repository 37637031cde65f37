// Package journal implements a jbd2-style write-ahead journal: a circular
// on-disk log of transactions that lets a filesystem apply a set of block
// writes atomically, with crash recovery by replaying the log on mount.
//
// The package does not know anything about inodes, directories, or any
// other filesystem metadata - it moves opaque 4096-byte blocks between a
// caller-supplied set of home locations and the log, and guarantees that
// either all of a transaction's blocks land or none of them do.
package journal

import (
	"encoding/binary"
	"fmt"
)

// BlockSize is the fixed block size the engine reads and writes in. The
// on-disk format this package implements (jbd2) ties descriptor tag layout
// and log block addressing to a single block size per journal.
const BlockSize = 4096

// blockType identifies what kind of record follows a journalHeader.
type blockType uint32

const (
	blockTypeDescriptor  blockType = 1
	blockTypeCommit      blockType = 2
	blockTypeSuperblockV1 blockType = 3
	blockTypeSuperblockV2 blockType = 4
	blockTypeRevoke      blockType = 5
)

func (t blockType) String() string {
	switch t {
	case blockTypeDescriptor:
		return "descriptor"
	case blockTypeCommit:
		return "commit"
	case blockTypeSuperblockV1:
		return "superblock-v1"
	case blockTypeSuperblockV2:
		return "superblock-v2"
	case blockTypeRevoke:
		return "revoke"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// journalMagic is the 4-byte big-endian marker every log record and the
// superblock start with.
const journalMagic uint32 = 0xC03B3998

// headerSize is the size in bytes of the common block header.
const headerSize = 12

// blockHeader is the 12-byte header prefixing every descriptor, commit, and
// revoke block, and the journal superblock.
type blockHeader struct {
	magic     uint32
	blockType blockType
	sequence  uint32
}

func decodeBlockHeader(b []byte) (blockHeader, error) {
	if len(b) < headerSize {
		return blockHeader{}, fmt.Errorf("%w: header needs %d bytes, got %d", ErrMalformedRecord, headerSize, len(b))
	}
	magic := binary.BigEndian.Uint32(b[0:4])
	if magic != journalMagic {
		return blockHeader{}, fmt.Errorf("%w: bad magic 0x%x", ErrMalformedRecord, magic)
	}
	return blockHeader{
		magic:     magic,
		blockType: blockType(binary.BigEndian.Uint32(b[4:8])),
		sequence:  binary.BigEndian.Uint32(b[8:12]),
	}, nil
}

func (h blockHeader) encode() []byte {
	b := make([]byte, headerSize)
	binary.BigEndian.PutUint32(b[0:4], h.magic)
	binary.BigEndian.PutUint32(b[4:8], uint32(h.blockType))
	binary.BigEndian.PutUint32(b[8:12], h.sequence)
	return b
}

func newHeader(bt blockType, seq uint32) blockHeader {
	return blockHeader{magic: journalMagic, blockType: bt, sequence: seq}
}

// beginsWithMagic reports whether the first 4 bytes of block data collide
// with the journal magic, the condition that requires the escape dance
// during write and un-escape during replay.
func beginsWithMagic(data []byte) bool {
	return len(data) >= 4 && binary.BigEndian.Uint32(data[0:4]) == journalMagic
}

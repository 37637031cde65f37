package journal

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/jbd2/go-journal/crc"
)

// Tag flags.
const (
	TagEscape   uint16 = 0x1
	TagSameUUID uint16 = 0x2
	TagLast     uint16 = 0x8
)

// tagBodySize is the size of a v3 descriptor tag before any trailing UUID:
// blocknr_low(4) + checksum(2) + flags(2) + blocknr_high(4). blocknr_low is
// little-endian on the wire while every other field stays big-endian, a
// deliberately preserved quirk of the reference on-disk layout.
const tagBodySize = 12

// DescriptorTag is one entry in a descriptor block's tag chain, binding a
// log-block position to a home LBA.
type DescriptorTag struct {
	BlockNr  uint64
	Checksum uint16
	Flags    uint16
	UUID     *uuid.UUID // nil when TagSameUUID is set
}

func (t DescriptorTag) escaped() bool  { return t.Flags&TagEscape != 0 }
func (t DescriptorTag) sameUUID() bool { return t.Flags&TagSameUUID != 0 }
func (t DescriptorTag) last() bool     { return t.Flags&TagLast != 0 }

func encodeTag(t DescriptorTag) []byte {
	size := tagBodySize
	if !t.sameUUID() {
		size += 16
	}
	b := make([]byte, size)
	binary.LittleEndian.PutUint32(b[0:4], uint32(t.BlockNr&0xffffffff))
	binary.BigEndian.PutUint16(b[4:6], t.Checksum)
	binary.BigEndian.PutUint16(b[6:8], t.Flags)
	binary.BigEndian.PutUint32(b[8:12], uint32(t.BlockNr>>32))
	if !t.sameUUID() && t.UUID != nil {
		copy(b[tagBodySize:tagBodySize+16], t.UUID[:])
	}
	return b
}

// decodeTag parses one tag starting at b[0:] and returns it plus the number
// of bytes it consumed.
func decodeTag(b []byte) (DescriptorTag, int, error) {
	if len(b) < tagBodySize {
		return DescriptorTag{}, 0, fmt.Errorf("%w: tag needs %d bytes, got %d", ErrMalformedRecord, tagBodySize, len(b))
	}
	low := binary.LittleEndian.Uint32(b[0:4])
	checksum := binary.BigEndian.Uint16(b[4:6])
	flags := binary.BigEndian.Uint16(b[6:8])
	high := binary.BigEndian.Uint32(b[8:12])

	t := DescriptorTag{
		BlockNr:  uint64(high)<<32 | uint64(low),
		Checksum: checksum,
		Flags:    flags,
	}

	consumed := tagBodySize
	if !t.sameUUID() {
		if len(b) < tagBodySize+16 {
			return DescriptorTag{}, 0, fmt.Errorf("%w: tag UUID would overrun block", ErrMalformedRecord)
		}
		id, err := uuid.FromBytes(b[tagBodySize : tagBodySize+16])
		if err != nil {
			return DescriptorTag{}, 0, fmt.Errorf("%w: bad tag uuid: %v", ErrMalformedRecord, err)
		}
		t.UUID = &id
		consumed += 16
	}

	return t, consumed, nil
}

// DescriptorBlock lists the home LBAs of the data blocks that follow in one
// transaction.
type DescriptorBlock struct {
	Sequence uint32
	Tags     []DescriptorTag
}

// EncodeDescriptorBlock packs header and tag chain into exactly blockSize
// bytes, setting TagLast on the final tag.
func EncodeDescriptorBlock(d DescriptorBlock, blockSize uint32) ([]byte, error) {
	b := make([]byte, blockSize)
	copy(b[:headerSize], newHeader(blockTypeDescriptor, d.Sequence).encode())

	offset := headerSize
	for i, tag := range d.Tags {
		if i == len(d.Tags)-1 {
			tag.Flags |= TagLast
		}
		encoded := encodeTag(tag)
		if offset+len(encoded) > len(b) {
			return nil, fmt.Errorf("descriptor block overflow: %d tags do not fit in %d bytes", len(d.Tags), blockSize)
		}
		copy(b[offset:], encoded)
		offset += len(encoded)
	}
	return b, nil
}

// DecodeDescriptorBlock parses a descriptor block's header and tag chain.
// Parsing stops at TagLast or when the remaining bytes cannot hold another
// tag (end of block).
func DecodeDescriptorBlock(b []byte) (*DescriptorBlock, error) {
	h, err := decodeBlockHeader(b)
	if err != nil {
		return nil, err
	}
	if h.blockType != blockTypeDescriptor {
		return nil, fmt.Errorf("%w: expected descriptor block, got %s", ErrMalformedRecord, h.blockType)
	}

	d := &DescriptorBlock{Sequence: h.sequence}
	offset := headerSize
	for offset < len(b) {
		tag, consumed, err := decodeTag(b[offset:])
		if err != nil {
			break
		}
		d.Tags = append(d.Tags, tag)
		offset += consumed
		if tag.last() {
			break
		}
	}
	return d, nil
}

// CommitBlock marks the atomicity point of a transaction: once it is
// durable, every block of the transaction is considered committed.
type CommitBlock struct {
	Sequence   uint32
	CommitSec  uint64
	CommitNsec uint32
}

const commitBlockMinSize = 0x3c

// EncodeCommitBlock packs the header and commit timestamp.
func EncodeCommitBlock(c CommitBlock, blockSize uint32) []byte {
	b := make([]byte, blockSize)
	copy(b[:headerSize], newHeader(blockTypeCommit, c.Sequence).encode())
	binary.BigEndian.PutUint64(b[0x30:0x38], c.CommitSec)
	binary.BigEndian.PutUint32(b[0x38:0x3c], c.CommitNsec)
	return b
}

// DecodeCommitBlock parses a commit block.
func DecodeCommitBlock(b []byte) (*CommitBlock, error) {
	if len(b) < commitBlockMinSize {
		return nil, fmt.Errorf("%w: commit block needs %d bytes, got %d", ErrMalformedRecord, commitBlockMinSize, len(b))
	}
	h, err := decodeBlockHeader(b)
	if err != nil {
		return nil, err
	}
	if h.blockType != blockTypeCommit {
		return nil, fmt.Errorf("%w: expected commit block, got %s", ErrMalformedRecord, h.blockType)
	}
	return &CommitBlock{
		Sequence:   h.sequence,
		CommitSec:  binary.BigEndian.Uint64(b[0x30:0x38]),
		CommitNsec: binary.BigEndian.Uint32(b[0x38:0x3c]),
	}, nil
}

// RevokeBlock suppresses replay of writes to the listed LBAs for this and
// earlier transactions.
type RevokeBlock struct {
	Sequence uint32
	Blocks   []uint64
}

const revokeHeaderSize = headerSize + 4 // header + count

// revokeEntrySize is 4 bytes unless 64-bit block numbers are in use.
func revokeEntrySize(use64Bit bool) int {
	if use64Bit {
		return 8
	}
	return 4
}

// EncodeRevokeBlock packs the header, count, and block-number array.
func EncodeRevokeBlock(r RevokeBlock, blockSize uint32, use64Bit bool) ([]byte, error) {
	b := make([]byte, blockSize)
	copy(b[:headerSize], newHeader(blockTypeRevoke, r.Sequence).encode())

	entrySize := revokeEntrySize(use64Bit)
	count := uint32(revokeHeaderSize) + uint32(len(r.Blocks))*uint32(entrySize)
	binary.BigEndian.PutUint32(b[headerSize:headerSize+4], count)

	offset := revokeHeaderSize
	for _, lba := range r.Blocks {
		if offset+entrySize > len(b) {
			return nil, fmt.Errorf("revoke block overflow: %d entries do not fit in %d bytes", len(r.Blocks), blockSize)
		}
		if use64Bit {
			binary.BigEndian.PutUint64(b[offset:offset+8], lba)
		} else {
			binary.BigEndian.PutUint32(b[offset:offset+4], uint32(lba))
		}
		offset += entrySize
	}
	return b, nil
}

// DecodeRevokeBlock parses a revoke block.
func DecodeRevokeBlock(b []byte, use64Bit bool) (*RevokeBlock, error) {
	if len(b) < revokeHeaderSize {
		return nil, fmt.Errorf("%w: revoke block needs %d bytes, got %d", ErrMalformedRecord, revokeHeaderSize, len(b))
	}
	h, err := decodeBlockHeader(b)
	if err != nil {
		return nil, err
	}
	if h.blockType != blockTypeRevoke {
		return nil, fmt.Errorf("%w: expected revoke block, got %s", ErrMalformedRecord, h.blockType)
	}

	count := binary.BigEndian.Uint32(b[headerSize : headerSize+4])
	if count < revokeHeaderSize {
		return nil, NewCorruptError(fmt.Sprintf("revoke block count %d smaller than header", count))
	}
	entrySize := revokeEntrySize(use64Bit)
	n := (count - revokeHeaderSize) / uint32(entrySize)
	if int(n)*entrySize+revokeHeaderSize > len(b) {
		return nil, NewCorruptError(fmt.Sprintf("revoke block count %d exceeds block size %d", count, len(b)))
	}

	r := &RevokeBlock{Sequence: h.sequence}
	offset := revokeHeaderSize
	for i := uint32(0); i < n; i++ {
		if use64Bit {
			r.Blocks = append(r.Blocks, binary.BigEndian.Uint64(b[offset:offset+8]))
		} else {
			r.Blocks = append(r.Blocks, uint64(binary.BigEndian.Uint32(b[offset:offset+4])))
		}
		offset += entrySize
	}
	return r, nil
}

// tagChecksum computes the v3 per-tag checksum: crc32c seeded by the
// journal UUID, folding in the sequence number and the block's on-disk
// (post-escape) contents.
func tagChecksum(id uuid.UUID, sequence uint32, blockNr uint64, data []byte) uint32 {
	seedBuf := make([]byte, 16+4+8)
	copy(seedBuf[0:16], id[:])
	binary.BigEndian.PutUint32(seedBuf[16:20], sequence)
	binary.BigEndian.PutUint64(seedBuf[20:28], blockNr)
	sum := crc.Checksum32c(0xffffffff, seedBuf)
	return crc.Checksum32c(sum, data)
}

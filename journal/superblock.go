package journal

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/jbd2/go-journal/crc"
)

// Feature bits. Only the ones this engine interprets are named; unknown
// bits round-trip untouched.
const (
	CompatChecksum uint32 = 0x1

	IncompatRevoke      uint32 = 0x1
	Incompat64Bit       uint32 = 0x2
	IncompatAsyncCommit uint32 = 0x4
	IncompatCsumV2      uint32 = 0x8
	IncompatCsumV3      uint32 = 0x10
	IncompatFastCommit  uint32 = 0x20
)

const (
	checksumTypeCRC32C byte = 4
)

// SuperblockSize is the fixed on-disk size of the journal superblock
// record: a 12-byte header, the fields below, and a 768-byte users array,
// padded to exactly 1024 bytes.
const SuperblockSize = 1024

const (
	offBlockSize      = 0x0c
	offMaxLen         = 0x10
	offFirst          = 0x14
	offSequence       = 0x18
	offStart          = 0x1c
	offErrno          = 0x20
	offCompat         = 0x24
	offIncompat       = 0x28
	offRoCompat       = 0x2c
	offUUID           = 0x30
	offNrUsers        = 0x40
	offDynSuper       = 0x44
	offMaxTransaction = 0x48
	offMaxTransData   = 0x4c
	offChecksumType   = 0x50
	offChecksum       = 0xfc
	offUsers          = 0x100
	usersBytes        = SuperblockSize - offUsers
)

// Superblock is the in-memory mirror of the on-disk journal superblock. It
// is owned by the facade (Journal) for the engine's lifetime; all mutation
// happens through Journal methods which call Store after any field change.
type Superblock struct {
	BlockSize        uint32
	MaxLen           uint32
	First            uint32
	Sequence         uint32
	Start            uint32
	Errno            uint32
	CompatFeatures   uint32
	IncompatFeatures uint32
	RoCompatFeatures uint32
	UUID             uuid.UUID
	NrUsers          uint32
	DynSuper         uint32
	MaxTransaction   uint32
	MaxTransData     uint32
	ChecksumType     byte
	Users            [usersBytes]byte
}

// Clean reports whether the superblock indicates no recovery is needed:
// Start == 0 iff the log is clean.
func (sb *Superblock) Clean() bool { return sb.Start == 0 }

// HasFeature reports whether an incompatible feature bit is set.
func (sb *Superblock) HasFeature(bit uint32) bool { return sb.IncompatFeatures&bit != 0 }

// HasCompatFeature reports whether a compatible feature bit is set.
func (sb *Superblock) HasCompatFeature(bit uint32) bool { return sb.CompatFeatures&bit != 0 }

// HasRoCompatFeature reports whether a read-only-compatible feature bit is
// set.
func (sb *Superblock) HasRoCompatFeature(bit uint32) bool { return sb.RoCompatFeatures&bit != 0 }

// Uses64BitBlocks reports whether tags carry a 64-bit block number.
func (sb *Superblock) Uses64BitBlocks() bool { return sb.HasFeature(Incompat64Bit) }

// usesChecksumV3 reports whether the CSUM_V3 feature is set. When it is,
// each descriptor tag carries a crc32c checksum of its block (see
// tagChecksum); revoke and commit blocks carry no checksum.
func (sb *Superblock) usesChecksumV3() bool { return sb.HasFeature(IncompatCsumV3) }

// NewSuperblock creates a fresh journal superblock for a newly formatted
// log of maxLen blocks starting at log-relative block `first` (usually 1,
// since block 0 of the journal region is the superblock itself).
func NewSuperblock(blockSize, maxLen, first uint32) *Superblock {
	id, err := uuid.NewRandom()
	if err != nil {
		id = uuid.UUID{}
	}
	return &Superblock{
		BlockSize:        blockSize,
		MaxLen:           maxLen,
		First:            first,
		Sequence:         1,
		Start:            0,
		IncompatFeatures: IncompatRevoke | Incompat64Bit | IncompatCsumV3,
		UUID:             id,
		NrUsers:          1,
		MaxTransaction:   32768,
		MaxTransData:     32768,
		ChecksumType:     checksumTypeCRC32C,
	}
}

// DecodeSuperblock parses a journal superblock from exactly SuperblockSize
// bytes.
func DecodeSuperblock(b []byte) (*Superblock, error) {
	if len(b) != SuperblockSize {
		return nil, fmt.Errorf("%w: superblock needs %d bytes, got %d", ErrMalformedRecord, SuperblockSize, len(b))
	}
	h, err := decodeBlockHeader(b[:headerSize])
	if err != nil {
		return nil, err
	}
	if h.blockType != blockTypeSuperblockV1 && h.blockType != blockTypeSuperblockV2 {
		return nil, fmt.Errorf("%w: expected superblock block type, got %s", ErrMalformedRecord, h.blockType)
	}

	sb := &Superblock{
		BlockSize: binary.BigEndian.Uint32(b[offBlockSize : offBlockSize+4]),
		MaxLen:    binary.BigEndian.Uint32(b[offMaxLen : offMaxLen+4]),
		First:     binary.BigEndian.Uint32(b[offFirst : offFirst+4]),
		Sequence:  binary.BigEndian.Uint32(b[offSequence : offSequence+4]),
		Start:     binary.BigEndian.Uint32(b[offStart : offStart+4]),
		Errno:     binary.BigEndian.Uint32(b[offErrno : offErrno+4]),
	}

	if h.blockType == blockTypeSuperblockV2 {
		sb.CompatFeatures = binary.BigEndian.Uint32(b[offCompat : offCompat+4])
		sb.IncompatFeatures = binary.BigEndian.Uint32(b[offIncompat : offIncompat+4])
		sb.RoCompatFeatures = binary.BigEndian.Uint32(b[offRoCompat : offRoCompat+4])
		id, err := uuid.FromBytes(b[offUUID : offUUID+16])
		if err == nil {
			sb.UUID = id
		}
		sb.NrUsers = binary.BigEndian.Uint32(b[offNrUsers : offNrUsers+4])
		sb.DynSuper = binary.BigEndian.Uint32(b[offDynSuper : offDynSuper+4])
		sb.MaxTransaction = binary.BigEndian.Uint32(b[offMaxTransaction : offMaxTransaction+4])
		sb.MaxTransData = binary.BigEndian.Uint32(b[offMaxTransData : offMaxTransData+4])
		sb.ChecksumType = b[offChecksumType]
		copy(sb.Users[:], b[offUsers:SuperblockSize])
	}

	return sb, nil
}

// Encode serializes the superblock to exactly SuperblockSize bytes,
// computing the checksum over the whole record when CSUM_V3 or the legacy
// compat checksum feature is set, and writing zero otherwise.
func (sb *Superblock) Encode() []byte {
	b := make([]byte, SuperblockSize)

	h := newHeader(blockTypeSuperblockV2, 0)
	copy(b[:headerSize], h.encode())

	binary.BigEndian.PutUint32(b[offBlockSize:offBlockSize+4], sb.BlockSize)
	binary.BigEndian.PutUint32(b[offMaxLen:offMaxLen+4], sb.MaxLen)
	binary.BigEndian.PutUint32(b[offFirst:offFirst+4], sb.First)
	binary.BigEndian.PutUint32(b[offSequence:offSequence+4], sb.Sequence)
	binary.BigEndian.PutUint32(b[offStart:offStart+4], sb.Start)
	binary.BigEndian.PutUint32(b[offErrno:offErrno+4], sb.Errno)
	binary.BigEndian.PutUint32(b[offCompat:offCompat+4], sb.CompatFeatures)
	binary.BigEndian.PutUint32(b[offIncompat:offIncompat+4], sb.IncompatFeatures)
	binary.BigEndian.PutUint32(b[offRoCompat:offRoCompat+4], sb.RoCompatFeatures)
	copy(b[offUUID:offUUID+16], sb.UUID[:])
	binary.BigEndian.PutUint32(b[offNrUsers:offNrUsers+4], sb.NrUsers)
	binary.BigEndian.PutUint32(b[offDynSuper:offDynSuper+4], sb.DynSuper)
	binary.BigEndian.PutUint32(b[offMaxTransaction:offMaxTransaction+4], sb.MaxTransaction)
	binary.BigEndian.PutUint32(b[offMaxTransData:offMaxTransData+4], sb.MaxTransData)
	b[offChecksumType] = sb.ChecksumType
	copy(b[offUsers:SuperblockSize], sb.Users[:])

	switch {
	case sb.usesChecksumV3(), sb.HasCompatFeature(CompatChecksum):
		binary.BigEndian.PutUint32(b[offChecksum:offChecksum+4], 0)
		sum := crc.Checksum32c(0xffffffff, b)
		binary.BigEndian.PutUint32(b[offChecksum:offChecksum+4], sum)
	default:
		binary.BigEndian.PutUint32(b[offChecksum:offChecksum+4], 0)
	}

	return b
}

// Manager loads and persists the journal superblock against a BlockDevice.
// It is a thin wrapper so that every caller that changes Start, Sequence,
// or a feature flag goes through a single Store path, keeping the in-memory
// copy and the on-disk copy in sync.
type Manager struct {
	dev BlockDevice
}

// NewManager builds a superblock Manager over dev. The superblock always
// lives at byte offset 0 of the journal region.
func NewManager(dev BlockDevice) *Manager {
	return &Manager{dev: dev}
}

// Load reads and decodes the superblock from block 0 of the journal
// region.
func (m *Manager) Load() (*Superblock, error) {
	b, err := m.dev.ReadAt(0)
	if err != nil {
		return nil, NewDeviceIoError("read superblock", err)
	}
	if len(b) < SuperblockSize {
		return nil, fmt.Errorf("%w: block size %d smaller than superblock", ErrMalformedRecord, len(b))
	}
	return DecodeSuperblock(b[:SuperblockSize])
}

// Store encodes and writes sb back to block 0 of the journal region,
// padded to the device's block size.
func (m *Manager) Store(sb *Superblock) error {
	encoded := sb.Encode()
	if pad := int(sb.BlockSize) - len(encoded); pad > 0 {
		encoded = append(encoded, make([]byte, pad)...)
	}
	if err := m.dev.WriteAt(0, encoded); err != nil {
		return NewDeviceIoError("write superblock", err)
	}
	return nil
}

package journal

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/google/uuid"
)

func TestDescriptorTagRoundTrip(t *testing.T) {
	id := uuid.New()
	tags := []DescriptorTag{
		{BlockNr: 0x1_0000_0002, Checksum: 0xabcd, Flags: 0},
		{BlockNr: 7, Checksum: 0, Flags: TagEscape, UUID: &id},
	}
	d := DescriptorBlock{Sequence: 99, Tags: tags}

	encoded, err := EncodeDescriptorBlock(d, BlockSize)
	if err != nil {
		t.Fatalf("EncodeDescriptorBlock: %v", err)
	}

	decoded, err := DecodeDescriptorBlock(encoded)
	if err != nil {
		t.Fatalf("DecodeDescriptorBlock: %v", err)
	}
	if decoded.Sequence != d.Sequence {
		t.Errorf("sequence = %d, want %d", decoded.Sequence, d.Sequence)
	}
	if len(decoded.Tags) != len(tags) {
		t.Fatalf("got %d tags, want %d", len(decoded.Tags), len(tags))
	}
	// the last tag gains TagLast on encode, so spot-check the block number,
	// the TagLast flag and the UUID rather than comparing whole tags
	if decoded.Tags[0].BlockNr != tags[0].BlockNr {
		t.Errorf("tag 0 blocknr = %d, want %d", decoded.Tags[0].BlockNr, tags[0].BlockNr)
	}
	if !decoded.Tags[1].last() {
		t.Error("final tag should carry TagLast")
	}
	if decoded.Tags[1].UUID == nil || *decoded.Tags[1].UUID != id {
		t.Error("tag 1 uuid did not round-trip")
	}
}

func TestDescriptorTagBlockNrLowIsLittleEndian(t *testing.T) {
	tag := DescriptorTag{BlockNr: 0x01020304, Flags: TagSameUUID}
	encoded := encodeTag(tag)
	// blocknr_low occupies the first 4 bytes and must be little-endian,
	// so byte 0 is the least significant byte of BlockNr.
	if encoded[0] != 0x04 || encoded[1] != 0x03 || encoded[2] != 0x02 || encoded[3] != 0x01 {
		t.Fatalf("blocknr_low bytes = % x, want little-endian 01020304", encoded[0:4])
	}
}

func TestCommitBlockRoundTrip(t *testing.T) {
	c := CommitBlock{Sequence: 5, CommitSec: 1700000000, CommitNsec: 123456}
	encoded := EncodeCommitBlock(c, BlockSize)
	decoded, err := DecodeCommitBlock(encoded)
	if err != nil {
		t.Fatalf("DecodeCommitBlock: %v", err)
	}
	if diff := deep.Equal(*decoded, c); diff != nil {
		t.Errorf("commit block round-trip diff: %v", diff)
	}
}

func TestRevokeBlockRoundTrip(t *testing.T) {
	r := RevokeBlock{Sequence: 3, Blocks: []uint64{10, 20, 30}}
	encoded, err := EncodeRevokeBlock(r, BlockSize, false)
	if err != nil {
		t.Fatalf("EncodeRevokeBlock: %v", err)
	}
	decoded, err := DecodeRevokeBlock(encoded, false)
	if err != nil {
		t.Fatalf("DecodeRevokeBlock: %v", err)
	}
	if diff := deep.Equal(*decoded, r); diff != nil {
		t.Errorf("revoke block round-trip diff: %v", diff)
	}
}

func TestRevokeBlock64Bit(t *testing.T) {
	r := RevokeBlock{Sequence: 1, Blocks: []uint64{1 << 40, 2}}
	encoded, err := EncodeRevokeBlock(r, BlockSize, true)
	if err != nil {
		t.Fatalf("EncodeRevokeBlock: %v", err)
	}
	decoded, err := DecodeRevokeBlock(encoded, true)
	if err != nil {
		t.Fatalf("DecodeRevokeBlock: %v", err)
	}
	if diff := deep.Equal(*decoded, r); diff != nil {
		t.Errorf("64-bit revoke block round-trip diff: %v", diff)
	}
}

func TestDecodeDescriptorBlockWrongType(t *testing.T) {
	b := make([]byte, BlockSize)
	copy(b[:headerSize], newHeader(blockTypeCommit, 1).encode())
	if _, err := DecodeDescriptorBlock(b); err == nil {
		t.Fatal("expected error decoding a commit block as a descriptor block")
	}
}

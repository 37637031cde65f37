package journal

import "testing"

func TestBlockHeaderRoundTrip(t *testing.T) {
	h := newHeader(blockTypeDescriptor, 42)
	encoded := h.encode()
	if len(encoded) != headerSize {
		t.Fatalf("encoded header length = %d, want %d", len(encoded), headerSize)
	}

	decoded, err := decodeBlockHeader(encoded)
	if err != nil {
		t.Fatalf("decodeBlockHeader: %v", err)
	}
	if decoded != h {
		t.Fatalf("decoded header = %+v, want %+v", decoded, h)
	}
}

func TestDecodeBlockHeaderBadMagic(t *testing.T) {
	b := make([]byte, headerSize)
	if _, err := decodeBlockHeader(b); err == nil {
		t.Fatal("expected error for all-zero header")
	}
}

func TestBeginsWithMagic(t *testing.T) {
	data := make([]byte, BlockSize)
	if beginsWithMagic(data) {
		t.Fatal("zeroed block should not collide with magic")
	}
	newHeader(blockTypeDescriptor, 1).encode()
	copy(data, newHeader(blockTypeDescriptor, 1).encode())
	if !beginsWithMagic(data) {
		t.Fatal("block starting with magic should be detected")
	}
}

func TestBlockTypeString(t *testing.T) {
	cases := map[blockType]string{
		blockTypeDescriptor:   "descriptor",
		blockTypeCommit:       "commit",
		blockTypeSuperblockV2: "superblock-v2",
		blockTypeRevoke:       "revoke",
	}
	for bt, want := range cases {
		if got := bt.String(); got != want {
			t.Errorf("blockType(%d).String() = %q, want %q", bt, got, want)
		}
	}
}

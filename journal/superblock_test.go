package journal

import (
	"testing"

	"github.com/jbd2/go-journal/journal/journaltest"
)

func TestSuperblockRoundTrip(t *testing.T) {
	sb := NewSuperblock(BlockSize, 1024, 1)
	sb.Start = 5
	sb.Sequence = 2

	encoded := sb.Encode()
	if len(encoded) != SuperblockSize {
		t.Fatalf("encoded length = %d, want %d", len(encoded), SuperblockSize)
	}

	decoded, err := DecodeSuperblock(encoded)
	if err != nil {
		t.Fatalf("DecodeSuperblock: %v", err)
	}
	if decoded.UUID != sb.UUID {
		t.Errorf("uuid mismatch: got %s, want %s", decoded.UUID, sb.UUID)
	}
	if decoded.MaxLen != sb.MaxLen || decoded.First != sb.First || decoded.Start != sb.Start {
		t.Errorf("geometry mismatch: got %+v, want %+v", decoded, sb)
	}
	if !decoded.HasFeature(IncompatCsumV3) {
		t.Error("expected CSUM_V3 feature to round-trip")
	}
}

func TestSuperblockCleanInvariant(t *testing.T) {
	sb := NewSuperblock(BlockSize, 1024, 1)
	if !sb.Clean() {
		t.Fatal("freshly formatted superblock should be clean")
	}
	sb.Start = 7
	if sb.Clean() {
		t.Fatal("superblock with nonzero Start should not be clean")
	}
}

func TestManagerLoadStore(t *testing.T) {
	dev := journaltest.NewMemDevice(64, BlockSize)
	mgr := NewManager(dev)

	sb := NewSuperblock(BlockSize, 64, 1)
	sb.Start = 3
	if err := mgr.Store(sb); err != nil {
		t.Fatalf("Store: %v", err)
	}

	loaded, err := mgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Start != 3 {
		t.Errorf("loaded.Start = %d, want 3", loaded.Start)
	}
}

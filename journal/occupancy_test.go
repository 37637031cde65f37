package journal

import (
	"bytes"
	"testing"
)

func TestOccupancyCountsUncheckpointedTransaction(t *testing.T) {
	_, jnl := formatTestJournal(t, 32)

	trans, err := jnl.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := jnl.MarkDirty(trans, 7, bytes.Repeat([]byte{0x44}, BlockSize)); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
	if err := jnl.Commit(trans); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	occ := jnl.Occupancy()
	// descriptor + data + commit blocks, none checkpointed yet
	if got := occ.Count(); got != 3 {
		t.Fatalf("Occupancy.Count() = %d, want 3", got)
	}
	if !occ.InUse(0) {
		t.Error("the block at First (the descriptor) should be in use")
	}
}

func TestOccupancyEmptyAfterFlush(t *testing.T) {
	_, jnl := formatTestJournal(t, 32)

	trans, err := jnl.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := jnl.MarkDirty(trans, 7, bytes.Repeat([]byte{0x55}, BlockSize)); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
	if err := jnl.Commit(trans); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := jnl.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if got := jnl.Occupancy().Count(); got != 0 {
		t.Fatalf("Occupancy.Count() after Flush = %d, want 0", got)
	}
}

func TestOccupancyEmptyOnFreshFormat(t *testing.T) {
	_, jnl := formatTestJournal(t, 16)
	if got := jnl.Occupancy().Count(); got != 0 {
		t.Fatalf("fresh journal should have no occupied blocks, got %d", got)
	}
}

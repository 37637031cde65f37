package journal

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jbd2/go-journal/journal/journaltest"
)

var errWriteBoom = errors.New("journaltest: simulated write failure")

func formatTestJournal(t *testing.T, nBlocks int) (*journaltest.MemDevice, *Journal) {
	t.Helper()
	dev := journaltest.NewMemDevice(nBlocks, BlockSize)
	jnl, err := Format(dev, uint32(nBlocks-1), Options{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	return dev, jnl
}

func TestCommitThenMountReplays(t *testing.T) {
	const nBlocks = 32
	dev, jnl := formatTestJournal(t, nBlocks)

	home := uint64(20)
	payload := bytes.Repeat([]byte{0xAB}, BlockSize)

	trans, err := jnl.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := jnl.MarkDirty(trans, home, payload); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
	if err := jnl.Commit(trans); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// simulate a crash: nothing has been checkpointed to the home block yet
	if got := dev.BlockAt(int(home)); bytes.Equal(got, payload) {
		t.Fatal("home block should not be written before checkpoint or recovery")
	}

	// remount: the log is dirty, so Mount must replay the committed transaction
	remounted, err := Mount(dev, Options{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if !remounted.LastRecovery().Ran {
		t.Fatal("expected recovery to run on remount")
	}
	if got := dev.BlockAt(int(home)); !bytes.Equal(got, payload) {
		t.Fatal("recovery did not replay the committed transaction to its home block")
	}

	// recovery should leave the log clean
	again, err := Mount(dev, Options{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("second Mount: %v", err)
	}
	if again.LastRecovery().Ran {
		t.Fatal("second mount should be a no-op (log already clean)")
	}
}

func TestTornCommitIsNotReplayed(t *testing.T) {
	const nBlocks = 32
	dev, jnl := formatTestJournal(t, nBlocks)

	home := uint64(5)
	payload := bytes.Repeat([]byte{0x11}, BlockSize)

	trans, err := jnl.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := jnl.MarkDirty(trans, home, payload); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}

	if err := jnl.Commit(trans); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Simulate a crash right before the commit block reached disk: the
	// descriptor and data blocks (log-relative 1 and 2, since block 0 holds
	// the superblock) made it, the commit block (3) did not.
	dev.Truncate(3)

	remounted, err := Mount(dev, Options{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if !remounted.LastRecovery().Ran {
		t.Fatal("expected recovery to run")
	}
	if got := dev.BlockAt(int(home)); bytes.Equal(got, payload) {
		t.Fatal("torn commit must not be replayed")
	}
}

func TestRevokeSuppressesOlderReplay(t *testing.T) {
	const nBlocks = 32
	dev, jnl := formatTestJournal(t, nBlocks)

	home := uint64(0x10)
	first := bytes.Repeat([]byte{0x01}, BlockSize)
	third := bytes.Repeat([]byte{0x03}, BlockSize)

	// T1 writes home
	t1, _ := jnl.Begin()
	_ = jnl.MarkDirty(t1, home, first)
	if err := jnl.Commit(t1); err != nil {
		t.Fatalf("commit t1: %v", err)
	}

	// T2 revokes home
	t2, _ := jnl.Begin()
	_ = jnl.Revoke(t2, home)
	if err := jnl.Commit(t2); err != nil {
		t.Fatalf("commit t2: %v", err)
	}

	// T3 writes home again
	t3, _ := jnl.Begin()
	_ = jnl.MarkDirty(t3, home, third)
	if err := jnl.Commit(t3); err != nil {
		t.Fatalf("commit t3: %v", err)
	}

	if _, err := Mount(dev, Options{Logger: discardLogger()}); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if got := dev.BlockAt(int(home)); !bytes.Equal(got, third) {
		t.Fatal("home block should hold T3's contents after revoke-aware replay")
	}
}

func TestCommitPropagatesDeviceWriteError(t *testing.T) {
	dev, jnl := formatTestJournal(t, 32)

	// block 1 is the first log block the space manager hands out, which
	// the descriptor write targets.
	failAt := int64(1) * BlockSize
	dev.FailAt = &failAt
	dev.FailErr = errWriteBoom

	trans, err := jnl.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := jnl.MarkDirty(trans, 9, bytes.Repeat([]byte{0x22}, BlockSize)); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
	if err := jnl.Commit(trans); err == nil {
		t.Fatal("expected Commit to surface the device write error")
	}
}

func TestBeginTwiceFails(t *testing.T) {
	_, jnl := formatTestJournal(t, 16)
	if _, err := jnl.Begin(); err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	if _, err := jnl.Begin(); err == nil {
		t.Fatal("second Begin before Commit should fail")
	}
}

func TestEscapedBlockRestoredOnReplay(t *testing.T) {
	const nBlocks = 32
	dev, jnl := formatTestJournal(t, nBlocks)

	home := uint64(9)
	payload := make([]byte, BlockSize)
	// collide with the journal magic in the first 4 bytes
	payload[0], payload[1], payload[2], payload[3] = 0xC0, 0x3B, 0x39, 0x98

	trans, _ := jnl.Begin()
	if err := jnl.MarkDirty(trans, home, payload); err != nil {
		t.Fatalf("MarkDirty: %v", err)
	}
	if err := jnl.Commit(trans); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := Mount(dev, Options{Logger: discardLogger()}); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if got := dev.BlockAt(int(home)); !bytes.Equal(got, payload) {
		t.Fatal("escaped block was not restored correctly on replay")
	}
}

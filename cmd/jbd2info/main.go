// Command jbd2info prints the superblock and log occupancy of a journal
// region inside an image or block device file, without running recovery.
package main

import (
	"flag"
	"fmt"
	"log"

	times "gopkg.in/djherbis/times.v1"

	"github.com/jbd2/go-journal/backend"
	"github.com/jbd2/go-journal/backend/file"
	"github.com/jbd2/go-journal/journal"
	"github.com/jbd2/go-journal/util"
)

func check(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	path := flag.String("image", "", "path to the image or device file containing the journal")
	offset := flag.Int64("offset", 0, "byte offset of the journal region within the image")
	dumpBlock := flag.Int("dump-block", -1, "log-relative block index to hex-dump, or -1 to skip")
	flag.Parse()

	if *path == "" {
		log.Fatal("must pass -image")
	}

	if t, err := times.Stat(*path); err == nil {
		fmt.Printf("image mtime: %s\n", t.ModTime())
		if t.HasBirthTime() {
			fmt.Printf("image created: %s\n", t.BirthTime())
		}
	}

	storage, err := file.OpenFromPath(*path, true)
	check(err)

	info, err := storage.Stat()
	check(err)

	region := backend.Sub(storage, *offset, info.Size()-*offset)
	dev := journal.NewBackendDevice(region, journal.BlockSize)
	mgr := journal.NewManager(dev)
	sb, err := mgr.Load()
	check(err)

	fmt.Printf("uuid:        %s\n", sb.UUID)
	fmt.Printf("block size:  %d\n", sb.BlockSize)
	fmt.Printf("max len:     %d\n", sb.MaxLen)
	fmt.Printf("first:       %d\n", sb.First)
	fmt.Printf("start:       %d\n", sb.Start)
	fmt.Printf("sequence:    %d\n", sb.Sequence)
	fmt.Printf("clean:       %v\n", sb.Clean())
	fmt.Printf("64-bit:      %v\n", sb.Uses64BitBlocks())

	if *dumpBlock >= 0 {
		b, err := dev.ReadAt(int64(*dumpBlock) * int64(sb.BlockSize))
		check(err)
		fmt.Printf("block %d:\n%s", *dumpBlock, util.DumpByteSlice(b, 16, true, true, false, nil))
	}

	if !sb.Clean() {
		fmt.Println("journal requires recovery on next mount")
		return
	}
	fmt.Println("no recovery needed")

	// A clean log is safe to mount read-only for an occupancy snapshot; a
	// dirty one is not, since Mount would run recovery against it.
	jnl, err := journal.Mount(dev, journal.Options{})
	check(err)
	occ := jnl.Occupancy()
	fmt.Printf("occupied blocks: %d / %d\n", occ.Count(), occ.MaxLen)
}

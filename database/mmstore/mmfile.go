// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mmstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

// File is a growable memory-mapped file.  The file length and the mapped
// region always agree, so every byte of the mapping is backed by the
// file.  Growth never shrinks the file and remaps with a 1.5x factor so
// the O(n) remap cost amortizes to O(1) per appended byte.
//
// Reserve is the only operation that may move the base address of the
// mapping, which invalidates any views previously returned by Data.  The
// chain database serializes all writers, so only the single writer ever
// triggers a remap; concurrent readers are protected by the sequence
// lock at the database layer.
type File struct {
	path string
	file *os.File
	mm   mmap.MMap
	size uint64

	// retired holds superseded mappings.  They stay mapped until Close
	// so concurrent readers holding views into them keep reading valid
	// memory; the sequence lock makes such readers discard their
	// attempt anyway.
	retired []mmap.MMap
}

// OpenFile opens the file at path read/write, creating it when absent,
// and maps its full contents.  Zero-length files are extended to a single
// byte first since an empty region cannot be mapped.
func OpenFile(path string) (*File, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	size := uint64(info.Size())
	if size == 0 {
		size = 1
		if err := file.Truncate(int64(size)); err != nil {
			file.Close()
			return nil, err
		}
	}

	mm, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	log.Tracef("Mapped %s (%d bytes)", path, size)
	return &File{path: path, file: file, mm: mm, size: size}, nil
}

// Data returns a view of the full mapping.  The view is invalidated by
// the next Reserve that grows the file.
func (f *File) Data() []byte {
	return f.mm
}

// Size returns the current mapped size in bytes.
func (f *File) Size() uint64 {
	return f.size
}

// Reserve guarantees at least size mapped bytes.  When growth is needed
// the file is extended to 1.5x the requested size and remapped.
func (f *File) Reserve(size uint64) error {
	if size <= f.size {
		return nil
	}

	// Grow by half again as much as was asked for.
	newSize := size + size/2

	if err := f.file.Truncate(int64(newSize)); err != nil {
		return fmt.Errorf("truncate %s: %w", f.path, err)
	}

	mm, err := mmap.Map(f.file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("remap %s: %w", f.path, err)
	}

	f.retired = append(f.retired, f.mm)
	f.mm = mm
	f.size = newSize
	return nil
}

// Flush synchronizes the mapping with the backing file.
func (f *File) Flush() error {
	return f.mm.Flush()
}

// Close flushes and unmaps the file, syncs both the file and its
// directory entry, and closes the descriptor.
func (f *File) Close() error {
	for _, mm := range f.retired {
		mm.Unmap()
	}
	f.retired = nil

	if f.mm != nil {
		if err := f.mm.Flush(); err != nil {
			return err
		}
		if err := f.mm.Unmap(); err != nil {
			return err
		}
		f.mm = nil
	}

	if err := f.file.Sync(); err != nil {
		return err
	}

	// Syncing the file does not necessarily flush its entry in the
	// containing directory, so sync that as well.
	if dir, err := os.Open(filepath.Dir(f.path)); err == nil {
		dir.Sync()
		dir.Close()
	}

	log.Tracef("Unmapped %s", f.path)
	return f.file.Close()
}

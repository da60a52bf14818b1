// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package mmstore implements the primitive allocators the chain database is
built from.

Every structure in this package lives inside a memory-mapped file.  Two
allocators are provided: a record allocator that hands out fixed-size
records addressed by a uint32 index, and a slab allocator that hands out
variable-size regions addressed by a uint64 file offset.  On top of the
allocators sit separately-chained hash tables (one flavor per allocator)
and a multimap that strings equal-sized records into per-key LIFO lists.

Writes go straight through the mapping.  The allocators only commit their
element count (or end offset) to the file header on Sync, so a crash
between an allocation and the following Sync simply discards the
tentative elements on the next Start.
*/
package mmstore

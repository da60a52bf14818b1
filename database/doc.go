// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package database implements the on-disk chain store.

The store coordinates five tables over memory-mapped files: the block
table (height index, block rows, and a hash lookup), the transaction
table, the spend table, the address history multimap, and the stealth
scan index.  PushBlock writes a block through every table and commits
the block table last, which is the store's sole durability guarantee: a
crash mid-push leaves the chain top unchanged and the tentative bytes in
the other tables unreachable.  PopBlock reverses a push at the top of
the chain and returns the removed block.

Readers never block the writer.  Every fetch runs under a sequence-lock
retry loop and either observes a consistent pre-write snapshot or
retries.
*/
package database

// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package blockchain implements chain organization on top of the store.

An incoming block passes three validation phases: context-free checks
that need nothing but the block itself, height-dependent accept checks
resolved against the branch it extends, and connect checks that look up
every input's previous output.  Blocks that do not yet connect wait in
an in-memory pool.  When a connected branch accumulates strictly more
proof of work than the confirmed chain above its fork point, the
organizer pops the confirmed suffix and pushes the branch, notifying
one-shot reorganization subscribers.
*/
package blockchain

// Copyright (c) 2025 The libbitcoin-go developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"sync"

	"github.com/btcsuite/btcd/btcutil"
)

// ReorganizeNotification describes one chain reorganization: the fork
// height, the branch blocks now confirmed (oldest first), and the
// formerly confirmed blocks that were displaced (oldest first).  A
// simple extension of the chain is a reorganization with no outgoing
// blocks.
type ReorganizeNotification struct {
	ForkHeight int32
	Incoming   []*btcutil.Block
	Outgoing   []*btcutil.Block
}

// ReorganizeHandler is invoked with a reorganization event.
type ReorganizeHandler func(*ReorganizeNotification)

// TransactionNotification describes the transaction movement caused by
// a reorganization: transactions newly confirmed by incoming blocks and
// transactions returned to an unconfirmed state by outgoing blocks.
type TransactionNotification struct {
	Confirmed   []*btcutil.Tx
	Unconfirmed []*btcutil.Tx
}

// TransactionHandler is invoked with a transaction-movement event.
type TransactionHandler func(*TransactionNotification)

// Subscriptions are one-shot: each registered handler is called exactly
// once with the next event and then dropped.  A handler that wants the
// following event must re-subscribe, which is safe to do from inside
// the handler since the subscriber lock is released before invocation.
type reorganizeSubscriber struct {
	mtx      sync.Mutex
	handlers []ReorganizeHandler
}

func (s *reorganizeSubscriber) subscribe(handler ReorganizeHandler) {
	s.mtx.Lock()
	s.handlers = append(s.handlers, handler)
	s.mtx.Unlock()
}

// take returns the current handlers and clears the subscription list.
func (s *reorganizeSubscriber) take() []ReorganizeHandler {
	s.mtx.Lock()
	handlers := s.handlers
	s.handlers = nil
	s.mtx.Unlock()
	return handlers
}

type transactionSubscriber struct {
	mtx      sync.Mutex
	handlers []TransactionHandler
}

func (s *transactionSubscriber) subscribe(handler TransactionHandler) {
	s.mtx.Lock()
	s.handlers = append(s.handlers, handler)
	s.mtx.Unlock()
}

func (s *transactionSubscriber) take() []TransactionHandler {
	s.mtx.Lock()
	handlers := s.handlers
	s.handlers = nil
	s.mtx.Unlock()
	return handlers
}

// SubscribeReorganize registers a one-shot reorganization handler.
func (c *BlockChain) SubscribeReorganize(handler ReorganizeHandler) {
	c.reorganizeSubs.subscribe(handler)
}

// SubscribeTransactions registers a one-shot transaction-movement
// handler.
func (c *BlockChain) SubscribeTransactions(handler TransactionHandler) {
	c.transactionSubs.subscribe(handler)
}

// notifyReorganize fans the event out to the current subscribers on the
// notification strand, which orders events relative to the writer.
func (c *BlockChain) notifyReorganize(event *ReorganizeNotification) {
	txEvent := &TransactionNotification{}
	for _, block := range event.Incoming {
		txEvent.Confirmed = append(txEvent.Confirmed, block.Transactions()...)
	}
	for _, block := range event.Outgoing {
		txEvent.Unconfirmed = append(txEvent.Unconfirmed, block.Transactions()...)
	}

	c.enqueueNotification(func() {
		for _, handler := range c.reorganizeSubs.take() {
			handler(event)
		}
		for _, handler := range c.transactionSubs.take() {
			handler(txEvent)
		}
	})
}

// enqueueNotification posts a callback to the notification strand.
// Events are dropped once the chain is stopping.
func (c *BlockChain) enqueueNotification(callback func()) {
	select {
	case c.notifications <- callback:
	case <-c.quit:
	}
}

// notificationDispatcher is the strand goroutine: it runs queued
// notification callbacks one at a time, in order.
func (c *BlockChain) notificationDispatcher() {
	defer c.wg.Done()
	for {
		select {
		case callback := <-c.notifications:
			callback()
		case <-c.quit:
			// Drain anything already queued before exiting.
			for {
				select {
				case callback := <-c.notifications:
					callback()
				default:
					return
				}
			}
		}
	}
}

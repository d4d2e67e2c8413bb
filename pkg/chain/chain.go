package chain

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/dexhub/tokenex/pkg/util"
)

// Chain is the in-process transaction host. It gives hosted contract code the
// execution model the contract design assumes: every submitted transaction
// runs serialized under one lock, an operation that returns an error commits
// nothing (its emitted events are discarded), and committed events are stamped
// with (block, txIndex, logIndex) and appended to an ordered log.
//
// Blocks are paced: transactions submitted within BlockInterval of the current
// block's opening share its number and timestamp, mirroring how real chains
// pack multiple transactions per block.
type Chain struct {
	mu sync.Mutex

	id            uint64 // chain id, for config lookups
	clock         util.Clock
	blockInterval time.Duration
	logger        *zap.Logger

	height        uint64
	blockOpenedAt time.Time
	blockTime     int64
	txIndex       uint32

	log  *EventLog
	subs map[uint64]*Subscription
	next uint64

	sink Sink
}

// Sink receives committed logs, for persistence. Appends happen inside the
// commit path, so a sink must not call back into the chain.
type Sink interface {
	AppendLogs(logs []Log) error
}

// Option configures a Chain.
type Option func(*Chain)

func WithClock(c util.Clock) Option            { return func(ch *Chain) { ch.clock = c } }
func WithBlockInterval(d time.Duration) Option { return func(ch *Chain) { ch.blockInterval = d } }
func WithSink(s Sink) Option                   { return func(ch *Chain) { ch.sink = s } }

// New creates a chain host with the given chain id.
func New(id uint64, logger *zap.Logger, opts ...Option) *Chain {
	c := &Chain{
		id:            id,
		clock:         util.RealClock{},
		blockInterval: 200 * time.Millisecond,
		logger:        logger,
		log:           NewEventLog(),
		subs:          make(map[uint64]*Subscription),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ID returns the chain id.
func (c *Chain) ID() uint64 { return c.id }

// Head returns the latest block number.
func (c *Chain) Head() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Tx is the execution environment handed to a transaction function.
type Tx struct {
	timestamp int64
	events    []Event
}

// Timestamp returns the enclosing block's timestamp.
func (tx *Tx) Timestamp() int64 { return tx.timestamp }

// Emit queues an event. It is discarded if the transaction fails.
func (tx *Tx) Emit(ev Event) { tx.events = append(tx.events, ev) }

// Submit runs fn as one transaction. On success the emitted events are
// stamped, appended to the log, handed to the sink and fanned out to
// subscribers. On error nothing is recorded; fn must not mutate state before
// its last fallible step.
func (c *Chain) Submit(fn func(tx *Tx) error) ([]Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.height == 0 || now.Sub(c.blockOpenedAt) >= c.blockInterval {
		c.height++
		c.blockOpenedAt = now
		c.blockTime = now.Unix()
		c.txIndex = 0
	} else {
		c.txIndex++
	}

	tx := &Tx{timestamp: c.blockTime}
	if err := fn(tx); err != nil {
		return nil, err
	}

	txHash := c.hashTx(c.height, c.txIndex)
	logs := make([]Log, len(tx.events))
	for i, ev := range tx.events {
		logs[i] = Log{
			Meta: EventMeta{
				BlockNumber: c.height,
				TxIndex:     c.txIndex,
				LogIndex:    uint32(i),
				TxHash:      txHash,
				Timestamp:   c.blockTime,
			},
			Event: ev,
		}
	}

	c.log.Append(logs)
	if c.sink != nil {
		if err := c.sink.AppendLogs(logs); err != nil {
			c.logger.Warn("event sink append failed", zap.Error(err))
		}
	}
	for _, sub := range c.subs {
		sub.deliver(logs, c.logger)
	}
	return logs, nil
}

func (c *Chain) hashTx(height uint64, txIndex uint32) [32]byte {
	var buf [12]byte
	binary.BigEndian.PutUint64(buf[:8], height)
	binary.BigEndian.PutUint32(buf[8:], txIndex)
	return crypto.Keccak256Hash(buf[:])
}

// Restore reloads a persisted event log and resumes block numbering after its
// last block. Call before any Submit.
func (c *Chain) Restore(logs []Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Restore(logs)
	if n := len(logs); n > 0 {
		c.height = logs[n-1].Meta.BlockNumber
		c.blockOpenedAt = time.Time{} // force a fresh block on next submit
	}
}

// FilterLogs returns all committed logs with the given event name in
// [fromBlock, toBlock], in canonical order. An empty name matches every event.
func (c *Chain) FilterLogs(name string, fromBlock, toBlock uint64) []Log {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.Filter(name, fromBlock, toBlock)
}

// Subscribe registers a live log subscriber. The returned subscription's
// channel receives every log committed after this call. Slow subscribers have
// logs dropped rather than stalling the commit path.
func (c *Chain) Subscribe(buffer int) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	sub := &Subscription{id: c.next, ch: make(chan Log, buffer), chain: c}
	c.subs[sub.id] = sub
	return sub
}

func (c *Chain) unsubscribe(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(sub.ch)
	}
}

// Subscription is a live feed of committed logs. Close exactly once when the
// owning session is torn down; further receives drain the closed channel.
type Subscription struct {
	id    uint64
	ch    chan Log
	chain *Chain

	closeOnce sync.Once
}

// Logs returns the receive channel. It is closed by Close.
func (s *Subscription) Logs() <-chan Log { return s.ch }

// Close withdraws the subscription.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() { s.chain.unsubscribe(s.id) })
}

func (s *Subscription) deliver(logs []Log, logger *zap.Logger) {
	for _, l := range logs {
		select {
		case s.ch <- l:
		default:
			logger.Warn("subscriber buffer full, dropping log",
				zap.Uint64("sub", s.id),
				zap.String("event", l.Event.Name()),
				zap.Uint64("block", l.Meta.BlockNumber))
		}
	}
}

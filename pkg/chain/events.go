package chain

import (
	"github.com/ethereum/go-ethereum/common"
)

// Event is anything a hosted contract emits during a transaction.
type Event interface {
	Name() string
}

// EventMeta positions an event in the canonical chain ordering. Block
// timestamps are not strictly monotonic across transactions in the same block,
// so (BlockNumber, TxIndex, LogIndex) is the only total order consumers may
// rely on.
type EventMeta struct {
	BlockNumber uint64
	TxIndex     uint32
	LogIndex    uint32
	TxHash      common.Hash
	Timestamp   int64 // block timestamp, unix seconds
}

// Before reports whether m precedes o in canonical order.
func (m EventMeta) Before(o EventMeta) bool {
	if m.BlockNumber != o.BlockNumber {
		return m.BlockNumber < o.BlockNumber
	}
	if m.TxIndex != o.TxIndex {
		return m.TxIndex < o.TxIndex
	}
	return m.LogIndex < o.LogIndex
}

// Log is an event stamped with its position.
type Log struct {
	Meta  EventMeta
	Event Event
}

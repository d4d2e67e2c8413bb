package storage

import "fmt"

// Pebble key schema. Zero-padded numeric components keep range scans in
// canonical (block, txIndex, logIndex) order.
const (
	keyState  = "state:exchange"
	prefixLog = "log:"
)

func logKey(block uint64, txIndex, logIndex uint32) []byte {
	return []byte(fmt.Sprintf("%s%020d:%010d:%010d", prefixLog, block, txIndex, logIndex))
}

func logPrefix() []byte {
	return []byte(prefixLog)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

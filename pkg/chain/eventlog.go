package chain

// EventLog is the append-only record of committed logs. Logs arrive already in
// canonical order because the chain commit path is serialized.
type EventLog struct {
	logs []Log
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

// Append adds committed logs to the tail.
func (el *EventLog) Append(logs []Log) {
	el.logs = append(el.logs, logs...)
}

// Len returns the number of recorded logs.
func (el *EventLog) Len() int { return len(el.logs) }

// Filter returns logs with the given event name in [fromBlock, toBlock].
// An empty name matches every event.
func (el *EventLog) Filter(name string, fromBlock, toBlock uint64) []Log {
	var out []Log
	for _, l := range el.logs {
		if l.Meta.BlockNumber < fromBlock || l.Meta.BlockNumber > toBlock {
			continue
		}
		if name != "" && l.Event.Name() != name {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Restore replaces the log contents, used when reloading from storage.
func (el *EventLog) Restore(logs []Log) {
	el.logs = logs
}

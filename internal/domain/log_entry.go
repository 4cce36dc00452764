package domain

// LogEntry represents a contract log returned by the chain. Data and topics
// stay hex encoded as delivered by the node.
type LogEntry struct {
	BlockNumber uint64
	TxHash      string
	LogIndex    uint64
	Address     string
	Data        string
	Topics      []string
	Removed     bool
}

// LogFilter selects logs by emitting contracts and positional topics. An
// empty Addresses matches any contract. A nil slot in Topics matches any
// value; a slot with several values matches any of them.
type LogFilter struct {
	Addresses []string
	Topics    [][]string
}

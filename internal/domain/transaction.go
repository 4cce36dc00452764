package domain

// Transaction represents a chain transaction record.
type Transaction struct {
	TxHash      string
	BlockNumber uint64
	From        string
	To          string
	Value       string
	Input       string
}

// TxCandidate is a transaction hash worth analyzing, discovered by a
// candidate source. Timestamp is unix seconds and may be zero when the
// source could not resolve it.
type TxCandidate struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Timestamp   uint64 `json:"timeStamp"`
}

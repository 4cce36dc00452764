package domain

const (
	TxStatusSuccess = "success"
	TxStatusFailed  = "failed"
)

// Receipt is the subset of a transaction receipt the analyzer reads.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Status      uint64
	From        string
	To          string
	Logs        []LogEntry
}

// StatusLabel maps the receipt status word to "success" or "failed".
func (r Receipt) StatusLabel() string {
	if r.Status == 1 {
		return TxStatusSuccess
	}
	return TxStatusFailed
}

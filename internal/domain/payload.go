package domain

import "encoding/json"

const SourceTxInput = "tx.input"

// PayloadCandidate is a text fragment recovered from opaque bytes. JSON is
// nil when the text did not parse.
type PayloadCandidate struct {
	Source   string          `json:"source"`
	Contract string          `json:"contract,omitempty"`
	LogIndex *uint64         `json:"logIndex,omitempty"`
	Text     string          `json:"text"`
	JSON     json.RawMessage `json:"json"`
	Offset   uint64          `json:"offset,omitempty"`
	Length   uint64          `json:"length,omitempty"`
}

// ShareMintClaim is a share mint announced by a cmd.mint.shares payload.
type ShareMintClaim struct {
	ClubID string
	Shares int64
	Handle string
	Source string
}

// ClubMetadataClaim is announced by a cmd.mint.clubsmc payload.
type ClubMetadataClaim struct {
	ClubID   string `json:"clubId"`
	Amount   int64  `json:"n"`
	Source   string `json:"fromLog"`
	Contract string `json:"contract,omitempty"`
}

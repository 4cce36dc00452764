package streaming

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type MessageType string

const MessageTypePackPurchase MessageType = "pack_purchase"

// Message is the event published for every purchase found by a wallet scan.
type Message struct {
	Type          MessageType      `json:"type"`
	ChainID       uint64           `json:"chain_id"`
	Wallet        string           `json:"wallet"`
	TxHash        string           `json:"tx_hash"`
	BlockNumber   uint64           `json:"block_number"`
	Timestamp     uint64           `json:"timestamp,omitempty"`
	Packs         int64            `json:"packs"`
	PriceUSDC     *decimal.Decimal `json:"price_usdc,omitempty"`
	UnitPriceUSDC *decimal.Decimal `json:"unit_price_usdc,omitempty"`
	FeesUSDC      decimal.Decimal  `json:"fees_usdc"`
	Influence     int64            `json:"influence"`
	MainClub      string           `json:"main_club,omitempty"`
	Secondaries   int              `json:"secondaries"`
}

func (m Message) validate() error {
	switch {
	case m.Type == "":
		return errors.New("message type is required")
	case m.Type != MessageTypePackPurchase:
		return fmt.Errorf("unsupported message type %q", m.Type)
	case m.ChainID == 0:
		return errors.New("chain_id is required")
	case m.Wallet == "":
		return errors.New("wallet is required")
	case m.TxHash == "":
		return errors.New("tx_hash is required")
	case m.Packs <= 0:
		return errors.New("packs must be positive")
	}
	return nil
}

func Encode(msg Message) ([]byte, error) {
	if err := msg.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if err := msg.validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

package application

import (
	"math/big"
	"strings"

	"packscan/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	TransferEventTopic       = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	TransferSingleEventTopic = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))
)

// TransferDecoder recognises one token-transfer event shape. TryDecode must
// never panic on malformed input; it reports ok=false instead.
type TransferDecoder interface {
	TryDecode(log domain.LogEntry) (domain.TransferRecord, bool)
}

// DefaultTransferDecoders returns the decoders in the order they are tried.
func DefaultTransferDecoders(transferTopic, singleTopic common.Hash) []TransferDecoder {
	return []TransferDecoder{
		FungibleTransferDecoder{Topic: transferTopic},
		SingleTransferDecoder{Topic: singleTopic},
	}
}

// DecodeTransfer returns the first successful decode.
func DecodeTransfer(decoders []TransferDecoder, log domain.LogEntry) (domain.TransferRecord, bool) {
	for _, decoder := range decoders {
		if record, ok := decoder.TryDecode(log); ok {
			return record, true
		}
	}
	return domain.TransferRecord{}, false
}

// FungibleTransferDecoder handles Transfer(address,address,uint256), shared by
// ERC-20 and ERC-721. The amount is read from data, so ERC-721 transfers with
// an indexed token id (empty data) do not match.
type FungibleTransferDecoder struct {
	Topic common.Hash
}

func (d FungibleTransferDecoder) TryDecode(log domain.LogEntry) (domain.TransferRecord, bool) {
	if len(log.Topics) < 3 || !topicEquals(log.Topics[0], d.Topic) {
		return domain.TransferRecord{}, false
	}
	from, ok := topicAddress(log.Topics[1])
	if !ok {
		return domain.TransferRecord{}, false
	}
	to, ok := topicAddress(log.Topics[2])
	if !ok {
		return domain.TransferRecord{}, false
	}
	data, ok := decodeHex(log.Data)
	if !ok || len(data) == 0 {
		return domain.TransferRecord{}, false
	}
	return domain.TransferRecord{
		Standard:   domain.StandardERC20Or721,
		Contract:   strings.ToLower(log.Address),
		From:       from,
		To:         to,
		AmountOrID: new(big.Int).SetBytes(data).String(),
		LogIndex:   log.LogIndex,
	}, true
}

// SingleTransferDecoder handles ERC-1155 TransferSingle.
type SingleTransferDecoder struct {
	Topic common.Hash
}

func (d SingleTransferDecoder) TryDecode(log domain.LogEntry) (domain.TransferRecord, bool) {
	if len(log.Topics) < 4 || !topicEquals(log.Topics[0], d.Topic) {
		return domain.TransferRecord{}, false
	}
	data, ok := decodeHex(log.Data)
	if !ok || len(data) < 2*wordSize {
		return domain.TransferRecord{}, false
	}
	operator, ok1 := topicAddress(log.Topics[1])
	from, ok2 := topicAddress(log.Topics[2])
	to, ok3 := topicAddress(log.Topics[3])
	if !ok1 || !ok2 || !ok3 {
		return domain.TransferRecord{}, false
	}
	return domain.TransferRecord{
		Standard:   domain.StandardERC1155Single,
		Contract:   strings.ToLower(log.Address),
		Operator:   operator,
		From:       from,
		To:         to,
		AmountOrID: new(big.Int).SetBytes(data[:wordSize]).String(),
		Value:      new(big.Int).SetBytes(data[wordSize : 2*wordSize]).String(),
		LogIndex:   log.LogIndex,
	}, true
}

func topicEquals(topic string, want common.Hash) bool {
	hash, ok := parseTopic(topic)
	return ok && hash == want
}

func parseTopic(topic string) (common.Hash, bool) {
	raw, err := hexutil.Decode(topic)
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(raw), true
}

// topicAddress takes the low 20 bytes of an indexed address topic.
func topicAddress(topic string) (string, bool) {
	hash, ok := parseTopic(topic)
	if !ok {
		return "", false
	}
	return strings.ToLower(common.BytesToAddress(hash[12:]).Hex()), true
}

// AddressTopic left-pads an address into a 32-byte topic value.
func AddressTopic(address string) string {
	return strings.ToLower(common.BytesToHash(common.HexToAddress(address).Bytes()).Hex())
}

// decodeHex accepts "0x"-prefixed hex of even length. "" decodes to an
// empty slice.
func decodeHex(value string) ([]byte, bool) {
	if value == "" {
		return []byte{}, true
	}
	raw, err := hexutil.Decode(value)
	if err != nil {
		return nil, false
	}
	return raw, true
}

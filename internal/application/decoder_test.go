package application

import (
	"strings"
	"testing"

	"packscan/internal/domain"
)

func TestEventTopicsMatchKnownHashes(t *testing.T) {
	if got := TransferEventTopic.Hex(); got != "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef" {
		t.Fatalf("unexpected transfer topic %s", got)
	}
	if got := TransferSingleEventTopic.Hex(); got != "0xc3d58168c5ae7397731d063d5bbf3d657854427343f4c083240f7aacaa2d0f62" {
		t.Fatalf("unexpected transfer single topic %s", got)
	}
}

func TestDecodeFungibleTransfer(t *testing.T) {
	decoders := DefaultTransferDecoders(TransferEventTopic, TransferSingleEventTopic)
	log := domain.LogEntry{
		Address:  "0x3C499C542CEF5E3811E1192CE70D8CC03D5C3359",
		Topics:   []string{strings.ToUpper(TransferEventTopic.Hex()[2:]), topicFor(testBuyer), topicFor(testSeller)},
		Data:     uintData(1_000_000),
		LogIndex: 3,
	}
	log.Topics[0] = "0x" + log.Topics[0]

	record, ok := DecodeTransfer(decoders, log)
	if !ok {
		t.Fatalf("expected transfer to decode")
	}
	if record.Standard != domain.StandardERC20Or721 {
		t.Fatalf("unexpected standard %s", record.Standard)
	}
	if record.From != testBuyer || record.To != testSeller {
		t.Fatalf("unexpected parties %s -> %s", record.From, record.To)
	}
	if record.Contract != DefaultUSDCContract {
		t.Fatalf("expected lower-cased contract, got %s", record.Contract)
	}
	if record.AmountOrID != "1000000" || record.LogIndex != 3 {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestDecodeFungibleTransferUsesLow20Bytes(t *testing.T) {
	dirty := "0xffffffffffffffffffffffff" + strings.Repeat("ab", 20)
	log := domain.LogEntry{
		Topics: []string{TransferEventTopic.Hex(), dirty, topicFor(testSeller)},
		Data:   uintData(1),
	}
	record, ok := FungibleTransferDecoder{Topic: TransferEventTopic}.TryDecode(log)
	if !ok {
		t.Fatalf("expected decode")
	}
	if record.From != "0x"+strings.Repeat("ab", 20) {
		t.Fatalf("unexpected from %s", record.From)
	}
}

func TestDecodeRejectsMalformedLogs(t *testing.T) {
	decoders := DefaultTransferDecoders(TransferEventTopic, TransferSingleEventTopic)
	cases := map[string]domain.LogEntry{
		"empty data": {
			Topics: []string{TransferEventTopic.Hex(), topicFor(testBuyer), topicFor(testSeller)},
			Data:   "0x",
		},
		"missing topics": {
			Topics: []string{TransferEventTopic.Hex(), topicFor(testBuyer)},
			Data:   uintData(1),
		},
		"short topic": {
			Topics: []string{TransferEventTopic.Hex(), "0x1234", topicFor(testSeller)},
			Data:   uintData(1),
		},
		"bad hex": {
			Topics: []string{TransferEventTopic.Hex(), topicFor(testBuyer), topicFor(testSeller)},
			Data:   "0xzz",
		},
		"unknown topic": {
			Topics: []string{"0x" + strings.Repeat("12", 32), topicFor(testBuyer), topicFor(testSeller)},
			Data:   uintData(1),
		},
		"1155 short data": {
			Topics: []string{TransferSingleEventTopic.Hex(), topicFor(testBuyer), topicFor(testBuyer), topicFor(testSeller)},
			Data:   uintData(5),
		},
		"no topics": {},
	}
	for name, log := range cases {
		t.Run(name, func(t *testing.T) {
			if record, ok := DecodeTransfer(decoders, log); ok {
				t.Fatalf("expected no match, got %+v", record)
			}
		})
	}
}

func TestDecodeTransferSingle(t *testing.T) {
	decoders := DefaultTransferDecoders(TransferEventTopic, TransferSingleEventTopic)
	operator := "0x3333333333333333333333333333333333333333"
	log := domain.LogEntry{
		Address:  "0xABCDEF0000000000000000000000000000000000",
		Topics:   []string{TransferSingleEventTopic.Hex(), topicFor(operator), topicFor(testSeller), topicFor(testBuyer)},
		Data:     "0x" + word(42) + word(7),
		LogIndex: 9,
	}
	record, ok := DecodeTransfer(decoders, log)
	if !ok {
		t.Fatalf("expected 1155 decode")
	}
	if record.Standard != domain.StandardERC1155Single {
		t.Fatalf("unexpected standard %s", record.Standard)
	}
	if record.Operator != operator || record.From != testSeller || record.To != testBuyer {
		t.Fatalf("unexpected parties %+v", record)
	}
	if record.AmountOrID != "42" || record.Value != "7" {
		t.Fatalf("unexpected id/value %s/%s", record.AmountOrID, record.Value)
	}
}

func TestAddressTopic(t *testing.T) {
	got := AddressTopic("0xABCDEF0000000000000000000000000000000001")
	want := "0x000000000000000000000000abcdef0000000000000000000000000000000001"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

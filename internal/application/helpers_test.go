package application

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	testBuyer  = "0x1111111111111111111111111111111111111111"
	testSeller = "0x2222222222222222222222222222222222222222"
)

func word(v uint64) string {
	return fmt.Sprintf("%064x", v)
}

// abiString encodes payload as a single dynamic string argument.
func abiString(payload string) string {
	padded := len(payload)
	if rem := padded % 32; rem != 0 {
		padded += 32 - rem
	}
	body := hex.EncodeToString([]byte(payload)) + strings.Repeat("00", padded-len(payload))
	return word(32) + word(uint64(len(payload))) + body
}

func topicFor(address string) string {
	return "0x" + strings.Repeat("0", 24) + strings.TrimPrefix(strings.ToLower(address), "0x")
}

func uintData(v uint64) string {
	return "0x" + word(v)
}

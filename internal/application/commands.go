package application

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"packscan/internal/domain"
)

type CommandKind string

const (
	CommandUnknown CommandKind = "unknown"
	CommandMove    CommandKind = "move"
	CommandCmd     CommandKind = "cmd"
	CommandMint    CommandKind = "mint"
)

// Command is a recovered payload matched against the known shapes. Shares
// and ClubSMC are only set for cmd.mint payloads that carry valid claims.
type Command struct {
	Kind    CommandKind
	Shares  *domain.ShareMintClaim
	ClubSMC *domain.ClubMetadataClaim
}

// Interesting reports whether the payload looks like a game command: a truthy
// "mv", or an object-valued "cmd" or "mint".
func (c Command) Interesting() bool {
	return c.Kind != CommandUnknown
}

// ClassifyPayload never fails; unrecognised input is CommandUnknown.
func ClassifyPayload(raw json.RawMessage) Command {
	var top map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &top) != nil || top == nil {
		return Command{Kind: CommandUnknown}
	}

	cmd := Command{Kind: CommandUnknown}
	switch {
	case truthy(top["mv"]):
		cmd.Kind = CommandMove
	case isObject(top["cmd"]):
		cmd.Kind = CommandCmd
	case isObject(top["mint"]):
		cmd.Kind = CommandMint
	}
	if !isObject(top["cmd"]) {
		return cmd
	}

	var body map[string]json.RawMessage
	if json.Unmarshal(top["cmd"], &body) != nil {
		return cmd
	}
	var mint map[string]json.RawMessage
	if !isObject(body["mint"]) || json.Unmarshal(body["mint"], &mint) != nil {
		return cmd
	}
	if claim, ok := shareClaim(mint["shares"], top["r"]); ok {
		cmd.Shares = &claim
	}
	if claim, ok := clubMetadataClaim(mint["clubsmc"]); ok {
		cmd.ClubSMC = &claim
	}
	return cmd
}

func shareClaim(raw, fallbackHandle json.RawMessage) (domain.ShareMintClaim, bool) {
	var shares map[string]json.RawMessage
	if !isObject(raw) || json.Unmarshal(raw, &shares) != nil {
		return domain.ShareMintClaim{}, false
	}
	var club json.RawMessage
	if isObject(shares["s"]) {
		var nested map[string]json.RawMessage
		if json.Unmarshal(shares["s"], &nested) == nil && !isNull(nested["club"]) {
			club = nested["club"]
		}
	}
	if club == nil {
		club = shares["club"]
	}
	clubID, ok := identifier(club)
	if !ok {
		return domain.ShareMintClaim{}, false
	}
	amount, ok := positiveCount(shares["n"])
	if !ok {
		return domain.ShareMintClaim{}, false
	}
	handle, _ := stringValue(shares["r"])
	if handle == "" {
		handle, _ = stringValue(fallbackHandle)
	}
	return domain.ShareMintClaim{ClubID: clubID, Shares: amount, Handle: handle}, true
}

func clubMetadataClaim(raw json.RawMessage) (domain.ClubMetadataClaim, bool) {
	var smc map[string]json.RawMessage
	if !isObject(raw) || json.Unmarshal(raw, &smc) != nil {
		return domain.ClubMetadataClaim{}, false
	}
	clubID, ok := identifier(smc["c"])
	if !ok {
		return domain.ClubMetadataClaim{}, false
	}
	amount, ok := positiveCount(smc["n"])
	if !ok {
		return domain.ClubMetadataClaim{}, false
	}
	return domain.ClubMetadataClaim{ClubID: clubID, Amount: amount}, true
}

// identifier accepts a non-zero number or a non-empty string and returns its
// canonical text, so 7 and "7" name the same club.
func identifier(raw json.RawMessage) (string, bool) {
	if s, ok := stringValue(raw); ok {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	f, err := n.Float64()
	if err != nil || f == 0 {
		return "", false
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), true
	}
	return n.String(), true
}

// positiveCount accepts integral JSON numbers or numeric strings greater
// than zero.
func positiveCount(raw json.RawMessage) (int64, bool) {
	var text string
	if s, ok := stringValue(raw); ok {
		text = strings.TrimSpace(s)
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, false
		}
		text = n.String()
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i, i > 0
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f <= 0 || f != math.Trunc(f) || f > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func stringValue(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || raw[0] != '"' || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// truthy uses JavaScript truthiness: false, 0, "" and null are falsy.
func truthy(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch trimmed[0] {
	case 'n', 'f':
		return false
	case '"':
		return len(trimmed) > 2
	case '{', '[', 't':
		return true
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return false
	}
	f, err := n.Float64()
	return err == nil && f != 0
}

package application

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"
	"unicode"

	"packscan/internal/domain"
)

const (
	wordSize         = 32
	maxPayloadLength = 100_000
)

// ExtractPayloads scans ABI-like byte buffers for dynamic string/bytes
// values. Each 32-byte aligned word is treated as a potential offset to a
// length-prefixed region; regions that decode to text are returned together
// with their loosely parsed JSON. Nothing here returns an error: anything
// that does not look like text is skipped.
func ExtractPayloads(data []byte) []domain.PayloadCandidate {
	if len(data) < wordSize {
		return nil
	}
	total := uint64(len(data))
	var out []domain.PayloadCandidate
	for base := 0; base+wordSize <= len(data); base += wordSize {
		off, ok := readWord(data[base : base+wordSize])
		if !ok || off < wordSize || off > total-wordSize {
			continue
		}
		length, ok := readWord(data[off : off+wordSize])
		if !ok || length == 0 || length > maxPayloadLength {
			continue
		}
		start := off + wordSize
		end := start + length
		if end > total {
			continue
		}
		text, ok := printableText(data[start:end])
		if !ok {
			continue
		}
		out = append(out, domain.PayloadCandidate{
			Text:   text,
			JSON:   parseJSONLoose(text),
			Offset: off,
			Length: length,
		})
	}
	return out
}

// ExtractPayloadsHex is ExtractPayloads over a hex string. Undecodable hex
// yields no candidates.
func ExtractPayloadsHex(hexData string) []domain.PayloadCandidate {
	data, ok := decodeHex(hexData)
	if !ok {
		return nil
	}
	return ExtractPayloads(data)
}

// ExtractWholeText decodes the entire buffer as text and parses it loosely.
// It reports ok only when JSON was recovered.
func ExtractWholeText(data []byte) (domain.PayloadCandidate, bool) {
	text, ok := printableText(data)
	if !ok {
		return domain.PayloadCandidate{}, false
	}
	parsed := parseJSONLoose(text)
	if parsed == nil {
		return domain.PayloadCandidate{}, false
	}
	return domain.PayloadCandidate{Text: text, JSON: parsed, Length: uint64(len(data))}, true
}

func readWord(word []byte) (uint64, bool) {
	value := new(big.Int).SetBytes(word)
	if !value.IsUint64() {
		return 0, false
	}
	return value.Uint64(), true
}

// printableText decodes bytes as UTF-8, replacing invalid sequences, and
// accepts the result when at least one character is plausibly part of a
// JSON document. NUL padding is removed.
func printableText(raw []byte) (string, bool) {
	text := strings.ToValidUTF8(string(raw), "\uFFFD")
	if strings.IndexFunc(text, isPayloadRune) < 0 {
		return "", false
	}
	return strings.ReplaceAll(text, "\x00", ""), true
}

func isPayloadRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case unicode.IsSpace(r):
		return true
	}
	return strings.ContainsRune(`{}[]":,._-`, r)
}

// parseJSONLoose tries a strict parse first, then the greedy span from the
// first '{' to the last '}'.
func parseJSONLoose(text string) json.RawMessage {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if json.Valid([]byte(trimmed)) {
		return compactJSON(trimmed)
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil
	}
	span := text[start : end+1]
	if !json.Valid([]byte(span)) {
		return nil
	}
	return compactJSON(span)
}

func compactJSON(valid string) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(valid)); err != nil {
		return json.RawMessage(valid)
	}
	return json.RawMessage(buf.Bytes())
}

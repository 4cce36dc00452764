package application

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"packscan/internal/domain"
)

var (
	walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

const (
	DefaultScanLimit = 80
	MaxScanLimit     = 500

	MaxExplorerPages    = 25
	MaxExplorerPageSize = 100
)

// NormalizeWallet validates a 0x-prefixed 20-byte address and lower-cases it.
func NormalizeWallet(raw string) (string, error) {
	wallet := strings.TrimSpace(raw)
	if !walletPattern.MatchString(wallet) {
		return "", invalid("wallet", "expected 0x followed by 40 hex characters")
	}
	return strings.ToLower(wallet), nil
}

func NormalizeTxHash(raw string) (string, error) {
	hash := strings.TrimSpace(raw)
	if !txHashPattern.MatchString(hash) {
		return "", invalid("hash", "expected 0x followed by 64 hex characters")
	}
	return strings.ToLower(hash), nil
}

// ParseLimit applies the default for an empty value and clamps to [1, 500].
func ParseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultScanLimit, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid("limit", "not an integer")
	}
	return ClampLimit(value), nil
}

func ClampLimit(limit int) int {
	return min(max(limit, 1), MaxScanLimit)
}

// ParseBlock parses an optional block bound.
func ParseBlock(field, raw string) (*uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, invalid(field, "not a block number")
	}
	return &value, nil
}

// ParsePages reads an explorer page count. Empty means 0, the configured
// default; anything else is clamped to [1, 25].
func ParsePages(raw string) (int, error) {
	return parseClamped("pages", raw, MaxExplorerPages)
}

// ParsePageSize is ParsePages for the explorer page size, clamped to [1, 100].
func ParsePageSize(raw string) (int, error) {
	return parseClamped("pageSize", raw, MaxExplorerPageSize)
}

func parseClamped(field, raw string, upper int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid(field, "not an integer")
	}
	return min(max(value, 1), upper), nil
}

// ParseContracts reads a comma-separated list of extra token contracts.
func ParseContracts(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return NormalizeContracts(strings.Split(raw, ","))
}

// NormalizeContracts lower-cases and dedupes contract addresses, dropping
// blank entries.
func NormalizeContracts(list []string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{}, len(list))
	for _, item := range list {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if !walletPattern.MatchString(item) {
			return nil, invalid("contracts", fmt.Sprintf("%q is not a contract address", item))
		}
		item = strings.ToLower(item)
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out, nil
}

func ParseSource(raw string) (string, error) {
	switch source := strings.ToLower(strings.TrimSpace(raw)); source {
	case "":
		return domain.SourceAuto, nil
	case domain.SourceAuto, domain.SourceExplorer, domain.SourceRPC:
		return source, nil
	default:
		return "", invalid("source", "expected auto, polygonscan or rpc")
	}
}

package domain

import "time"

const (
	SourceAuto     = "auto"
	SourceExplorer = "polygonscan"
	SourceRPC      = "rpc"
)

// PackPurchase is one detected purchase in a wallet scan.
type PackPurchase struct {
	TxHash           string       `json:"txHash"`
	BlockNumber      uint64       `json:"blockNumber"`
	Timestamp        uint64       `json:"timeStamp,omitempty"`
	Packs            int64        `json:"packs"`
	PriceUSDC        *USDC        `json:"priceUSDC"`
	UnitPriceUSDC    *USDC        `json:"unitPriceUSDC"`
	FeesUSDC         USDC         `json:"feesUSDC"`
	InfluenceTotal   int64        `json:"influenceTotal"`
	MainClub         *string      `json:"mainClub"`
	SecondariesCount int          `json:"secondariesCount"`
	Details          *PackSummary `json:"details"`
}

type ScanTotals struct {
	Packs            int64 `json:"packs"`
	SpentUSDC        USDC  `json:"spentUSDC"`
	UnitPriceAvgUSDC *USDC `json:"unitPriceAvgUSDC"`
	Influence        int64 `json:"influence"`
}

// BlockRange is an inclusive block interval. Nil bounds are open.
type BlockRange struct {
	From *uint64 `json:"from"`
	To   *uint64 `json:"to"`
}

// ScanFailure records a candidate whose analysis did not complete.
type ScanFailure struct {
	TxHash string `json:"txHash"`
	Error  string `json:"error"`
}

type ScanStats struct {
	Source        string        `json:"source"`
	Candidates    int           `json:"candidates"`
	Analyzed      int           `json:"analyzed"`
	PacksDetected int           `json:"packsDetected"`
	Range         BlockRange    `json:"range"`
	Failures      []ScanFailure `json:"failures,omitempty"`
	Debug         any           `json:"debug,omitempty"`
}

// ScanResult is the outcome of a wallet scan.
type ScanResult struct {
	Wallet    string         `json:"wallet"`
	Scans     ScanStats      `json:"scans"`
	Totals    ScanTotals     `json:"totals"`
	Items     []PackPurchase `json:"items"`
	StartedAt time.Time      `json:"-"`
	Duration  time.Duration  `json:"-"`
}

// ScanRecord is the journal row kept for every completed wallet scan.
type ScanRecord struct {
	ID            int64      `json:"id"`
	Wallet        string     `json:"wallet"`
	Source        string     `json:"source"`
	Candidates    int        `json:"candidates"`
	Analyzed      int        `json:"analyzed"`
	PacksDetected int        `json:"packsDetected"`
	Failures      int        `json:"failures"`
	Packs         int64      `json:"packs"`
	SpentUSDC     USDC       `json:"spentUSDC"`
	Influence     int64      `json:"influence"`
	Range         BlockRange `json:"range"`
	TxHashes      []string   `json:"txHashes"`
	StartedAt     time.Time  `json:"startedAt"`
	DurationMs    int64      `json:"durationMs"`
}

func NewScanRecord(result ScanResult) ScanRecord {
	hashes := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		hashes = append(hashes, item.TxHash)
	}
	return ScanRecord{
		Wallet:        result.Wallet,
		Source:        result.Scans.Source,
		Candidates:    result.Scans.Candidates,
		Analyzed:      result.Scans.Analyzed,
		PacksDetected: result.Scans.PacksDetected,
		Failures:      len(result.Scans.Failures),
		Packs:         result.Totals.Packs,
		SpentUSDC:     result.Totals.SpentUSDC,
		Influence:     result.Totals.Influence,
		Range:         result.Scans.Range,
		TxHashes:      hashes,
		StartedAt:     result.StartedAt.UTC(),
		DurationMs:    result.Duration.Milliseconds(),
	}
}

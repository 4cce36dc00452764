package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"packscan/internal/domain"

	"github.com/shopspring/decimal"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestNewRepositoryRequiresPath(t *testing.T) {
	if _, err := NewRepository(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestRecordAndListScans(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	from := uint64(100)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := domain.ScanResult{
		Wallet:    "0xaaa",
		Scans:     domain.ScanStats{Source: domain.SourceRPC, Candidates: 3, Analyzed: 3, PacksDetected: 1, Range: domain.BlockRange{From: &from}},
		Totals:    domain.ScanTotals{Packs: 2, SpentUSDC: domain.NewUSDC(decimal.RequireFromString("99.5")), Influence: 80},
		Items:     []domain.PackPurchase{{TxHash: "0x01", Packs: 2}},
		StartedAt: base,
		Duration:  1500 * time.Millisecond,
	}
	second := domain.ScanResult{
		Wallet:    "0xbbb",
		Scans:     domain.ScanStats{Source: domain.SourceExplorer, Failures: []domain.ScanFailure{{TxHash: "0x02", Error: "boom"}}},
		Totals:    domain.ScanTotals{SpentUSDC: domain.NewUSDC(decimal.Zero)},
		StartedAt: base.Add(time.Minute),
	}
	for _, result := range []domain.ScanResult{first, second} {
		if err := repo.RecordScan(ctx, result); err != nil {
			t.Fatalf("record scan: %v", err)
		}
	}

	records, err := repo.RecentScans(ctx, 10)
	if err != nil {
		t.Fatalf("recent scans: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Wallet != "0xbbb" || records[0].Failures != 1 || len(records[0].TxHashes) != 0 {
		t.Fatalf("unexpected newest record %+v", records[0])
	}
	got := records[1]
	if got.Packs != 2 || !got.SpentUSDC.Equal(decimal.RequireFromString("99.5")) || got.Influence != 80 {
		t.Fatalf("unexpected totals %+v", got)
	}
	if got.Range.From == nil || *got.Range.From != 100 || got.Range.To != nil {
		t.Fatalf("unexpected range %+v", got.Range)
	}
	if len(got.TxHashes) != 1 || got.TxHashes[0] != "0x01" {
		t.Fatalf("unexpected tx hashes %v", got.TxHashes)
	}
	if !got.StartedAt.Equal(base) || got.DurationMs != 1500 {
		t.Fatalf("unexpected timing %s %d", got.StartedAt, got.DurationMs)
	}

	limited, err := repo.RecentScans(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected 1 record with limit, got %d (%v)", len(limited), err)
	}
}

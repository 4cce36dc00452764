package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"packscan/internal/domain"

	"github.com/shopspring/decimal"
)

type staticSource struct {
	name       string
	candidates []domain.TxCandidate
	calls      int
	last       CandidateRequest
	err        error
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Candidates(_ context.Context, req CandidateRequest) (CandidateSet, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return CandidateSet{}, s.err
	}
	return CandidateSet{Source: s.name, Candidates: s.candidates}, nil
}

type scriptedAnalyzer struct {
	mu       sync.Mutex
	results  map[string]domain.TxAnalysis
	errs     map[string]error
	analyzed []string
	buyers   []string
}

func (s *scriptedAnalyzer) Analyze(_ context.Context, txHash, buyer string) (domain.TxAnalysis, error) {
	s.mu.Lock()
	s.analyzed = append(s.analyzed, txHash)
	s.buyers = append(s.buyers, buyer)
	s.mu.Unlock()
	if err := s.errs[txHash]; err != nil {
		return domain.TxAnalysis{}, err
	}
	return s.results[txHash], nil
}

type recordingHooks struct {
	mu        sync.Mutex
	recorded  []domain.ScanResult
	published []domain.PackPurchase
	completed int
	analyzed  int
}

func (r *recordingHooks) RecordScan(_ context.Context, result domain.ScanResult) error {
	r.recorded = append(r.recorded, result)
	return nil
}

func (r *recordingHooks) PublishPacks(_ context.Context, _ string, items []domain.PackPurchase) error {
	r.published = append(r.published, items...)
	return errors.New("broker unavailable")
}

func (r *recordingHooks) OnScanCompleted(string, int, int, int, time.Duration, error) {
	r.completed++
}

func (r *recordingHooks) OnTxAnalyzed(string, error) {
	r.mu.Lock()
	r.analyzed++
	r.mu.Unlock()
}

func packAnalysis(hash string, packs int64, price string) domain.TxAnalysis {
	p := domain.NewUSDC(decimal.RequireFromString(price))
	unit := domain.NewUSDC(p.Div(decimal.NewFromInt(packs)))
	return domain.TxAnalysis{
		TxHash:      hash,
		Status:      domain.TxStatusSuccess,
		BlockNumber: 1,
		PackSummary: &domain.PackSummary{
			PriceUSDC:     &p,
			UnitPriceUSDC: &unit,
			Packs:         packs,
			Influence:     domain.Influence{Main: packs * 40, Total: packs * 40},
			Shares:        domain.ShareBreakdown{MainClub: &domain.MainClubShares{ClubID: "7", Amount: packs * 40}},
		},
	}
}

func TestScanWalletAggregates(t *testing.T) {
	source := &staticSource{name: domain.SourceRPC, candidates: []domain.TxCandidate{
		{TxHash: "0x01", Timestamp: 10},
		{TxHash: "0x02", Timestamp: 30},
		{TxHash: "0x01", Timestamp: 40},
		{TxHash: "0x03", Timestamp: 20},
		{TxHash: "0x04", Timestamp: 5},
		{TxHash: "0x05", Timestamp: 1},
	}}
	failed := packAnalysis("0x03", 1, "10")
	failed.Status = domain.TxStatusFailed
	analyzer := &scriptedAnalyzer{
		results: map[string]domain.TxAnalysis{
			"0x01": packAnalysis("0x01", 2, "100"),
			"0x02": packAnalysis("0x02", 1, "49.5"),
			"0x03": failed,
			"0x04": {TxHash: "0x04", Status: domain.TxStatusSuccess},
		},
		errs: map[string]error{"0x05": errors.New("rpc status 502")},
	}
	hooks := &recordingHooks{}
	scanner, err := NewScanner(analyzer, []CandidateSource{source}, ScannerHooks{Observer: hooks, Recorder: hooks, Publisher: hooks}, ScannerConfig{Concurrency: 2})
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}

	result, err := scanner.ScanWallet(context.Background(), ScanRequest{Wallet: "0x1111111111111111111111111111111111111111", Source: "rpc", Limit: 5})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Scans.Candidates != 5 || result.Scans.Analyzed != 5 {
		t.Fatalf("unexpected stats %+v", result.Scans)
	}
	if len(result.Items) != 2 || result.Scans.PacksDetected != 2 {
		t.Fatalf("expected 2 pack items, got %d", len(result.Items))
	}
	if result.Items[0].TxHash != "0x01" || result.Items[0].Timestamp != 40 {
		t.Fatalf("expected deduped newest-first ordering, got %+v", result.Items[0])
	}
	if len(result.Scans.Failures) != 1 || result.Scans.Failures[0].TxHash != "0x05" {
		t.Fatalf("expected captured failure, got %+v", result.Scans.Failures)
	}
	if result.Totals.Packs != 3 || !result.Totals.SpentUSDC.Equal(decimal.RequireFromString("149.5")) {
		t.Fatalf("unexpected totals %+v", result.Totals)
	}
	if result.Totals.UnitPriceAvgUSDC == nil || !result.Totals.UnitPriceAvgUSDC.Equal(decimal.RequireFromString("149.5").Div(decimal.NewFromInt(3))) {
		t.Fatalf("unexpected average %v", result.Totals.UnitPriceAvgUSDC)
	}
	if result.Totals.Influence != 120 {
		t.Fatalf("unexpected influence %d", result.Totals.Influence)
	}
	for _, buyer := range analyzer.buyers {
		if buyer != testBuyer {
			t.Fatalf("expected wallet passed as buyer, got %s", buyer)
		}
	}
	if len(hooks.recorded) != 1 || len(hooks.published) != 2 || hooks.completed != 1 || hooks.analyzed != 5 {
		t.Fatalf("unexpected hook calls %+v", hooks)
	}
}

func TestScanWalletValidatesBeforeNetwork(t *testing.T) {
	source := &staticSource{name: domain.SourceRPC}
	scanner, _ := NewScanner(&scriptedAnalyzer{}, []CandidateSource{source}, ScannerHooks{}, ScannerConfig{})
	from, to := uint64(10), uint64(5)
	requests := []ScanRequest{
		{Wallet: "not-an-address", Source: "rpc"},
		{Wallet: testBuyer, Source: "carrier-pigeon"},
		{Wallet: testBuyer, Source: "polygonscan"},
		{Wallet: testBuyer, Source: "rpc", FromBlock: &from, ToBlock: &to},
		{Wallet: testBuyer, Source: "rpc", Contracts: []string{"usdc.e"}},
	}
	for _, req := range requests {
		_, err := scanner.ScanWallet(context.Background(), req)
		var validation *ValidationError
		if !errors.As(err, &validation) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}
	if source.calls != 0 {
		t.Fatalf("expected no source calls, got %d", source.calls)
	}
}

func TestScanWalletForwardsExplorerOptions(t *testing.T) {
	source := &staticSource{name: domain.SourceExplorer}
	scanner, _ := NewScanner(&scriptedAnalyzer{}, []CandidateSource{source}, ScannerHooks{}, ScannerConfig{})
	bridged := "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	_, err := scanner.ScanWallet(context.Background(), ScanRequest{
		Wallet:    testBuyer,
		Source:    "polygonscan",
		Pages:     99,
		PageSize:  -3,
		Contracts: []string{bridged, " ", bridged},
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if source.last.Pages != MaxExplorerPages || source.last.PageSize != 1 {
		t.Fatalf("expected clamped paging, got %d/%d", source.last.Pages, source.last.PageSize)
	}
	if len(source.last.Contracts) != 1 || source.last.Contracts[0] != strings.ToLower(bridged) {
		t.Fatalf("unexpected contracts %v", source.last.Contracts)
	}
}

func TestScanWalletEmptyHasNullAverage(t *testing.T) {
	scanner, _ := NewScanner(&scriptedAnalyzer{}, []CandidateSource{&staticSource{name: domain.SourceAuto}}, ScannerHooks{}, ScannerConfig{})
	result, err := scanner.ScanWallet(context.Background(), ScanRequest{Wallet: testBuyer})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Totals.UnitPriceAvgUSDC != nil || result.Totals.Packs != 0 || len(result.Items) != 0 {
		t.Fatalf("unexpected totals %+v", result.Totals)
	}
}

func TestScanWalletSourceFailure(t *testing.T) {
	source := &staticSource{name: domain.SourceRPC, err: &RangeUnserviceableError{From: 1, To: 2, Err: errors.New("too many")}}
	scanner, _ := NewScanner(&scriptedAnalyzer{}, []CandidateSource{source}, ScannerHooks{}, ScannerConfig{})
	_, err := scanner.ScanWallet(context.Background(), ScanRequest{Wallet: testBuyer, Source: "rpc"})
	var rangeErr *RangeUnserviceableError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected range error, got %v", err)
	}
}

func TestScannerAnalyzeValidatesHash(t *testing.T) {
	scanner, _ := NewScanner(&scriptedAnalyzer{}, []CandidateSource{&staticSource{name: domain.SourceRPC}}, ScannerHooks{}, ScannerConfig{})
	_, err := scanner.Analyze(context.Background(), "0x1234", "")
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

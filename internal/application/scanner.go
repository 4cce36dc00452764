package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"packscan/internal/domain"

	"github.com/shopspring/decimal"
)

type TxAnalyzer interface {
	Analyze(ctx context.Context, txHash, buyer string) (domain.TxAnalysis, error)
}

type ScanObserver interface {
	OnScanCompleted(source string, candidates, packs, failures int, duration time.Duration, err error)
	OnTxAnalyzed(status string, err error)
}

// ScanRecorder keeps an audit trail of completed scans.
type ScanRecorder interface {
	RecordScan(ctx context.Context, result domain.ScanResult) error
}

type PackPublisher interface {
	PublishPacks(ctx context.Context, wallet string, items []domain.PackPurchase) error
}

type ScannerHooks struct {
	Observer  ScanObserver
	Recorder  ScanRecorder
	Publisher PackPublisher
}

type ScannerConfig struct {
	Concurrency int
	Timeout     time.Duration
}

// ScanRequest describes one wallet scan. Zero Pages or PageSize keep the
// configured explorer paging; Contracts extend the scanned USDC contract.
type ScanRequest struct {
	Wallet    string
	Limit     int
	Source    string
	FromBlock *uint64
	ToBlock   *uint64
	APIKey    string
	Pages     int
	PageSize  int
	Contracts []string
}

const (
	defaultScanConcurrency = 4
	defaultScanTimeout     = 2 * time.Minute
	sideEffectTimeout      = 5 * time.Second
)

// Scanner discovers a wallet's candidate transactions and analyzes them with
// bounded concurrency.
type Scanner struct {
	analyzer TxAnalyzer
	sources  map[string]CandidateSource
	hooks    ScannerHooks
	cfg      ScannerConfig
}

func NewScanner(analyzer TxAnalyzer, sources []CandidateSource, hooks ScannerHooks, cfg ScannerConfig) (*Scanner, error) {
	if analyzer == nil {
		return nil, errors.New("scanner analyzer must not be nil")
	}
	if len(sources) == 0 {
		return nil, errors.New("scanner needs at least one candidate source")
	}
	byName := make(map[string]CandidateSource, len(sources))
	for _, source := range sources {
		if source == nil {
			return nil, errors.New("scanner candidate source must not be nil")
		}
		byName[source.Name()] = source
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultScanConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultScanTimeout
	}
	return &Scanner{analyzer: analyzer, sources: byName, hooks: hooks, cfg: cfg}, nil
}

// Analyze runs a single-transaction analysis. The buyer is optional.
func (s *Scanner) Analyze(ctx context.Context, txHash, buyer string) (domain.TxAnalysis, error) {
	hash, err := NormalizeTxHash(txHash)
	if err != nil {
		return domain.TxAnalysis{}, err
	}
	if buyer != "" {
		if buyer, err = NormalizeWallet(buyer); err != nil {
			return domain.TxAnalysis{}, err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.analyzer.Analyze(ctx, hash, buyer)
}

func (s *Scanner) ScanWallet(ctx context.Context, req ScanRequest) (domain.ScanResult, error) {
	started := time.Now()
	wallet, err := NormalizeWallet(req.Wallet)
	if err != nil {
		return domain.ScanResult{}, err
	}
	sourceName, err := ParseSource(req.Source)
	if err != nil {
		return domain.ScanResult{}, err
	}
	source, ok := s.sources[sourceName]
	if !ok {
		return domain.ScanResult{}, invalid("source", fmt.Sprintf("%s is not configured", sourceName))
	}
	if req.FromBlock != nil && req.ToBlock != nil && *req.FromBlock > *req.ToBlock {
		return domain.ScanResult{}, invalid("range", "startblock is after endblock")
	}
	limit := DefaultScanLimit
	if req.Limit != 0 {
		limit = ClampLimit(req.Limit)
	}
	contracts, err := NormalizeContracts(req.Contracts)
	if err != nil {
		return domain.ScanResult{}, err
	}
	pages, pageSize := req.Pages, req.PageSize
	if pages != 0 {
		pages = min(max(pages, 1), MaxExplorerPages)
	}
	if pageSize != 0 {
		pageSize = min(max(pageSize, 1), MaxExplorerPageSize)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	result, err := s.scan(ctx, source, CandidateRequest{
		Wallet:    wallet,
		FromBlock: req.FromBlock,
		ToBlock:   req.ToBlock,
		APIKey:    strings.TrimSpace(req.APIKey),
		Pages:     pages,
		PageSize:  pageSize,
		Contracts: contracts,
	}, limit)
	result.Wallet = wallet
	result.StartedAt = started
	result.Duration = time.Since(started)
	if s.hooks.Observer != nil {
		s.hooks.Observer.OnScanCompleted(sourceName, result.Scans.Candidates, result.Scans.PacksDetected, len(result.Scans.Failures), result.Duration, err)
	}
	if err != nil {
		return domain.ScanResult{}, err
	}
	s.afterScan(ctx, result)
	return result, nil
}

type scanOutcome struct {
	analysis domain.TxAnalysis
	err      error
}

func (s *Scanner) scan(ctx context.Context, source CandidateSource, req CandidateRequest, limit int) (domain.ScanResult, error) {
	set, err := source.Candidates(ctx, req)
	if err != nil {
		return domain.ScanResult{}, fmt.Errorf("%s candidates: %w", source.Name(), err)
	}
	candidates := dedupeCandidates(set.Candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	outcomes := make([]scanOutcome, len(candidates))
	err = ForEachIndex(ctx, len(candidates), s.cfg.Concurrency, func(ctx context.Context, i int) error {
		analysis, err := s.analyzer.Analyze(ctx, candidates[i].TxHash, req.Wallet)
		outcomes[i] = scanOutcome{analysis: analysis, err: err}
		if s.hooks.Observer != nil {
			s.hooks.Observer.OnTxAnalyzed(analysis.Status, err)
		}
		return nil
	})
	if err != nil {
		return domain.ScanResult{}, err
	}

	result := domain.ScanResult{
		Scans: domain.ScanStats{
			Source:     set.Source,
			Candidates: len(candidates),
			Analyzed:   len(outcomes),
			Range:      set.Range,
			Debug:      set.Debug,
		},
		Items: []domain.PackPurchase{},
	}
	for i, outcome := range outcomes {
		if outcome.err != nil {
			slog.Debug("transaction analysis failed", "tx", candidates[i].TxHash, "error", outcome.err)
			result.Scans.Failures = append(result.Scans.Failures, domain.ScanFailure{TxHash: candidates[i].TxHash, Error: outcome.err.Error()})
			continue
		}
		if item, ok := toPurchase(outcome.analysis, candidates[i]); ok {
			result.Items = append(result.Items, item)
		}
	}
	result.Scans.PacksDetected = len(result.Items)
	result.Totals = Aggregate(result.Items)
	return result, nil
}

func (s *Scanner) afterScan(ctx context.Context, result domain.ScanResult) {
	if s.hooks.Recorder == nil && s.hooks.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if s.hooks.Recorder != nil {
		if err := s.hooks.Recorder.RecordScan(ctx, result); err != nil {
			slog.Warn("record scan failed", "wallet", result.Wallet, "error", err)
		}
	}
	if s.hooks.Publisher != nil && len(result.Items) > 0 {
		if err := s.hooks.Publisher.PublishPacks(ctx, result.Wallet, result.Items); err != nil {
			slog.Warn("publish packs failed", "wallet", result.Wallet, "error", err)
		}
	}
}

func dedupeCandidates(in []domain.TxCandidate) []domain.TxCandidate {
	byHash := make(map[string]domain.TxCandidate, len(in))
	for _, c := range in {
		hash := strings.ToLower(c.TxHash)
		if hash == "" {
			continue
		}
		c.TxHash = hash
		if existing, ok := byHash[hash]; !ok || c.Timestamp > existing.Timestamp {
			byHash[hash] = c
		}
	}
	out := make([]domain.TxCandidate, 0, len(byHash))
	for _, c := range byHash {
		out = append(out, c)
	}
	SortCandidates(out)
	return out
}

func toPurchase(analysis domain.TxAnalysis, candidate domain.TxCandidate) (domain.PackPurchase, bool) {
	pack := analysis.PackSummary
	if analysis.Status != domain.TxStatusSuccess || pack == nil || pack.Packs <= 0 {
		return domain.PackPurchase{}, false
	}
	item := domain.PackPurchase{
		TxHash:           analysis.TxHash,
		BlockNumber:      analysis.BlockNumber,
		Timestamp:        candidate.Timestamp,
		Packs:            pack.Packs,
		PriceUSDC:        pack.PriceUSDC,
		UnitPriceUSDC:    pack.UnitPriceUSDC,
		FeesUSDC:         pack.ExtraFeesUSDC,
		InfluenceTotal:   pack.Influence.Total,
		SecondariesCount: len(pack.Shares.SecondaryClubs),
		Details:          pack,
	}
	if pack.Shares.MainClub != nil {
		club := pack.Shares.MainClub.ClubID
		item.MainClub = &club
	}
	return item, true
}

// Aggregate sums the detected purchases. The average unit price is nil when
// no packs were found.
func Aggregate(items []domain.PackPurchase) domain.ScanTotals {
	spent := decimal.Zero
	var totals domain.ScanTotals
	for _, item := range items {
		totals.Packs += item.Packs
		totals.Influence += item.InfluenceTotal
		if item.PriceUSDC != nil {
			spent = spent.Add(item.PriceUSDC.Decimal)
		}
	}
	totals.SpentUSDC = domain.NewUSDC(spent)
	if totals.Packs > 0 {
		avg := domain.NewUSDC(spent.Div(decimal.NewFromInt(totals.Packs)))
		totals.UnitPriceAvgUSDC = &avg
	}
	return totals
}

package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"packscan/internal/domain"
)

const (
	defaultExplorerPages    = 3
	defaultExplorerPageSize = 100
	defaultLookbackBlocks   = 1_000_000
)

// CandidateRequest scopes a lookup. Pages and PageSize override the
// explorer defaults when positive. Contracts are scanned in addition to the
// source's own USDC contract.
type CandidateRequest struct {
	Wallet    string
	FromBlock *uint64
	ToBlock   *uint64
	APIKey    string
	Pages     int
	PageSize  int
	Contracts []string
}

// CandidateSet is what a source discovered, newest first.
type CandidateSet struct {
	Source     string
	Candidates []domain.TxCandidate
	Range      domain.BlockRange
	Debug      any
}

// CandidateSource discovers transactions worth analyzing for a wallet.
type CandidateSource interface {
	Name() string
	Candidates(ctx context.Context, req CandidateRequest) (CandidateSet, error)
}

// TokenTransfer is one row of an explorer's token transfer listing.
type TokenTransfer struct {
	Hash        string
	From        string
	To          string
	Contract    string
	Value       string
	BlockNumber uint64
	Timestamp   uint64
}

type TokenTransferQuery struct {
	Address    string
	Contract   string
	StartBlock uint64
	EndBlock   *uint64
	Page       int
	PageSize   int
	APIKey     string
}

// TokenTransferPage holds the rows of a page. An explorer "no results"
// answer is an empty page, not an error.
type TokenTransferPage struct {
	Transfers []TokenTransfer
	Status    string
	Message   string
}

type TokenTransferLister interface {
	TokenTransfers(ctx context.Context, q TokenTransferQuery) (TokenTransferPage, error)
	HasAPIKey() bool
}

type ExplorerPageDebug struct {
	Contract     string `json:"contract"`
	Page         int    `json:"page"`
	Fetched      int    `json:"fetched"`
	KeptOutgoing int    `json:"keptOutgoing"`
	Status       string `json:"status,omitempty"`
	Message      string `json:"message,omitempty"`
}

type ExplorerDebug struct {
	APIKeyProvided bool                `json:"apikeyProvided"`
	Contracts      []string            `json:"contracts"`
	PageSize       int                 `json:"pageSize"`
	PagesRequested int                 `json:"pagesRequested"`
	TokenTx        []ExplorerPageDebug `json:"tokenTx"`
}

// ExplorerSource lists outgoing USDC transfers through a block explorer.
type ExplorerSource struct {
	lister   TokenTransferLister
	contract string
	pages    int
	pageSize int
}

func NewExplorerSource(lister TokenTransferLister, contract string, pages, pageSize int) (*ExplorerSource, error) {
	if lister == nil {
		return nil, errors.New("explorer source lister must not be nil")
	}
	if strings.TrimSpace(contract) == "" {
		contract = DefaultUSDCContract
	}
	if pages <= 0 {
		pages = defaultExplorerPages
	}
	if pageSize <= 0 {
		pageSize = defaultExplorerPageSize
	}
	return &ExplorerSource{lister: lister, contract: strings.ToLower(contract), pages: pages, pageSize: pageSize}, nil
}

func (s *ExplorerSource) Name() string { return domain.SourceExplorer }

func (s *ExplorerSource) HasAPIKey(req CandidateRequest) bool {
	return req.APIKey != "" || s.lister.HasAPIKey()
}

// Candidates walks every contract page by page. Without a ToBlock the
// explorer is asked for full history up to its latest block.
func (s *ExplorerSource) Candidates(ctx context.Context, req CandidateRequest) (CandidateSet, error) {
	wallet := strings.ToLower(req.Wallet)
	start := uint64(0)
	if req.FromBlock != nil {
		start = *req.FromBlock
	}
	pages, pageSize := s.pages, s.pageSize
	if req.Pages > 0 {
		pages = req.Pages
	}
	if req.PageSize > 0 {
		pageSize = req.PageSize
	}
	contracts := mergeContracts(s.contract, req.Contracts)

	debug := ExplorerDebug{APIKeyProvided: s.HasAPIKey(req), Contracts: contracts, PageSize: pageSize, PagesRequested: pages}
	byHash := make(map[string]domain.TxCandidate)
	for _, contract := range contracts {
		for page := 1; page <= pages; page++ {
			result, err := s.lister.TokenTransfers(ctx, TokenTransferQuery{
				Address:    wallet,
				Contract:   contract,
				StartBlock: start,
				EndBlock:   req.ToBlock,
				Page:       page,
				PageSize:   pageSize,
				APIKey:     req.APIKey,
			})
			if err != nil {
				return CandidateSet{}, fmt.Errorf("explorer %s page %d: %w", contract, page, err)
			}
			kept := 0
			for _, t := range result.Transfers {
				if strings.ToLower(t.From) != wallet || t.Hash == "" {
					continue
				}
				kept++
				hash := strings.ToLower(t.Hash)
				if existing, ok := byHash[hash]; !ok || t.Timestamp > existing.Timestamp {
					byHash[hash] = domain.TxCandidate{TxHash: hash, BlockNumber: t.BlockNumber, Timestamp: t.Timestamp}
				}
			}
			debug.TokenTx = append(debug.TokenTx, ExplorerPageDebug{
				Contract:     contract,
				Page:         page,
				Fetched:      len(result.Transfers),
				KeptOutgoing: kept,
				Status:       result.Status,
				Message:      result.Message,
			})
			if len(result.Transfers) < pageSize {
				break
			}
		}
	}

	candidates := make([]domain.TxCandidate, 0, len(byHash))
	for _, c := range byHash {
		candidates = append(candidates, c)
	}
	SortCandidates(candidates)
	return CandidateSet{
		Source:     s.Name(),
		Candidates: candidates,
		Range:      domain.BlockRange{From: &start, To: req.ToBlock},
		Debug:      debug,
	}, nil
}

type BlockNumberReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

type TransactionFetcher interface {
	FetchTransactions(ctx context.Context, filter domain.LogFilter, fromBlock, toBlock uint64) ([]domain.TxCandidate, error)
}

type RPCDebug struct {
	Latest    uint64   `json:"latestBlock"`
	Lookback  uint64   `json:"lookbackBlocks"`
	Contracts []string `json:"contracts"`
}

// RPCSource discovers candidates from USDC Transfer logs sent by the wallet.
type RPCSource struct {
	blocks   BlockNumberReader
	fetcher  TransactionFetcher
	contract string
	topic    string
	lookback uint64
}

func NewRPCSource(blocks BlockNumberReader, fetcher TransactionFetcher, contract, transferTopic string, lookback uint64) (*RPCSource, error) {
	if blocks == nil || fetcher == nil {
		return nil, errors.New("rpc source dependencies must not be nil")
	}
	if strings.TrimSpace(contract) == "" {
		contract = DefaultUSDCContract
	}
	if strings.TrimSpace(transferTopic) == "" {
		transferTopic = TransferEventTopic.Hex()
	}
	if lookback == 0 {
		lookback = defaultLookbackBlocks
	}
	return &RPCSource{
		blocks:   blocks,
		fetcher:  fetcher,
		contract: strings.ToLower(contract),
		topic:    strings.ToLower(transferTopic),
		lookback: lookback,
	}, nil
}

func (s *RPCSource) Name() string { return domain.SourceRPC }

func (s *RPCSource) Candidates(ctx context.Context, req CandidateRequest) (CandidateSet, error) {
	latest, err := s.blocks.BlockNumber(ctx)
	if err != nil {
		return CandidateSet{}, fmt.Errorf("latest block: %w", err)
	}
	to := latest
	if req.ToBlock != nil && *req.ToBlock < latest {
		to = *req.ToBlock
	}
	from := uint64(0)
	if latest > s.lookback {
		from = latest - s.lookback
	}
	if req.FromBlock != nil {
		from = *req.FromBlock
	}
	if from > to {
		return CandidateSet{}, invalid("range", fmt.Sprintf("start block %d is after end block %d", from, to))
	}

	contracts := mergeContracts(s.contract, req.Contracts)
	filter := domain.LogFilter{
		Addresses: contracts,
		Topics:    [][]string{{s.topic}, {AddressTopic(req.Wallet)}},
	}
	candidates, err := s.fetcher.FetchTransactions(ctx, filter, from, to)
	if err != nil {
		return CandidateSet{}, err
	}
	return CandidateSet{
		Source:     s.Name(),
		Candidates: candidates,
		Range:      domain.BlockRange{From: &from, To: &to},
		Debug:      RPCDebug{Latest: latest, Lookback: s.lookback, Contracts: contracts},
	}, nil
}

// mergeContracts puts the primary contract first and appends extras not
// already listed.
func mergeContracts(primary string, extra []string) []string {
	out := []string{primary}
	for _, c := range extra {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || slices.Contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

type AutoDebug struct {
	Selected      string `json:"selected"`
	FallbackError string `json:"fallbackError,omitempty"`
	Inner         any    `json:"inner,omitempty"`
}

// AutoSource prefers the explorer when an API key is available and falls
// back to RPC logs when it has none or the explorer call fails.
type AutoSource struct {
	explorer *ExplorerSource
	rpc      CandidateSource
}

func NewAutoSource(explorer *ExplorerSource, rpc CandidateSource) (*AutoSource, error) {
	if rpc == nil {
		return nil, errors.New("auto source requires an rpc source")
	}
	return &AutoSource{explorer: explorer, rpc: rpc}, nil
}

func (s *AutoSource) Name() string { return domain.SourceAuto }

func (s *AutoSource) Candidates(ctx context.Context, req CandidateRequest) (CandidateSet, error) {
	var fallback string
	if s.explorer != nil && s.explorer.HasAPIKey(req) {
		set, err := s.explorer.Candidates(ctx, req)
		if err == nil {
			set.Debug = AutoDebug{Selected: set.Source, Inner: set.Debug}
			return set, nil
		}
		if ctx.Err() != nil {
			return CandidateSet{}, err
		}
		slog.Warn("explorer candidate lookup failed, falling back to rpc", "wallet", req.Wallet, "error", err)
		fallback = err.Error()
	}
	set, err := s.rpc.Candidates(ctx, req)
	if err != nil {
		return CandidateSet{}, err
	}
	set.Debug = AutoDebug{Selected: set.Source, FallbackError: fallback, Inner: set.Debug}
	return set, nil
}

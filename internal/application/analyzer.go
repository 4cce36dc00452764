package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"packscan/internal/domain"

	"golang.org/x/sync/errgroup"
)

type ChainReader interface {
	TransactionReceipt(ctx context.Context, txHash string) (domain.Receipt, bool, error)
	TransactionByHash(ctx context.Context, txHash string) (domain.Transaction, bool, error)
}

const selectorSize = 4

// Analyzer reconstructs what happened in a single transaction from its
// receipt logs and call data.
type Analyzer struct {
	chain    ChainReader
	decoders []TransferDecoder
	rules    PackRules
}

func NewAnalyzer(chain ChainReader, decoders []TransferDecoder, rules PackRules) (*Analyzer, error) {
	if chain == nil {
		return nil, errors.New("analyzer chain reader must not be nil")
	}
	if len(decoders) == 0 {
		decoders = DefaultTransferDecoders(TransferEventTopic, TransferSingleEventTopic)
	}
	return &Analyzer{chain: chain, decoders: decoders, rules: rules.withDefaults()}, nil
}

// Analyze fetches the receipt and the transaction concurrently and builds the
// full analysis. buyer may be empty, in which case no price is derived.
func (a *Analyzer) Analyze(ctx context.Context, txHash, buyer string) (domain.TxAnalysis, error) {
	var (
		receipt      domain.Receipt
		receiptFound bool
		tx           domain.Transaction
		txFound      bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		receipt, receiptFound, err = a.chain.TransactionReceipt(gctx, txHash)
		if err != nil {
			return fmt.Errorf("get receipt %s: %w", txHash, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		tx, txFound, err = a.chain.TransactionByHash(gctx, txHash)
		if err != nil {
			return fmt.Errorf("get transaction %s: %w", txHash, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.TxAnalysis{}, err
	}
	if !receiptFound {
		return domain.TxAnalysis{}, fmt.Errorf("%s: %w", txHash, ErrReceiptNotFound)
	}

	analysis := domain.TxAnalysis{
		TxHash:         strings.ToLower(txHash),
		Status:         receipt.StatusLabel(),
		BlockNumber:    receipt.BlockNumber,
		LogsCount:      len(receipt.Logs),
		Transfers:      []domain.TransferRecord{},
		JSONCandidates: []domain.PayloadCandidate{},
		InputJSONs:     []domain.PayloadCandidate{},
		Interesting:    []domain.PayloadCandidate{},
	}
	to := receipt.To
	if txFound && tx.To != "" {
		to = tx.To
	}
	if to != "" {
		analysis.To = &to
	}

	for _, log := range receipt.Logs {
		if record, ok := DecodeTransfer(a.decoders, log); ok {
			analysis.Transfers = append(analysis.Transfers, record)
		}
	}
	for i, log := range receipt.Logs {
		if log.Data == "" || log.Data == "0x" {
			continue
		}
		logIndex := log.LogIndex
		for _, c := range ExtractPayloadsHex(log.Data) {
			c.Source = fmt.Sprintf("log[%d].data", i)
			c.Contract = strings.ToLower(log.Address)
			c.LogIndex = &logIndex
			analysis.JSONCandidates = append(analysis.JSONCandidates, c)
		}
	}
	if txFound {
		analysis.InputJSONs = append(analysis.InputJSONs, inputPayloads(tx.Input)...)
	}

	var shares []domain.ShareMintClaim
	var clubs []domain.ClubMetadataClaim
	for _, group := range [][]domain.PayloadCandidate{analysis.JSONCandidates, analysis.InputJSONs} {
		for _, c := range group {
			if c.JSON == nil {
				continue
			}
			cmd := ClassifyPayload(c.JSON)
			if !cmd.Interesting() {
				continue
			}
			analysis.Interesting = append(analysis.Interesting, c)
			if cmd.Shares != nil {
				claim := *cmd.Shares
				claim.Source = c.Source
				shares = append(shares, claim)
			}
			if cmd.ClubSMC != nil {
				claim := *cmd.ClubSMC
				claim.Source = c.Source
				claim.Contract = c.Contract
				clubs = append(clubs, claim)
			}
		}
	}

	analysis.PackSummary = BuildPackSummary(shares, clubs, analysis.Transfers, buyer, a.rules)
	return analysis, nil
}

// inputPayloads scans call data. The 4-byte selector is skipped when the
// remainder is word aligned. When the offset scan recovers no JSON the whole
// input is tried as text.
func inputPayloads(inputHex string) []domain.PayloadCandidate {
	input, ok := decodeHex(inputHex)
	if !ok || len(input) == 0 {
		return nil
	}
	args := input
	if len(input) >= selectorSize && (len(input)-selectorSize)%wordSize == 0 {
		args = input[selectorSize:]
	}

	var out []domain.PayloadCandidate
	for _, c := range ExtractPayloads(args) {
		if c.JSON == nil {
			continue
		}
		c.Source = domain.SourceTxInput
		out = append(out, c)
	}
	if len(out) > 0 {
		return out
	}
	if c, ok := ExtractWholeText(input); ok {
		c.Source = domain.SourceTxInput
		return []domain.PayloadCandidate{c}
	}
	return nil
}

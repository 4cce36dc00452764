package application

import (
	"errors"
	"strings"
)

// ChainClient is everything the engine needs from a JSON-RPC node.
type ChainClient interface {
	ChainReader
	LogReader
	BlockTimeReader
	BlockNumberReader
}

// EngineConfig carries every tunable of the scan engine. It is built once
// from the process configuration and passed down at construction.
type EngineConfig struct {
	Rules               PackRules
	TransferTopic       string
	TransferSingleTopic string
	Fetcher             FetcherConfig
	Scanner             ScannerConfig
	ExplorerPages       int
	ExplorerPageSize    int
	LookbackBlocks      uint64
}

type EngineDeps struct {
	Chain ChainClient
	// Explorer is optional; without it the polygonscan source is not offered
	// and auto always resolves to rpc.
	Explorer        TokenTransferLister
	BlockTimes      BlockTimeCache
	FetcherObserver FetcherObserver
	Hooks           ScannerHooks
}

// NewEngine wires the analyzer, the candidate sources and the scanner.
func NewEngine(cfg EngineConfig, deps EngineDeps) (*Scanner, error) {
	if deps.Chain == nil {
		return nil, errors.New("engine chain client must not be nil")
	}
	rules := cfg.Rules.withDefaults()

	decoders, err := engineDecoders(cfg.TransferTopic, cfg.TransferSingleTopic)
	if err != nil {
		return nil, err
	}
	analyzer, err := NewAnalyzer(deps.Chain, decoders, rules)
	if err != nil {
		return nil, err
	}

	fetcher, err := NewLogFetcher(deps.Chain, deps.Chain, deps.BlockTimes, deps.FetcherObserver, cfg.Fetcher)
	if err != nil {
		return nil, err
	}
	rpcSource, err := NewRPCSource(deps.Chain, fetcher, rules.USDCContract, cfg.TransferTopic, cfg.LookbackBlocks)
	if err != nil {
		return nil, err
	}
	sources := []CandidateSource{rpcSource}

	var explorerSource *ExplorerSource
	if deps.Explorer != nil {
		explorerSource, err = NewExplorerSource(deps.Explorer, rules.USDCContract, cfg.ExplorerPages, cfg.ExplorerPageSize)
		if err != nil {
			return nil, err
		}
		sources = append(sources, explorerSource)
	}
	autoSource, err := NewAutoSource(explorerSource, rpcSource)
	if err != nil {
		return nil, err
	}
	sources = append(sources, autoSource)

	return NewScanner(analyzer, sources, deps.Hooks, cfg.Scanner)
}

func engineDecoders(transferTopic, singleTopic string) ([]TransferDecoder, error) {
	transfer, single := TransferEventTopic, TransferSingleEventTopic
	if strings.TrimSpace(transferTopic) != "" {
		parsed, ok := parseTopic(transferTopic)
		if !ok {
			return nil, invalid("transfer topic", "expected 32-byte hex")
		}
		transfer = parsed
	}
	if strings.TrimSpace(singleTopic) != "" {
		parsed, ok := parseTopic(singleTopic)
		if !ok {
			return nil, invalid("transfer single topic", "expected 32-byte hex")
		}
		single = parsed
	}
	return DefaultTransferDecoders(transfer, single), nil
}

// Command scanwallet runs a single wallet scan or transaction analysis and
// prints the JSON result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"packscan/internal/application"
	"packscan/internal/config"
	"packscan/internal/infrastructure/ethrpc"
	"packscan/internal/infrastructure/explorer"
	"packscan/internal/infrastructure/logging"
)

type options struct {
	wallet, txHash  string
	limit           int
	source          string
	from, to        string
	apiKey          string
	pages, pageSize int
	contracts       string
}

func main() {
	var opts options
	flag.StringVar(&opts.wallet, "wallet", "", "wallet address to scan")
	flag.StringVar(&opts.txHash, "tx", "", "analyze a single transaction instead of scanning")
	flag.IntVar(&opts.limit, "limit", application.DefaultScanLimit, "maximum candidates to analyze")
	flag.StringVar(&opts.source, "source", "auto", "candidate source: auto, polygonscan or rpc")
	flag.StringVar(&opts.from, "from", "", "first block (inclusive)")
	flag.StringVar(&opts.to, "to", "", "last block (inclusive)")
	flag.StringVar(&opts.apiKey, "apikey", "", "explorer API key override")
	flag.IntVar(&opts.pages, "pages", 0, "explorer pages per contract (0 keeps EXPLORER_PAGES)")
	flag.IntVar(&opts.pageSize, "pagesize", 0, "explorer page size (0 keeps EXPLORER_PAGE_SIZE)")
	flag.StringVar(&opts.contracts, "contracts", "", "comma-separated token contracts scanned besides USDC")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "scanwallet:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	wallet, txHash := opts.wallet, opts.txHash
	if wallet == "" && txHash == "" {
		return fmt.Errorf("either -wallet or -tx is required")
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	writer, err := logging.Init(logging.Config{
		Service:    "scanwallet",
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Console:    os.Stderr,
	})
	if err != nil {
		return err
	}
	if writer != nil {
		defer writer.Close()
	}

	rpcClient, err := ethrpc.NewClient(ethrpc.Config{URL: cfg.RPCURL, CallTimeout: cfg.RPCTimeout})
	if err != nil {
		return err
	}
	explorerClient, err := explorer.NewClient(explorer.Config{
		BaseURL: cfg.ExplorerURL,
		ChainID: cfg.ExplorerChainID,
		APIKey:  cfg.ExplorerAPIKey,
		Timeout: cfg.RPCTimeout,
	})
	if err != nil {
		return err
	}
	scanner, err := application.NewEngine(cfg.EngineConfig(), application.EngineDeps{
		Chain:    rpcClient,
		Explorer: explorerClient,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var result any
	if txHash != "" {
		result, err = scanner.Analyze(ctx, txHash, wallet)
	} else {
		req := application.ScanRequest{
			Wallet:   wallet,
			Limit:    opts.limit,
			Source:   opts.source,
			APIKey:   opts.apiKey,
			Pages:    opts.pages,
			PageSize: opts.pageSize,
		}
		if req.FromBlock, err = application.ParseBlock("from", opts.from); err != nil {
			return err
		}
		if req.ToBlock, err = application.ParseBlock("to", opts.to); err != nil {
			return err
		}
		if req.Contracts, err = application.ParseContracts(opts.contracts); err != nil {
			return err
		}
		result, err = scanner.ScanWallet(ctx, req)
	}
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

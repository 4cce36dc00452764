package config

import "packscan/internal/application"

// EngineConfig projects the process configuration onto the scan engine.
func (c Config) EngineConfig() application.EngineConfig {
	return application.EngineConfig{
		Rules: application.PackRules{
			USDCContract:              c.USDCContract,
			USDCDecimals:              c.USDCDecimals,
			SharesPerPackMain:         c.SharesPerPackMain,
			SharesPerPackSecondary:    c.SharesPerPackSecondary,
			InfluenceMainPerPack:      c.InfluenceMainPerPack,
			InfluenceSecondaryPerPack: c.InfluenceSecondaryPerPack,
		},
		TransferTopic:       c.TransferTopic,
		TransferSingleTopic: c.TransferSingleTopic,
		Fetcher: application.FetcherConfig{
			ChunkSize:        c.LogFetchChunkSize,
			MinChunkSize:     c.LogFetchMinChunk,
			ShrinkThreshold:  c.LogFetchShrinkThreshold,
			TimestampWorkers: c.BlockFetchWorkers,
			MaxRetryWait:     c.LogFetchMaxRetryWait,
		},
		Scanner: application.ScannerConfig{
			Concurrency: c.ScanConcurrency,
			Timeout:     c.ScanTimeout,
		},
		ExplorerPages:    c.ExplorerPages,
		ExplorerPageSize: c.ExplorerPageSize,
		LookbackBlocks:   c.DefaultLookbackBlocks,
	}
}

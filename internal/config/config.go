package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type Config struct {
	RPCURL     string
	RPCTimeout time.Duration
	HTTPAddr   string

	ExplorerURL      string
	ExplorerAPIKey   string
	ExplorerChainID  uint64
	ExplorerPages    int
	ExplorerPageSize int

	USDCContract              string
	USDCDecimals              int32
	SharesPerPackMain         int64
	SharesPerPackSecondary    int64
	InfluenceMainPerPack      int64
	InfluenceSecondaryPerPack int64
	TransferTopic             string
	TransferSingleTopic       string

	ScanConcurrency         int
	ScanTimeout             time.Duration
	BlockFetchWorkers       int
	LogFetchChunkSize       uint64
	LogFetchMinChunk        uint64
	LogFetchShrinkThreshold int
	LogFetchMaxRetryWait    time.Duration
	DefaultLookbackBlocks   uint64

	RedisAddr     string
	BlockCacheTTL time.Duration
	KafkaBrokers  []string
	KafkaTopic    string
	JournalDSN    string
	OtelEndpoint  string

	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	cfg := Config{
		RPCURL:       stringEnv(source, "RPC_URL", "https://polygon-rpc.com"),
		HTTPAddr:     stringEnv(source, "HTTP_ADDR", ":8080"),
		ExplorerURL:  stringEnv(source, "EXPLORER_URL", "https://api.etherscan.io/v2/api"),
		USDCContract: strings.ToLower(stringEnv(source, "USDC_CONTRACT", "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359")),
		KafkaTopic:   stringEnv(source, "KAFKA_TOPIC", "packscan-purchases"),
		LogLevel:     stringEnv(source, "LOG_LEVEL", "info"),
		LogFormat:    stringEnv(source, "LOG_FORMAT", "text"),
		LogFile:      stringEnv(source, "LOG_FILE", ""),
		RedisAddr:    stringEnv(source, "REDIS_ADDR", ""),
		JournalDSN:   stringEnv(source, "JOURNAL_DSN", ""),
		OtelEndpoint: stringEnv(source, "OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	cfg.ExplorerAPIKey = stringEnv(source, "EXPLORER_API_KEY", stringEnv(source, "POLYGONSCAN_API_KEY", ""))
	cfg.TransferTopic = strings.ToLower(stringEnv(source, "TRANSFER_TOPIC", crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")).Hex()))
	cfg.TransferSingleTopic = strings.ToLower(stringEnv(source, "TRANSFER_SINGLE_TOPIC", crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)")).Hex()))

	if !common.IsHexAddress(cfg.USDCContract) {
		return Config{}, fmt.Errorf("invalid USDC_CONTRACT: %s", cfg.USDCContract)
	}
	for key, topic := range map[string]string{"TRANSFER_TOPIC": cfg.TransferTopic, "TRANSFER_SINGLE_TOPIC": cfg.TransferSingleTopic} {
		if len(topic) != 66 || !strings.HasPrefix(topic, "0x") {
			return Config{}, fmt.Errorf("invalid %s: %s", key, topic)
		}
	}

	var err error
	if cfg.RPCTimeout, err = parseDurationEnv(source, "RPC_TIMEOUT", 20*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ScanTimeout, err = parseDurationEnv(source, "SCAN_TIMEOUT", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.LogFetchMaxRetryWait, err = parseDurationEnv(source, "LOG_FETCH_MAX_RETRY_WAIT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.BlockCacheTTL, err = parseDurationEnv(source, "BLOCK_CACHE_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}

	if cfg.ExplorerChainID, err = parseUintEnv(source, "EXPLORER_CHAIN_ID", 137); err != nil {
		return Config{}, err
	}
	if cfg.LogFetchChunkSize, err = parseUintEnv(source, "LOG_FETCH_CHUNK_SIZE", 20_000); err != nil {
		return Config{}, err
	}
	if cfg.LogFetchMinChunk, err = parseUintEnv(source, "LOG_FETCH_MIN_CHUNK", 1_000); err != nil {
		return Config{}, err
	}
	if cfg.DefaultLookbackBlocks, err = parseUintEnv(source, "DEFAULT_LOOKBACK_BLOCKS", 1_000_000); err != nil {
		return Config{}, err
	}
	if cfg.LogFetchMinChunk == 0 || cfg.LogFetchChunkSize < cfg.LogFetchMinChunk {
		return Config{}, fmt.Errorf("LOG_FETCH_CHUNK_SIZE (%d) must be >= LOG_FETCH_MIN_CHUNK (%d) > 0", cfg.LogFetchChunkSize, cfg.LogFetchMinChunk)
	}

	ints := []struct {
		key    string
		def    uint64
		target *int
	}{
		{"EXPLORER_PAGES", 3, &cfg.ExplorerPages},
		{"EXPLORER_PAGE_SIZE", 100, &cfg.ExplorerPageSize},
		{"SCAN_CONCURRENCY", 4, &cfg.ScanConcurrency},
		{"BLOCK_FETCH_WORKERS", 8, &cfg.BlockFetchWorkers},
		{"LOG_FETCH_SHRINK_THRESHOLD", 5_000, &cfg.LogFetchShrinkThreshold},
		{"LOG_MAX_SIZE_MB", 100, &cfg.LogMaxSizeMB},
		{"LOG_MAX_BACKUPS", 5, &cfg.LogMaxBackups},
	}
	for _, item := range ints {
		value, err := parseUintEnv(source, item.key, item.def)
		if err != nil {
			return Config{}, err
		}
		*item.target = int(value)
	}
	if cfg.ScanConcurrency < 1 {
		return Config{}, errors.New("SCAN_CONCURRENCY must be at least 1")
	}

	positives := []struct {
		key    string
		def    uint64
		target *int64
	}{
		{"SHARES_PER_PACK_MAIN", 40, &cfg.SharesPerPackMain},
		{"SHARES_PER_PACK_SECONDARY", 10, &cfg.SharesPerPackSecondary},
		{"INFLUENCE_MAIN_PER_PACK", 40, &cfg.InfluenceMainPerPack},
		{"INFLUENCE_SECONDARY_PER_PACK", 10, &cfg.InfluenceSecondaryPerPack},
	}
	for _, item := range positives {
		value, err := parseUintEnv(source, item.key, item.def)
		if err != nil {
			return Config{}, err
		}
		if value == 0 {
			return Config{}, fmt.Errorf("%s must be positive", item.key)
		}
		*item.target = int64(value)
	}

	decimals, err := parseUintEnv(source, "USDC_DECIMALS", 6)
	if err != nil {
		return Config{}, err
	}
	if decimals == 0 || decimals > 36 {
		return Config{}, fmt.Errorf("invalid USDC_DECIMALS: %d", decimals)
	}
	cfg.USDCDecimals = int32(decimals)

	if raw, ok := source.Lookup("KAFKA_BROKERS"); ok && strings.TrimSpace(raw) != "" {
		if cfg.KafkaBrokers, err = parseList(source, "KAFKA_BROKERS", ""); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func stringEnv(source EnvSource, key, defaultValue string) string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	return strings.TrimSpace(raw)
}

func parseUintEnv(source EnvSource, key string, defaultValue uint64) (uint64, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseDurationEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return duration, nil
}

func parseList(source EnvSource, key string, defaultValue string) ([]string, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		raw = defaultValue
	}
	items := strings.Split(raw, ",")
	var values []string
	for _, item := range items {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s is required", key)
	}
	return values, nil
}

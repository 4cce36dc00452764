package application

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"packscan/internal/domain"
)

type LogReader interface {
	GetLogs(ctx context.Context, filter domain.LogFilter, fromBlock, toBlock uint64) ([]domain.LogEntry, error)
}

type BlockTimeReader interface {
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// BlockTimeCache stores resolved block timestamps. Implementations may be
// lossy; a miss only costs an extra RPC call.
type BlockTimeCache interface {
	GetBlockTimes(ctx context.Context, numbers []uint64) (map[uint64]uint64, error)
	PutBlockTimes(ctx context.Context, times map[uint64]uint64) error
}

type FetcherObserver interface {
	OnLogWindow(fromBlock, toBlock uint64, logCount int, err error)
	OnBlockTimes(cached, fetched int)
}

type FetcherConfig struct {
	ChunkSize        uint64
	MinChunkSize     uint64
	ShrinkThreshold  int
	TimestampWorkers int
	MaxRetryWait     time.Duration
}

const (
	defaultChunkSize        = 20_000
	defaultMinChunkSize     = 1_000
	defaultShrinkThreshold  = 5_000
	defaultTimestampWorkers = 8
	defaultMaxRetryWait     = 10 * time.Second
)

// Explicit provider codes for "too many results / range too large".
var rangeErrorCodes = map[int]struct{}{
	-32005: {},
	-32614: {},
}

// -32602 (invalid params) only counts when the message talks about size.
const invalidParamsCode = -32602

var rangeErrorKeywords = []string{
	"range", "too large", "too wide", "exceed", "more than", "timeout", "query", "result size",
}

type errorCoder interface {
	ErrorCode() int
}

type retryDelayer interface {
	RetryDelay() time.Duration
}

// LogFetcher pulls logs over a block range using windows that shrink when the
// provider refuses them.
type LogFetcher struct {
	reader   LogReader
	times    BlockTimeReader
	cache    BlockTimeCache
	observer FetcherObserver
	cfg      FetcherConfig
}

func NewLogFetcher(reader LogReader, times BlockTimeReader, cache BlockTimeCache, observer FetcherObserver, cfg FetcherConfig) (*LogFetcher, error) {
	if reader == nil || times == nil {
		return nil, errors.New("log fetcher dependencies must not be nil")
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.MinChunkSize == 0 {
		cfg.MinChunkSize = defaultMinChunkSize
	}
	if cfg.MinChunkSize > cfg.ChunkSize {
		cfg.MinChunkSize = cfg.ChunkSize
	}
	if cfg.ShrinkThreshold <= 0 {
		cfg.ShrinkThreshold = defaultShrinkThreshold
	}
	if cfg.TimestampWorkers <= 0 {
		cfg.TimestampWorkers = defaultTimestampWorkers
	}
	if cfg.MaxRetryWait <= 0 {
		cfg.MaxRetryWait = defaultMaxRetryWait
	}
	return &LogFetcher{reader: reader, times: times, cache: cache, observer: observer, cfg: cfg}, nil
}

// FetchLogs returns every log matching filter in [fromBlock, toBlock]. Windows
// are requested strictly in order. A failing window is retried with half the
// width until the minimum width also fails.
func (f *LogFetcher) FetchLogs(ctx context.Context, filter domain.LogFilter, fromBlock, toBlock uint64) ([]domain.LogEntry, error) {
	if fromBlock > toBlock {
		return nil, nil
	}

	var all []domain.LogEntry
	step := f.cfg.ChunkSize
	cursor := fromBlock
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		curStep := step
		var end uint64
		for {
			end = windowEnd(cursor, curStep, toBlock)
			logs, err := f.reader.GetLogs(ctx, filter, cursor, end)
			if f.observer != nil {
				f.observer.OnLogWindow(cursor, end, len(logs), err)
			}
			if err == nil {
				all = append(all, logs...)
				if len(logs) > f.cfg.ShrinkThreshold && step > f.cfg.MinChunkSize {
					step = max(step/2, f.cfg.MinChunkSize)
					slog.Debug("log window dense, shrinking step", "from", cursor, "to", end, "logs", len(logs), "step", step)
				}
				break
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			// A tail window narrower than curStep must shrink too.
			curStep = min(curStep, end-cursor+1)
			f.logRejection(err, cursor, end, curStep)
			if curStep <= f.cfg.MinChunkSize {
				return nil, &RangeUnserviceableError{From: cursor, To: end, Err: err}
			}
			if err := f.backoff(ctx, err); err != nil {
				return nil, err
			}
			curStep = max(curStep/2, f.cfg.MinChunkSize)
		}

		if end >= toBlock {
			return all, nil
		}
		cursor = end + 1
	}
}

// FetchTransactions fetches logs, resolves block timestamps and returns one
// candidate per transaction, newest first.
func (f *LogFetcher) FetchTransactions(ctx context.Context, filter domain.LogFilter, fromBlock, toBlock uint64) ([]domain.TxCandidate, error) {
	logs, err := f.FetchLogs(ctx, filter, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, nil
	}
	times, err := f.blockTimes(ctx, logs)
	if err != nil {
		return nil, err
	}
	return GroupByTransaction(logs, times), nil
}

// GroupByTransaction keeps one candidate per hash with the latest timestamp
// seen, sorted by timestamp descending and hash ascending.
func GroupByTransaction(logs []domain.LogEntry, times map[uint64]uint64) []domain.TxCandidate {
	byHash := make(map[string]domain.TxCandidate, len(logs))
	for _, log := range logs {
		if log.Removed || log.TxHash == "" {
			continue
		}
		hash := strings.ToLower(log.TxHash)
		ts := times[log.BlockNumber]
		existing, ok := byHash[hash]
		if !ok || ts > existing.Timestamp {
			byHash[hash] = domain.TxCandidate{TxHash: hash, BlockNumber: log.BlockNumber, Timestamp: ts}
		}
	}
	out := make([]domain.TxCandidate, 0, len(byHash))
	for _, c := range byHash {
		out = append(out, c)
	}
	SortCandidates(out)
	return out
}

func SortCandidates(candidates []domain.TxCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Timestamp != candidates[j].Timestamp {
			return candidates[i].Timestamp > candidates[j].Timestamp
		}
		return candidates[i].TxHash < candidates[j].TxHash
	})
}

func (f *LogFetcher) blockTimes(ctx context.Context, logs []domain.LogEntry) (map[uint64]uint64, error) {
	seen := make(map[uint64]struct{})
	var blocks []uint64
	for _, log := range logs {
		if _, ok := seen[log.BlockNumber]; ok {
			continue
		}
		seen[log.BlockNumber] = struct{}{}
		blocks = append(blocks, log.BlockNumber)
	}

	times := make(map[uint64]uint64, len(blocks))
	missing := blocks
	if f.cache != nil {
		cached, err := f.cache.GetBlockTimes(ctx, blocks)
		if err != nil {
			slog.Warn("block time cache read failed", "error", err)
		}
		missing = missing[:0:0]
		for _, b := range blocks {
			if ts, ok := cached[b]; ok {
				times[b] = ts
				continue
			}
			missing = append(missing, b)
		}
	}

	resolved, err := MapConcurrent(ctx, missing, f.cfg.TimestampWorkers, func(ctx context.Context, number uint64) (uint64, error) {
		return f.times.BlockTimestamp(ctx, number)
	})
	if err != nil {
		return nil, err
	}
	fresh := make(map[uint64]uint64, len(missing))
	for i, b := range missing {
		times[b] = resolved[i]
		fresh[b] = resolved[i]
	}
	if f.observer != nil {
		f.observer.OnBlockTimes(len(blocks)-len(missing), len(missing))
	}
	if f.cache != nil && len(fresh) > 0 {
		if err := f.cache.PutBlockTimes(ctx, fresh); err != nil {
			slog.Warn("block time cache write failed", "error", err)
		}
	}
	return times, nil
}

type rejectionKind string

const (
	rejectedByCode    rejectionKind = "code"
	rejectedByMessage rejectionKind = "message"
	rejectedUnknown   rejectionKind = "unclassified"
)

// classifyRejection checks explicit provider codes before falling back to
// the message text.
func classifyRejection(err error) (rejectionKind, string) {
	msg := strings.ToLower(err.Error())
	var coder errorCoder
	if errors.As(err, &coder) {
		code := coder.ErrorCode()
		if _, ok := rangeErrorCodes[code]; ok {
			return rejectedByCode, strconv.Itoa(code)
		}
		if code == invalidParamsCode && matchesRangeKeyword(msg) != "" {
			return rejectedByCode, strconv.Itoa(code)
		}
	}
	if keyword := matchesRangeKeyword(msg); keyword != "" {
		return rejectedByMessage, keyword
	}
	return rejectedUnknown, ""
}

func (f *LogFetcher) logRejection(err error, from, to, width uint64) {
	switch kind, detail := classifyRejection(err); kind {
	case rejectedByCode:
		slog.Debug("log window rejected by provider", "from", from, "to", to, "width", width, "code", detail)
	case rejectedByMessage:
		slog.Warn("log window rejected, matched by message", "from", from, "to", to, "width", width, "keyword", detail, "error", err)
	default:
		slog.Warn("log window failed, shrinking anyway", "from", from, "to", to, "width", width, "error", err)
	}
}

func matchesRangeKeyword(msg string) string {
	for _, keyword := range rangeErrorKeywords {
		if strings.Contains(msg, keyword) {
			return keyword
		}
	}
	return ""
}

func (f *LogFetcher) backoff(ctx context.Context, err error) error {
	var delayer retryDelayer
	if !errors.As(err, &delayer) {
		return nil
	}
	wait := min(delayer.RetryDelay(), f.cfg.MaxRetryWait)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func windowEnd(cursor, width, limit uint64) uint64 {
	if width == 0 || limit-cursor < width-1 {
		return limit
	}
	return cursor + width - 1
}

package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"packscan/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultCallTimeout = 20 * time.Second

type Client struct {
	url         string
	httpClient  *http.Client
	idCounter   uint64
	callTimeout time.Duration
	tracer      trace.Tracer
}

type Config struct {
	URL         string
	CallTimeout time.Duration
	HTTPClient  *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rpc url is required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		url:         cfg.URL,
		httpClient:  httpClient,
		callTimeout: cfg.CallTimeout,
		tracer:      otel.Tracer("packscan/ethrpc"),
	}, nil
}

// TransportError is returned when an HTTP endpoint answers with a non-2xx
// status. Service names the endpoint kind and defaults to "rpc".
type TransportError struct {
	Service    string
	Status     int
	RetryAfter time.Duration
}

func (e *TransportError) Error() string {
	service := e.Service
	if service == "" {
		service = "rpc"
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s status %d (retry after %s)", service, e.Status, e.RetryAfter)
	}
	return fmt.Sprintf("%s status %d", service, e.Status)
}

// RetryDelay reports how long the server asked callers to back off.
func (e *TransportError) RetryDelay() time.Duration {
	return e.RetryAfter
}

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (e *RPCError) ErrorCode() int {
	return e.Code
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := c.Call(ctx, "eth_blockNumber", []any{}, &result); err != nil {
		return 0, err
	}
	return parseHexUint(result)
}

func (c *Client) GetLogs(ctx context.Context, filter domain.LogFilter, fromBlock, toBlock uint64) ([]domain.LogEntry, error) {
	params := map[string]any{
		"fromBlock": formatHexUint(fromBlock),
		"toBlock":   formatHexUint(toBlock),
	}
	switch len(filter.Addresses) {
	case 0:
	case 1:
		params["address"] = strings.ToLower(filter.Addresses[0])
	default:
		addresses := make([]string, len(filter.Addresses))
		for i, address := range filter.Addresses {
			addresses[i] = strings.ToLower(address)
		}
		params["address"] = addresses
	}
	if len(filter.Topics) > 0 {
		params["topics"] = encodeTopics(filter.Topics)
	}

	var result []rpcLog
	if err := c.Call(ctx, "eth_getLogs", []any{params}, &result); err != nil {
		return nil, err
	}
	return convertLogs(result)
}

// TransactionReceipt returns found=false when the node does not know the
// transaction or it is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (domain.Receipt, bool, error) {
	var result *rpcReceipt
	if err := c.Call(ctx, "eth_getTransactionReceipt", []any{txHash}, &result); err != nil {
		return domain.Receipt{}, false, err
	}
	if result == nil {
		return domain.Receipt{}, false, nil
	}
	blockNumber, err := parseHexUint(result.BlockNumber)
	if err != nil {
		return domain.Receipt{}, false, fmt.Errorf("receipt block number: %w", err)
	}
	var status uint64
	if result.Status != "" {
		if status, err = parseHexUint(result.Status); err != nil {
			return domain.Receipt{}, false, fmt.Errorf("receipt status: %w", err)
		}
	}
	logs, err := convertLogs(result.Logs)
	if err != nil {
		return domain.Receipt{}, false, err
	}
	return domain.Receipt{
		TxHash:      strings.ToLower(result.TxHash),
		BlockNumber: blockNumber,
		Status:      status,
		From:        strings.ToLower(result.From),
		To:          strings.ToLower(result.To),
		Logs:        logs,
	}, true, nil
}

func (c *Client) TransactionByHash(ctx context.Context, txHash string) (domain.Transaction, bool, error) {
	var result *rpcTransaction
	if err := c.Call(ctx, "eth_getTransactionByHash", []any{txHash}, &result); err != nil {
		return domain.Transaction{}, false, err
	}
	if result == nil {
		return domain.Transaction{}, false, nil
	}
	var blockNumber uint64
	if result.BlockNumber != "" {
		parsed, err := parseHexUint(result.BlockNumber)
		if err != nil {
			return domain.Transaction{}, false, fmt.Errorf("transaction block number: %w", err)
		}
		blockNumber = parsed
	}
	return domain.Transaction{
		TxHash:      strings.ToLower(result.Hash),
		BlockNumber: blockNumber,
		From:        strings.ToLower(result.From),
		To:          strings.ToLower(result.To),
		Value:       result.Value,
		Input:       result.Input,
	}, true, nil
}

// BlockTimestamp returns the unix timestamp of a block header.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	var result *rpcBlockHeader
	if err := c.Call(ctx, "eth_getBlockByNumber", []any{formatHexUint(number), false}, &result); err != nil {
		return 0, err
	}
	if result == nil {
		return 0, fmt.Errorf("block %d not found", number)
	}
	return parseHexUint(result.Timestamp)
}

type rpcLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

type rpcReceipt struct {
	TxHash      string   `json:"transactionHash"`
	BlockNumber string   `json:"blockNumber"`
	Status      string   `json:"status"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	Logs        []rpcLog `json:"logs"`
}

type rpcTransaction struct {
	Hash        string `json:"hash"`
	BlockNumber string `json:"blockNumber"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	Input       string `json:"input"`
}

type rpcBlockHeader struct {
	Number    string `json:"number"`
	Timestamp string `json:"timestamp"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Call performs a single JSON-RPC request. A JSON null result leaves result
// untouched, so callers pass a pointer-to-pointer when null is meaningful.
func (c *Client) Call(ctx context.Context, method string, params []any, result any) error {
	ctx, span := c.tracer.Start(ctx, "rpc."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.system", "jsonrpc"), attribute.String("rpc.method", method)),
	)
	defer span.End()

	err := c.call(ctx, method, params, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	id := atomic.AddUint64(&c.idCounter, 1)
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &TransportError{
			Status:     resp.StatusCode,
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return &RPCError{Code: decoded.Error.Code, Message: decoded.Error.Message}
	}
	if result == nil {
		return nil
	}
	if len(decoded.Result) == 0 {
		return errors.New("rpc result is empty")
	}
	return json.Unmarshal(decoded.Result, result)
}

func convertLogs(raw []rpcLog) ([]domain.LogEntry, error) {
	logs := make([]domain.LogEntry, 0, len(raw))
	for _, log := range raw {
		var blockNumber uint64
		if log.BlockNumber != "" {
			parsed, err := parseHexUint(log.BlockNumber)
			if err != nil {
				return nil, err
			}
			blockNumber = parsed
		}
		var logIndex uint64
		if log.LogIndex != "" {
			parsed, err := parseHexUint(log.LogIndex)
			if err != nil {
				return nil, err
			}
			logIndex = parsed
		}
		logs = append(logs, domain.LogEntry{
			BlockNumber: blockNumber,
			TxHash:      strings.ToLower(log.TxHash),
			LogIndex:    logIndex,
			Address:     strings.ToLower(log.Address),
			Data:        log.Data,
			Topics:      log.Topics,
			Removed:     log.Removed,
		})
	}
	return logs, nil
}

func encodeTopics(topics [][]string) []any {
	out := make([]any, len(topics))
	for i, slot := range topics {
		switch len(slot) {
		case 0:
			out[i] = nil
		case 1:
			out[i] = strings.ToLower(slot[0])
		default:
			values := make([]string, len(slot))
			for j, v := range slot {
				values[j] = strings.ToLower(v)
			}
			out[i] = values
		}
	}
	return out
}

// ParseRetryAfter accepts both delta-seconds and HTTP-date forms.
func ParseRetryAfter(raw string, now time.Time) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func parseHexUint(value string) (uint64, error) {
	trimmed := strings.TrimPrefix(value, "0x")
	if trimmed == "" {
		return 0, errors.New("empty hex value")
	}
	return strconv.ParseUint(trimmed, 16, 64)
}

func formatHexUint(value uint64) string {
	return fmt.Sprintf("0x%x", value)
}

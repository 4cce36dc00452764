package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"packscan/internal/application"
	"packscan/internal/infrastructure/ethrpc"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL = "https://api.etherscan.io/v2/api"
	DefaultChainID = 137

	maxResponseBytes = 10 << 20
)

type Config struct {
	BaseURL    string
	ChainID    uint64
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to an Etherscan-compatible account API.
type Client struct {
	baseURL    string
	chainID    uint64
	apiKey     string
	httpClient *http.Client
	tracer     trace.Tracer
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid explorer url: %w", err)
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = DefaultChainID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		chainID:    cfg.ChainID,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: httpClient,
		tracer:     otel.Tracer("packscan/explorer"),
	}, nil
}

func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

type tokenTxResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type tokenTxRow struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
	Value           string `json:"value"`
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
}

// TokenTransfers fetches one page of token transfers. A status other than "1"
// is returned as an empty page carrying the explorer's status and message.
func (c *Client) TokenTransfers(ctx context.Context, q application.TokenTransferQuery) (application.TokenTransferPage, error) {
	ctx, span := c.tracer.Start(ctx, "explorer.tokentx",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("explorer.page", q.Page), attribute.Int64("explorer.chain_id", int64(c.chainID))),
	)
	defer span.End()

	page, err := c.tokenTransfers(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return application.TokenTransferPage{}, err
	}
	span.SetAttributes(attribute.Int("explorer.rows", len(page.Transfers)))
	return page, nil
}

func (c *Client) tokenTransfers(ctx context.Context, q application.TokenTransferQuery) (application.TokenTransferPage, error) {
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return application.TokenTransferPage{}, err
	}
	params := endpoint.Query()
	params.Set("chainid", strconv.FormatUint(c.chainID, 10))
	params.Set("module", "account")
	params.Set("action", "tokentx")
	params.Set("address", q.Address)
	if q.Contract != "" {
		params.Set("contractaddress", q.Contract)
	}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("offset", strconv.Itoa(q.PageSize))
	params.Set("startblock", strconv.FormatUint(q.StartBlock, 10))
	if q.EndBlock != nil {
		params.Set("endblock", strconv.FormatUint(*q.EndBlock, 10))
	}
	params.Set("sort", "desc")
	apiKey := q.APIKey
	if apiKey == "" {
		apiKey = c.apiKey
	}
	if apiKey != "" {
		params.Set("apikey", apiKey)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return application.TokenTransferPage{}, err
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return application.TokenTransferPage{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return application.TokenTransferPage{}, &ethrpc.TransportError{
			Service:    "explorer",
			Status:     resp.StatusCode,
			RetryAfter: ethrpc.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return application.TokenTransferPage{}, err
	}

	var decoded tokenTxResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return application.TokenTransferPage{}, fmt.Errorf("decode explorer response: %w", err)
	}
	page := application.TokenTransferPage{Status: decoded.Status, Message: decoded.Message}
	if decoded.Status != "1" {
		return page, nil
	}

	var rows []tokenTxRow
	if err := json.Unmarshal(decoded.Result, &rows); err != nil {
		return application.TokenTransferPage{}, errors.New("explorer result is not a transfer list")
	}
	page.Transfers = make([]application.TokenTransfer, 0, len(rows))
	for _, row := range rows {
		block, _ := strconv.ParseUint(row.BlockNumber, 10, 64)
		ts, _ := strconv.ParseUint(row.TimeStamp, 10, 64)
		page.Transfers = append(page.Transfers, application.TokenTransfer{
			Hash:        strings.ToLower(row.Hash),
			From:        strings.ToLower(row.From),
			To:          strings.ToLower(row.To),
			Contract:    strings.ToLower(row.ContractAddress),
			Value:       row.Value,
			BlockNumber: block,
			Timestamp:   ts,
		})
	}
	return page, nil
}

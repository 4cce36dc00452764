package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"packscan/internal/application"
	"packscan/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	testWallet = "0x1111111111111111111111111111111111111111"
	testTxHash = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

type fakeScanner struct {
	scanCalls    int
	analyzeCalls int
	lastRequest  application.ScanRequest
	lastBuyer    string
	result       domain.ScanResult
	analysis     domain.TxAnalysis
	err          error
}

func (f *fakeScanner) ScanWallet(_ context.Context, req application.ScanRequest) (domain.ScanResult, error) {
	f.scanCalls++
	f.lastRequest = req
	return f.result, f.err
}

func (f *fakeScanner) Analyze(_ context.Context, _ string, buyer string) (domain.TxAnalysis, error) {
	f.analyzeCalls++
	f.lastBuyer = buyer
	return f.analysis, f.err
}

type fakeRPC struct {
	err error
}

func (f fakeRPC) BlockNumber(context.Context) (uint64, error) {
	return 42, f.err
}

type fakeHistory struct {
	records []domain.ScanRecord
	limit   int
}

func (f *fakeHistory) RecentScans(_ context.Context, limit int) ([]domain.ScanRecord, error) {
	f.limit = limit
	return f.records, nil
}

func (f *fakeHistory) Ping(context.Context) error { return nil }

func newTestServer(t *testing.T, scanner *fakeScanner, history ScanHistory) *httptest.Server {
	t.Helper()
	server, err := NewServer(scanner, fakeRPC{}, history, NewMetrics(), BuildInfo{Version: "test"})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return resp.StatusCode, body
}

func TestNewServerRequiresDependencies(t *testing.T) {
	if _, err := NewServer(nil, fakeRPC{}, nil, nil, BuildInfo{}); err == nil {
		t.Fatalf("expected error for nil scanner")
	}
}

func TestPacksByWalletRejectsBadInputWithoutScanning(t *testing.T) {
	scanner := &fakeScanner{}
	ts := newTestServer(t, scanner, nil)

	for _, query := range []string{
		"wallet=not-an-address",
		"",
		"wallet=" + testWallet + "&limit=abc",
		"wallet=" + testWallet + "&source=etherscan",
		"wallet=" + testWallet + "&startblock=x",
		"wallet=" + testWallet + "&startblock=10&endblock=5",
		"wallet=" + testWallet + "&pages=lots",
		"wallet=" + testWallet + "&pageSize=1.5",
		"wallet=" + testWallet + "&contracts=usdc.e",
	} {
		status, body := getJSON(t, ts.URL+"/packs/by-wallet?"+query)
		if status != http.StatusBadRequest {
			t.Errorf("query %q: expected 400, got %d", query, status)
		}
		if body["ok"] != false || body["error"] == "" {
			t.Errorf("query %q: unexpected body %v", query, body)
		}
	}
	if scanner.scanCalls != 0 {
		t.Fatalf("expected no scanner calls, got %d", scanner.scanCalls)
	}
}

func TestPacksByWalletReturnsScan(t *testing.T) {
	price := domain.NewUSDC(decimal.RequireFromString("99.5"))
	unit := domain.NewUSDC(decimal.RequireFromString("49.75"))
	scanner := &fakeScanner{result: domain.ScanResult{
		Wallet: testWallet,
		Scans:  domain.ScanStats{Source: domain.SourceRPC, Candidates: 1, Analyzed: 1, PacksDetected: 1},
		Totals: domain.ScanTotals{Packs: 2, SpentUSDC: price, UnitPriceAvgUSDC: &unit, Influence: 80},
		Items:  []domain.PackPurchase{{TxHash: testTxHash, Packs: 2, PriceUSDC: &price, UnitPriceUSDC: &unit}},
	}}
	ts := newTestServer(t, scanner, nil)

	upper := strings.ToUpper(testWallet[2:])
	status, body := getJSON(t, ts.URL+"/packs/by-wallet?wallet=0x"+upper+"&limit=900&source=RPC&startblock=5&apikey=k")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if body["ok"] != true || body["wallet"] != testWallet {
		t.Fatalf("unexpected body %v", body)
	}
	totals := body["totals"].(map[string]any)
	if totals["spentUSDC"] != 99.5 || totals["unitPriceAvgUSDC"] != 49.75 {
		t.Fatalf("expected numeric totals, got %v", totals)
	}
	item := body["items"].([]any)[0].(map[string]any)
	if item["priceUSDC"] != 99.5 || item["unitPriceUSDC"] != 49.75 || item["feesUSDC"] != 0.0 {
		t.Fatalf("expected numeric item amounts, got %v", item)
	}
	req := scanner.lastRequest
	if req.Wallet != testWallet || req.Limit != application.MaxScanLimit || req.Source != domain.SourceRPC || req.APIKey != "k" {
		t.Fatalf("unexpected scan request %+v", req)
	}
	if req.FromBlock == nil || *req.FromBlock != 5 || req.ToBlock != nil {
		t.Fatalf("unexpected range %+v", req)
	}
}

func TestPacksByWalletForwardsExplorerOptions(t *testing.T) {
	scanner := &fakeScanner{}
	ts := newTestServer(t, scanner, nil)
	bridged := "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	status, body := getJSON(t, ts.URL+"/packs/by-wallet?wallet="+testWallet+"&pages=40&pageSize=0&contracts="+bridged+",,"+bridged)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	req := scanner.lastRequest
	if req.Pages != application.MaxExplorerPages || req.PageSize != 1 {
		t.Fatalf("expected clamped paging, got %d/%d", req.Pages, req.PageSize)
	}
	if len(req.Contracts) != 1 || req.Contracts[0] != strings.ToLower(bridged) {
		t.Fatalf("unexpected contracts %v", req.Contracts)
	}

	getJSON(t, ts.URL+"/packs/by-wallet?wallet="+testWallet)
	if scanner.lastRequest.Pages != 0 || scanner.lastRequest.Contracts != nil {
		t.Fatalf("expected configured defaults without paging params, got %+v", scanner.lastRequest)
	}
}

func TestPacksByWalletMapsFailures(t *testing.T) {
	scanner := &fakeScanner{err: errors.New("explorer unavailable")}
	ts := newTestServer(t, scanner, nil)
	status, body := getJSON(t, ts.URL+"/packs/by-wallet?wallet="+testWallet)
	if status != http.StatusInternalServerError || body["error"] != "explorer unavailable" {
		t.Fatalf("unexpected response %d %v", status, body)
	}
}

func TestTxEndpointStatuses(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		err    error
		status int
		calls  int
	}{
		{"malformed hash", "/tx/0x1234", nil, http.StatusBadRequest, 0},
		{"bad wallet", "/tx/" + testTxHash + "?wallet=0x12", nil, http.StatusBadRequest, 0},
		{"missing receipt", "/tx/" + testTxHash, application.ErrReceiptNotFound, http.StatusNotFound, 1},
		{"rpc failure", "/tx/" + testTxHash, errors.New("rpc status 502"), http.StatusInternalServerError, 1},
		{"ok", "/tx/" + testTxHash + "?wallet=" + testWallet, nil, http.StatusOK, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scanner := &fakeScanner{err: tc.err, analysis: domain.TxAnalysis{TxHash: testTxHash, Status: domain.TxStatusSuccess}}
			ts := newTestServer(t, scanner, nil)
			status, body := getJSON(t, ts.URL+tc.path)
			if status != tc.status {
				t.Fatalf("expected %d, got %d: %v", tc.status, status, body)
			}
			if scanner.analyzeCalls != tc.calls {
				t.Fatalf("expected %d analyze calls, got %d", tc.calls, scanner.analyzeCalls)
			}
			if tc.status == http.StatusOK {
				if body["ok"] != true || body["txHash"] != testTxHash || scanner.lastBuyer != testWallet {
					t.Fatalf("unexpected body %v buyer %s", body, scanner.lastBuyer)
				}
			}
		})
	}
}

func TestScansEndpoint(t *testing.T) {
	history := &fakeHistory{records: []domain.ScanRecord{{ID: 1, Wallet: testWallet, StartedAt: time.Unix(0, 0)}}}
	ts := newTestServer(t, &fakeScanner{}, history)

	status, body := getJSON(t, ts.URL+"/scans?limit=1000")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if history.limit != maxHistoryLimit {
		t.Fatalf("expected clamped limit, got %d", history.limit)
	}
	if scans := body["scans"].([]any); len(scans) != 1 {
		t.Fatalf("unexpected scans %v", scans)
	}

	status, _ = getJSON(t, ts.URL+"/scans?limit=-1")
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestScansWithoutJournal(t *testing.T) {
	ts := newTestServer(t, &fakeScanner{}, nil)
	status, body := getJSON(t, ts.URL+"/scans")
	if status != http.StatusOK || len(body["scans"].([]any)) != 0 {
		t.Fatalf("unexpected response %d %v", status, body)
	}
}

func TestReadyAndMetrics(t *testing.T) {
	server, err := NewServer(&fakeScanner{}, fakeRPC{err: errors.New("down")}, nil, nil, BuildInfo{})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	status, _ := getJSON(t, ts.URL+"/readyz")
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}

	_, _ = http.Get(ts.URL + "/tx/0x12")
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `packscan_http_requests_total{code="400",route="tx"} 1`) {
		t.Fatalf("expected request counter in metrics output:\n%s", raw)
	}
}

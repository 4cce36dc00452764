package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"packscan/internal/application"
	"packscan/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type PackScanner interface {
	ScanWallet(ctx context.Context, req application.ScanRequest) (domain.ScanResult, error)
	Analyze(ctx context.Context, txHash, buyer string) (domain.TxAnalysis, error)
}

type RPCStatus interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// ScanHistory serves the scan journal. It is optional.
type ScanHistory interface {
	RecentScans(ctx context.Context, limit int) ([]domain.ScanRecord, error)
	Ping(ctx context.Context) error
}

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

type Server struct {
	scanner   PackScanner
	rpc       RPCStatus
	history   ScanHistory
	metrics   *Metrics
	buildInfo BuildInfo
	tracer    trace.Tracer
}

func NewServer(scanner PackScanner, rpc RPCStatus, history ScanHistory, metrics *Metrics, buildInfo BuildInfo) (*Server, error) {
	if scanner == nil || rpc == nil {
		return nil, errors.New("http server dependencies must not be nil")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{
		scanner:   scanner,
		rpc:       rpc,
		history:   history,
		metrics:   metrics,
		buildInfo: buildInfo,
		tracer:    otel.Tracer("packscan/httpapi"),
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /packs/by-wallet", s.metrics.instrument("packs_by_wallet", s.handlePacksByWallet))
	mux.HandleFunc("GET /tx/{hash}", s.metrics.instrument("tx", s.handleTx))
	mux.HandleFunc("GET /scans", s.metrics.instrument("scans", s.handleScans))
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("http server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	latest, err := s.rpc.BlockNumber(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "rpc not ready")
		return
	}
	if s.history != nil {
		if err := s.history.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "journal not ready")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "ready", "latestBlock": latest})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

type walletResponse struct {
	OK bool `json:"ok"`
	domain.ScanResult
}

func (s *Server) handlePacksByWallet(w http.ResponseWriter, r *http.Request) {
	req, err := parseScanRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "http.packs_by_wallet",
		trace.WithAttributes(attribute.String("wallet", req.Wallet), attribute.String("source", req.Source)))
	defer span.End()

	result, err := s.scanner.ScanWallet(ctx, req)
	if err != nil {
		s.respondFailure(w, "wallet scan failed", err, "wallet", req.Wallet)
		return
	}
	respondJSON(w, http.StatusOK, walletResponse{OK: true, ScanResult: result})
}

type txResponse struct {
	OK bool `json:"ok"`
	domain.TxAnalysis
}

func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	hash, err := application.NormalizeTxHash(r.PathValue("hash"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	buyer := strings.TrimSpace(r.URL.Query().Get("wallet"))
	if buyer != "" {
		if buyer, err = application.NormalizeWallet(buyer); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx, span := s.tracer.Start(r.Context(), "http.tx", trace.WithAttributes(attribute.String("tx.hash", hash)))
	defer span.End()

	analysis, err := s.scanner.Analyze(ctx, hash, buyer)
	if err != nil {
		s.respondFailure(w, "transaction analysis failed", err, "tx", hash)
		return
	}
	respondJSON(w, http.StatusOK, txResponse{OK: true, TxAnalysis: analysis})
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(value, maxHistoryLimit)
	}
	records := []domain.ScanRecord{}
	if s.history != nil {
		found, err := s.history.RecentScans(r.Context(), limit)
		if err != nil {
			s.respondFailure(w, "scan history failed", err)
			return
		}
		records = found
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "scans": records})
}

func parseScanRequest(r *http.Request) (application.ScanRequest, error) {
	query := r.URL.Query()
	wallet, err := application.NormalizeWallet(query.Get("wallet"))
	if err != nil {
		return application.ScanRequest{}, err
	}
	limit, err := application.ParseLimit(query.Get("limit"))
	if err != nil {
		return application.ScanRequest{}, err
	}
	source, err := application.ParseSource(query.Get("source"))
	if err != nil {
		return application.ScanRequest{}, err
	}
	from, err := application.ParseBlock("startblock", query.Get("startblock"))
	if err != nil {
		return application.ScanRequest{}, err
	}
	to, err := application.ParseBlock("endblock", query.Get("endblock"))
	if err != nil {
		return application.ScanRequest{}, err
	}
	if from != nil && to != nil && *from > *to {
		return application.ScanRequest{}, &application.ValidationError{Field: "range", Reason: "startblock is after endblock"}
	}
	pages, err := application.ParsePages(query.Get("pages"))
	if err != nil {
		return application.ScanRequest{}, err
	}
	pageSize, err := application.ParsePageSize(query.Get("pageSize"))
	if err != nil {
		return application.ScanRequest{}, err
	}
	contracts, err := application.ParseContracts(query.Get("contracts"))
	if err != nil {
		return application.ScanRequest{}, err
	}
	return application.ScanRequest{
		Wallet:    wallet,
		Limit:     limit,
		Source:    source,
		FromBlock: from,
		ToBlock:   to,
		APIKey:    strings.TrimSpace(query.Get("apikey")),
		Pages:     pages,
		PageSize:  pageSize,
		Contracts: contracts,
	}, nil
}

// respondFailure maps application errors onto status codes. Only the error
// message is exposed.
func (s *Server) respondFailure(w http.ResponseWriter, msg string, err error, attrs ...any) {
	var validationErr *application.ValidationError
	switch {
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, application.ErrReceiptNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		slog.Error(msg, append(attrs, "error", err)...)
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"ok": false, "error": message})
}

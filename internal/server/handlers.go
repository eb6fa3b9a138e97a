package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/etl"
	"github.com/raaihank/pii-sentinel/internal/privacy"
	"github.com/raaihank/pii-sentinel/internal/websocket"
)

// ScanResponse is the verdict for one record
type ScanResponse struct {
	RecordID        string         `json:"record_id,omitempty"`
	RedactedData    privacy.Record `json:"redacted_data"`
	IsPII           bool           `json:"is_pii"`
	ConfidenceScore float64        `json:"confidence_score"`
	Reason          string         `json:"reason"`
	Reasons         []string       `json:"reasons"`
}

// BatchRequest carries several records; each item has the shape of a
// JSON-lines input row.
type BatchRequest struct {
	Records []BatchItem `json:"records"`
}

type BatchItem struct {
	RecordID string          `json:"record_id"`
	Data     json.RawMessage `json:"data"`
}

type BatchResponse struct {
	RequestID   string         `json:"request_id"`
	Results     []ScanResponse `json:"results"`
	Flagged     int            `json:"flagged"`
	ParseErrors int            `json:"parse_errors"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

// handleScan scans a single record sent as the request body
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	record, err := privacy.DecodeRecord(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp := s.scan(r, r.URL.Query().Get("record_id"), record)
	writeJSON(w, http.StatusOK, resp)
}

// handleScanBatch scans up to server.max_batch_size records. Items that do
// not hold a JSON object are answered with the parse error verdict rather
// than failing the whole batch.
func (s *Server) handleScanBatch(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var req BatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid batch request: %v", err))
		return
	}
	if limit := s.config.Server.MaxBatchSize; limit > 0 && len(req.Records) > limit {
		writeError(w, r, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch holds %d records, limit is %d", len(req.Records), limit))
		return
	}

	resp := BatchResponse{
		RequestID: getRequestID(r.Context()),
		Results:   make([]ScanResponse, 0, len(req.Records)),
	}
	for _, item := range req.Records {
		record, err := privacy.DecodeRecord(item.Data)
		if err != nil {
			s.metrics.ParseErrors.Inc()
			resp.ParseErrors++
			resp.Results = append(resp.Results, ScanResponse{
				RecordID: item.RecordID,
				Reason:   etl.ParseErrorReason,
			})
			continue
		}

		result := s.scan(r, item.RecordID, record)
		if result.IsPII {
			resp.Flagged++
		}
		resp.Results = append(resp.Results, result)
	}

	writeJSON(w, http.StatusOK, resp)
}

// scan runs one record through the active scanner and publishes the verdict
func (s *Server) scan(r *http.Request, recordID string, record privacy.Record) ScanResponse {
	requestID := getRequestID(r.Context())

	start := time.Now()
	result := s.scanner.Load().Scan(record)
	elapsed := time.Since(start)

	s.metrics.ObserveScan(result.IsPII, elapsed)
	s.totalScans.Add(1)
	if result.IsPII {
		s.flaggedScans.Add(1)
	}
	s.logger.WithRequestID(requestID).LogScan(recordID, result.IsPII, result.Confidence, result.Reasons)

	if s.wsHub != nil {
		s.wsHub.BroadcastScanResult(websocket.ScanResultEvent{
			RequestID:    requestID,
			RecordID:     recordID,
			IsPII:        result.IsPII,
			Confidence:   result.Confidence,
			Reasons:      result.Reasons,
			ProcessingMS: float64(elapsed.Microseconds()) / 1000,
		})
	}

	reasons := result.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return ScanResponse{
		RecordID:        recordID,
		RedactedData:    result.Sanitized,
		IsPII:           result.IsPII,
		ConfidenceScore: result.Confidence,
		Reason:          result.Rationale,
		Reasons:         reasons,
	}
}

// handleRules describes the active catalog
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scanner.Load().Catalog().Summary())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":               "pii-sentinel",
		"version":            Version,
		"rules_path":         s.config.Rules.Path,
		"rate_limit_enabled": s.config.RateLimit.Enabled,
		"websocket_enabled":  s.wsHub != nil,
		"status":             s.status(),
	})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		return body, true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return nil, false
	}

	s.logger.WithRequestID(getRequestID(r.Context())).Warn("Failed to read request body", zap.Error(err))
	writeError(w, r, http.StatusBadRequest, "failed to read request body")
	return nil, false
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, r.Method+" not allowed on "+r.URL.Path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: getRequestID(r.Context())})
}

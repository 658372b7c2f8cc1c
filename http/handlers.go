package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"purchaseprob/ml"
	"purchaseprob/monitoring"
)

const (
	msgNoJSON       = "JSON no corpo da requisição não encontrado"
	msgInvalidJSON  = "JSON inválido"
	msgBodyTooLarge = "Corpo da requisição muito grande"
)

// Handlers carries what the endpoints need; build it with NewHandlers.
type Handlers struct {
	model   ml.Classifier
	metrics *monitoring.MetricsCollector
	logger  *zap.Logger

	wsTimeout time.Duration
	wsOrigins []string
	wsMaxSize int64
}

// NewHandlers fills in a no-op logger and a fresh collector when none are given.
func NewHandlers(model ml.Classifier, metrics *monitoring.MetricsCollector, logger *zap.Logger, config ServerConfig) *Handlers {
	if metrics == nil {
		metrics = monitoring.NewMetricsCollector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		model:     model,
		metrics:   metrics,
		logger:    logger,
		wsTimeout: config.Timeout,
		wsOrigins: config.AllowedOrigins,
		wsMaxSize: config.MaxBodyBytes,
	}
}

// RegisterHandlers mounts every endpoint on mux.
func RegisterHandlers(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("POST /prob", h.handlePredict)
	mux.HandleFunc("POST /prob/{$}", h.handlePredict)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	mux.HandleFunc("GET /ws/prob", h.handlePredictStream)
}

type predictResponse struct {
	Prob float64 `json:"prob"`
}

type errorResponse struct {
	Erro string `json:"Erro"`
}

// scoreError pairs a client-facing message with the status it maps to.
type scoreError struct {
	status  int
	message string
}

func (e *scoreError) Error() string {
	return e.message
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"model":  h.model.Info(),
	})
}

func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "prometheus" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = io.WriteString(w, h.metrics.ExportPrometheus())
		return
	}
	respondJSON(w, http.StatusOK, h.metrics.Snapshot())
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	if !isJSONRequest(r) {
		respondError(w, http.StatusBadRequest, msgNoJSON)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
			return
		}
		respondError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", msgInvalidJSON, err))
		return
	}

	prob, err := h.score(r.Context(), body)
	if err != nil {
		var serr *scoreError
		if !errors.As(err, &serr) {
			serr = &scoreError{status: http.StatusInternalServerError, message: err.Error()}
		}
		if serr.status >= http.StatusInternalServerError {
			h.logger.Error("prediction failed",
				zap.String("request_id", GetRequestID(r.Context())),
				zap.String("error", serr.message),
			)
		}
		respondError(w, serr.status, serr.message)
		return
	}
	respondJSON(w, http.StatusOK, predictResponse{Prob: prob})
}

// score runs one raw JSON document through validation, feature assembly and
// inference, returning the positive-class probability as a percentage.
func (h *Handlers) score(ctx context.Context, body []byte) (float64, error) {
	payload, err := decodeObject(body)
	if err != nil {
		return 0, &scoreError{status: http.StatusBadRequest, message: fmt.Sprintf("%s: %v", msgInvalidJSON, err)}
	}

	start := time.Now()
	p, err := ml.Score(ctx, h.model, payload)

	var verr *ml.ValidationError
	switch {
	case err == nil:
		h.metrics.RecordPrediction(time.Since(start), nil)
		return ml.ProbabilityPercent(p), nil
	case errors.As(err, &verr):
		h.metrics.RecordValidationError()
		return 0, &scoreError{status: http.StatusBadRequest, message: ml.ErrorMessage(err)}
	default:
		h.metrics.RecordPrediction(time.Since(start), err)
		return 0, &scoreError{status: http.StatusInternalServerError, message: ml.ErrorMessage(err)}
	}
}

func decodeObject(body []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty body")
		}
		return nil, err
	}
	if decoder.More() {
		return nil, errors.New("unexpected data after JSON object")
	}
	object, ok := payload.(map[string]any)
	if !ok {
		return nil, errors.New("expected a JSON object")
	}
	return object, nil
}

// isJSONRequest accepts application/json and the application/*+json family.
func isJSONRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/json" ||
		(strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json"))
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Erro: message})
}

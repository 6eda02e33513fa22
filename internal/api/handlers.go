package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-aggregator/internal/monitoring"
	"github.com/sells-group/company-aggregator/internal/pipeline"
)

const maxBodyBytes = 64 << 10

// Error kinds reported for failures outside the pipeline.
const (
	KindBadRequest = "BadRequest"
	KindTimeout    = "Timeout"
	KindInternal   = "InternalError"
)

// AggregatorRequest is the body of POST /agent/aggregator.
type AggregatorRequest struct {
	UserInput string `json:"userInput" validate:"required"`
}

// ClassificationRequest is the body of POST /company/classification.
type ClassificationRequest struct {
	Employees *string `json:"employees"`
	MarketCap *string `json:"marketCap"`
}

// ClassificationResponse is returned by POST /company/classification.
type ClassificationResponse struct {
	Classification string `json:"classification"`
}

// ErrorBody is the envelope of every non-2xx response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

var validate = validator.New()

type handlers struct {
	deps Deps
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	report := monitoring.HealthReport{Status: monitoring.StatusOK}
	if h.deps.Health != nil {
		report = h.deps.Health.Check()
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) aggregate(w http.ResponseWriter, r *http.Request) {
	var req AggregatorRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, KindBadRequest, err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, KindBadRequest, "userInput is required")
		return
	}

	ctx := r.Context()
	if h.deps.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.deps.RequestTimeout)
		defer cancel()
	}

	state, err := h.deps.Pipeline.Invoke(ctx, req.UserInput)
	if state != nil {
		w.Header().Set(RunIDHeader, state.RunID)
	}
	if err != nil {
		status, kind := statusFor(err)
		writeError(w, status, kind, err.Error())
		return
	}

	result, err := state.Result()
	if err != nil {
		writeError(w, http.StatusInternalServerError, KindInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) classification(w http.ResponseWriter, r *http.Request) {
	var req ClassificationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, KindBadRequest, err.Error())
		return
	}

	tier, err := h.deps.Classifier.Classify(r.Context(), req.Employees, req.MarketCap)
	if err != nil {
		writeError(w, http.StatusBadGateway, string(pipeline.KindClassification), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ClassificationResponse{Classification: tier.String()})
}

// statusFor maps a run failure onto an HTTP status and error kind.
func statusFor(err error) (int, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, KindTimeout
	}
	switch kind := pipeline.KindOf(err); kind {
	case pipeline.KindResolution:
		return http.StatusUnprocessableEntity, string(kind)
	case pipeline.KindExtraction, pipeline.KindClassification:
		return http.StatusBadGateway, string(kind)
	case pipeline.KindMerge:
		return http.StatusInternalServerError, string(kind)
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return eris.New("request body is empty")
		}
		return eris.Wrap(err, "invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Kind: kind, Message: message}})
}

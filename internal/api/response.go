package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/erosion-api/internal/analysis"
	"github.com/sells-group/erosion-api/internal/observability"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Detail    string `json:"detail"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		observability.Logger(r.Context()).Error("encode response", zap.Error(err))
		writeError(w, analysis.NewError(analysis.KindInternalAssembly, "Failed to encode response", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, e *analysis.Error) {
	body, _ := json.Marshal(ErrorResponse{
		Success:   false,
		Error:     string(e.Kind),
		Detail:    e.Message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Kind.HTTPStatus())
	_, _ = w.Write(body)
}

package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MaanVader/Chack/handler"
	"github.com/MaanVader/Chack/observability/types"

	"github.com/google/uuid"
)

// HTTPAdapter serves a handler over HTTP. The request type comes from the
// X-Request-Type header or the first path segment, so POST /assessment.get
// and POST / with X-Request-Type: assessment.get are equivalent.
type HTTPAdapter struct {
	handler *handler.Handler
}

// NewHTTPAdapter creates a new HTTP adapter with the provided handler.
func NewHTTPAdapter(h *handler.Handler) *HTTPAdapter {
	return &HTTPAdapter{handler: h}
}

// ServeHTTP implements http.Handler.
func (a *HTTPAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.isHealthCheck(r.URL.Path) {
		a.handleHealth(w, r)
		return
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		a.writeErrorResponse(w, http.StatusMethodNotAllowed, handler.NewErrorResponse(
			uuid.New().String(),
			handler.CodeInvalidRequest,
			"Only POST is supported",
			r.Method,
		))
		return
	}

	body, err := a.readBody(w, r)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		a.writeErrorResponse(w, status, handler.NewErrorResponse(
			uuid.New().String(),
			handler.CodeInvalidRequest,
			"Failed to read request body",
			err.Error(),
		))
		return
	}

	req := a.buildRequest(r, body)

	resp, err := a.handler.Handle(r.Context(), req)
	a.writeResponse(r.Context(), w, req.ID, resp, err)
}

func (a *HTTPAdapter) isHealthCheck(path string) bool {
	switch path {
	case "/health", "/healthz", "/ready", "/readyz", "/live", "/livez":
		return true
	}
	return false
}

func (a *HTTPAdapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := a.handler.Health(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "healthy",
		"worker": a.handler.Worker().Name(),
		"time":   time.Now().UTC(),
	})
}

func (a *HTTPAdapter) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	maxSize := a.handler.Config().MaxRequestSize
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	return body, nil
}

func (a *HTTPAdapter) buildRequest(r *http.Request, body []byte) handler.Request {
	requestID := a.extractRequestID(r)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	return handler.Request{
		ID:        requestID,
		Source:    handler.PlatformHTTP,
		Type:      a.extractRequestType(r),
		Payload:   json.RawMessage(body),
		Metadata:  a.extractMetadata(r),
		Timestamp: time.Now().UTC(),
	}
}

func (a *HTTPAdapter) extractRequestID(r *http.Request) string {
	for _, header := range []string{"X-Request-ID", "X-Correlation-ID", "Request-ID"} {
		if id := r.Header.Get(header); id != "" {
			return id
		}
	}
	return ""
}

func (a *HTTPAdapter) extractRequestType(r *http.Request) string {
	if reqType := r.Header.Get("X-Request-Type"); reqType != "" {
		return reqType
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	if idx := strings.Index(path, "/"); idx > 0 {
		return path[:idx]
	}
	return path
}

func (a *HTTPAdapter) extractMetadata(r *http.Request) map[string]string {
	metadata := map[string]string{
		"http_method": r.Method,
		"http_path":   r.URL.Path,
		"http_host":   r.Host,
	}

	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			metadata["query_"+key] = values[0]
		}
	}

	for _, header := range []string{"Content-Type", "User-Agent", "X-Forwarded-For", "X-User-ID"} {
		if value := r.Header.Get(header); value != "" {
			metadata["header_"+strings.ToLower(strings.ReplaceAll(header, "-", "_"))] = value
		}
	}

	if traceID := r.Header.Get("X-Trace-ID"); traceID != "" {
		metadata["trace_id"] = traceID
	}

	return metadata
}

func (a *HTTPAdapter) writeResponse(ctx context.Context, w http.ResponseWriter, requestID string, resp handler.Response, err error) {
	if resp.ID == "" {
		resp.ID = requestID
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", resp.ID)
	for key, value := range resp.Metadata {
		w.Header().Set("X-"+key, value)
	}

	if err != nil {
		a.handler.Logger().Error(ctx, "Request processing failed", err, types.Fields{"request_id": resp.ID})
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(handler.NewErrorResponse(
			resp.ID,
			handler.CodeInternal,
			"Request processing failed",
			err.Error(),
		))
		return
	}

	w.WriteHeader(StatusCode(resp))
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.handler.Logger().Warn(ctx, "Failed to write response", types.Fields{
			"request_id": resp.ID,
			"error":      err.Error(),
		})
	}
}

func (a *HTTPAdapter) writeErrorResponse(w http.ResponseWriter, status int, resp handler.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", resp.ID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// StatusCode maps a handler response to an HTTP status code.
func StatusCode(resp handler.Response) int {
	if resp.Success {
		return http.StatusOK
	}
	if resp.Error == nil {
		return http.StatusInternalServerError
	}

	switch resp.Error.Code {
	case handler.CodeValidation, handler.CodeInvalidRequest, handler.CodeUnsupportedType:
		return http.StatusBadRequest
	case handler.CodeNotFound:
		return http.StatusNotFound
	case "RATE_LIMITED":
		return http.StatusTooManyRequests
	case handler.CodeTimeout:
		return http.StatusGatewayTimeout
	case handler.CodeCancelled:
		return http.StatusRequestTimeout
	case handler.CodeTemporary, handler.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Serve runs an HTTP server on addr until ctx is cancelled. Extra handlers
// (for example /metrics) are mounted next to the adapter, which serves
// every other path.
func (a *HTTPAdapter) Serve(ctx context.Context, addr string, extra map[string]http.Handler) error {
	mux := http.NewServeMux()
	for pattern, h := range extra {
		mux.Handle(pattern, h)
	}
	mux.Handle("/", a)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	a.handler.Logger().Info(ctx, "HTTP server listening", types.Fields{"addr": addr})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

package cartapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Server exposes a Lines store over HTTP.
type Server struct {
	lines  Lines
	logger *slog.Logger
	tracer trace.Tracer
}

// NewServer creates a Server. A nil logger uses slog.Default().
func NewServer(lines Lines, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		lines:  lines,
		logger: logger,
		tracer: otel.Tracer("cartapi"),
	}
}

// Router returns the HTTP handler for all routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/users/{userID}/cart", s.getCart).Methods(http.MethodGet)
	r.HandleFunc("/users/{userID}/cart", s.clearCart).Methods(http.MethodDelete)
	r.HandleFunc("/users/{userID}/cart/items", s.addItem).Methods(http.MethodPost)
	r.HandleFunc("/cart/items/{lineID}", s.updateItem).Methods(http.MethodPatch)
	r.HandleFunc("/cart/items/{lineID}", s.removeItem).Methods(http.MethodDelete)
	r.Use(s.middleware)

	return r
}

type cartResponse struct {
	Items []Line `json:"items"`
}

type updateRequest struct {
	Quantity int `json:"quantity"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("app.user_id", userID))

	lines, err := s.lines.List(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cartResponse{Items: lines})
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeStatus(w, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("app.user_id", userID),
		attribute.String("app.product_id", req.ProductID),
		attribute.Int64("app.quantity", int64(req.Quantity)),
	)

	line, err := s.lines.Add(r.Context(), userID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, line)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	lineID := mux.Vars(r)["lineID"]

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeStatus(w, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("app.line_id", lineID),
		attribute.Int64("app.quantity", int64(req.Quantity)),
	)

	line, err := s.lines.Update(r.Context(), lineID, req.Quantity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, line)
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	lineID := mux.Vars(r)["lineID"]
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("app.line_id", lineID))

	if err := s.lines.Remove(r.Context(), lineID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("app.user_id", userID))

	if err := s.lines.Clear(r.Context(), userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		span := trace.SpanFromContext(r.Context())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("cart request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeStatus(w, status, err.Error())
}

func (s *Server) writeStatus(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", "error", err)
	}
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := s.tracer.Start(ctx, r.Method+" "+routeTemplate(r), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		s.logger.Debug("cart request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/roach88/cartsync/internal/cart"
)

// DefaultTimeout bounds each HTTP request.
const DefaultTimeout = 10 * time.Second

// HTTPClient talks to the cart service over HTTP/JSON.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	tracer  trace.Tracer
	meter   metric.Meter
	logger  *slog.Logger

	requests metric.Int64Counter
	duration metric.Float64Histogram
}

var _ Service = (*HTTPClient)(nil)

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(h *HTTPClient) {
		if d > 0 {
			h.client.Timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests at rps with the given burst.
// rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(h *HTTPClient) {
		if rps <= 0 {
			h.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(h *HTTPClient) {
		if tp != nil {
			h.tracer = tp.Tracer("cartsync/remote")
		}
	}
}

// WithMeterProvider sets the provider request metrics are recorded with.
func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(h *HTTPClient) {
		if mp != nil {
			h.meter = mp.Meter("cartsync/remote")
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(h *HTTPClient) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHTTPClient creates a client for the service at baseURL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
		tracer:  otel.Tracer("cartsync/remote"),
		meter:   otel.Meter("cartsync/remote"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if err := h.initMetrics(); err != nil {
		h.logger.Warn("remote metrics disabled", "error", err)
		h.meter = noop.NewMeterProvider().Meter("cartsync/remote")
		_ = h.initMetrics()
	}
	return h
}

func (h *HTTPClient) initMetrics() error {
	var err error
	h.requests, err = h.meter.Int64Counter("cartsync.remote.requests",
		metric.WithDescription("Remote cart service calls by operation and outcome"),
		metric.WithUnit("{call}"))
	if err != nil {
		return fmt.Errorf("requests counter: %w", err)
	}
	h.duration, err = h.meter.Float64Histogram("cartsync.remote.duration",
		metric.WithDescription("Remote cart service call latency"),
		metric.WithUnit("s"))
	if err != nil {
		return fmt.Errorf("duration histogram: %w", err)
	}
	return nil
}

type addItemRequest struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type cartResponse struct {
	Items []cart.Record `json:"items"`
}

func (h *HTTPClient) FetchCart(ctx context.Context, userID string) ([]cart.Record, error) {
	var out cartResponse
	err := h.do(ctx, OpFetchCart, http.MethodGet, "/users/"+url.PathEscape(userID)+"/cart", nil, &out,
		attribute.String("app.user_id", userID))
	if err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []cart.Record{}
	}
	return out.Items, nil
}

func (h *HTTPClient) AddItem(ctx context.Context, userID, itemRef string, qty int, price decimal.Decimal) (Ack, error) {
	body := addItemRequest{ProductID: itemRef, Quantity: qty, Price: price}
	var line cart.Record
	err := h.do(ctx, OpAddItem, http.MethodPost, "/users/"+url.PathEscape(userID)+"/cart/items", body, &line,
		attribute.String("app.user_id", userID),
		attribute.String("app.product_id", itemRef),
		attribute.Int64("app.quantity", int64(qty)))
	if err != nil {
		return Ack{}, err
	}
	return lineAck(line), nil
}

func (h *HTTPClient) UpdateItem(ctx context.Context, lineID string, qty int) (Ack, error) {
	var line cart.Record
	err := h.do(ctx, OpUpdateItem, http.MethodPatch, "/cart/items/"+url.PathEscape(lineID), updateItemRequest{Quantity: qty}, &line,
		attribute.String("app.line_id", lineID),
		attribute.Int64("app.quantity", int64(qty)))
	if err != nil {
		return Ack{}, err
	}
	return lineAck(line), nil
}

func (h *HTTPClient) RemoveItem(ctx context.Context, lineID string) (Ack, error) {
	err := h.do(ctx, OpRemoveItem, http.MethodDelete, "/cart/items/"+url.PathEscape(lineID), nil, nil,
		attribute.String("app.line_id", lineID))
	if err != nil {
		return Ack{}, err
	}
	return Ack{LineID: lineID}, nil
}

func (h *HTTPClient) ClearCart(ctx context.Context, userID string) (Ack, error) {
	err := h.do(ctx, OpClearCart, http.MethodDelete, "/users/"+url.PathEscape(userID)+"/cart", nil, nil,
		attribute.String("app.user_id", userID))
	if err != nil {
		return Ack{}, err
	}
	return Ack{}, nil
}

// Healthy reports whether the service answers its health check.
func (h *HTTPClient) Healthy(ctx context.Context) error {
	return h.do(ctx, "healthz", http.MethodGet, "/healthz", nil, nil)
}

func (h *HTTPClient) do(ctx context.Context, op Op, method, path string, in, out any, attrs ...attribute.KeyValue) (err error) {
	ctx, span := h.tracer.Start(ctx, "remote."+string(op), trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attrs...)
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		set := metric.WithAttributes(attribute.String("op", string(op)), attribute.String("outcome", outcome))
		h.requests.Add(ctx, 1, set)
		h.duration.Record(ctx, time.Since(start).Seconds(), set)

		h.logger.Debug("remote call", "op", op, "method", method, "path", path,
			"duration", time.Since(start), "error", err)
	}()

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return &Error{Op: op, Message: "rate limit wait: " + err.Error(), Err: err}
		}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Message: "encode request: " + err.Error(), Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return &Error{Op: op, Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := h.client.Do(req)
	if err != nil {
		return &Error{Op: op, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		return &Error{Op: op, Status: resp.StatusCode, Message: errorMessage(resp)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &Error{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err), Err: err}
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a failed response, falling
// back to the status text.
func errorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return http.StatusText(resp.StatusCode)
}

func lineAck(line cart.Record) Ack {
	ack := Ack{Line: line}
	if id, ok := line["cartItemId"].(string); ok {
		ack.LineID = id
	}
	return ack
}

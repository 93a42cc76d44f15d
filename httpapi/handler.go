package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/poiesic/curata/core"
	"github.com/poiesic/curata/metrics"
	"github.com/poiesic/curata/search"
	"github.com/poiesic/curata/service"
)

// Backend is the engine surface served over HTTP.
type Backend interface {
	Recommend(ctx context.Context, userID core.ID, k int) (*core.RankedResult, error)
	Search(ctx context.Context, text string, k int) (*core.RankedResult, error)
	SearchKeywords(ctx context.Context, text string, k int) (*core.RankedResult, error)
	MarkSeen(ctx context.Context, userID core.ID, itemIDs ...core.ID) error
	SetPopularity(ctx context.Context, itemID core.ID, value float32) error
	GetItem(ctx context.Context, itemID core.ID) (*core.Item, error)
	Ready() bool
}

// Default result sizes.
const (
	DefaultK = 10
	MaxK     = 100
)

// Handler routes HTTP requests to a Backend.
type Handler struct {
	backend  Backend
	state    func() string
	metrics  *metrics.Metrics
	defaultK int
	maxK     int
	origins  []string
	logger   *slog.Logger
	validate *validator.Validate
}

// Option configures a Handler.
type Option func(*Handler) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) error {
		if logger == nil {
			logger = slog.Default()
		}
		h.logger = logger
		return nil
	}
}

// WithMetrics serves m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) error {
		h.metrics = m
		return nil
	}
}

// WithState reports a lifecycle state name on /healthz.
func WithState(state func() string) Option {
	return func(h *Handler) error {
		h.state = state
		return nil
	}
}

// WithLimits sets the result size used when k is omitted and the largest k accepted.
func WithLimits(defaultK, maxK int) Option {
	return func(h *Handler) error {
		if defaultK < 1 || maxK < defaultK {
			return errors.New("httpapi: need 1 <= defaultK <= maxK")
		}
		h.defaultK = defaultK
		h.maxK = maxK
		return nil
	}
}

// WithCORS allows browser requests from origins. Empty disables CORS headers.
func WithCORS(origins ...string) Option {
	return func(h *Handler) error {
		h.origins = origins
		return nil
	}
}

// New creates a handler over backend.
func New(backend Backend, opts ...Option) (*Handler, error) {
	if backend == nil {
		return nil, errors.New("httpapi: backend required")
	}
	h := &Handler{
		backend:  backend,
		defaultK: DefaultK,
		maxK:     MaxK,
		logger:   slog.Default(),
		validate: validator.New(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// Routes returns the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(h.logRequests)
	if len(h.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"Retry-After", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", h.search)
		r.Get("/users/{userID}/recommendations", h.recommend)
		r.Post("/users/{userID}/seen", h.markSeen)
		r.Get("/items/{itemID}", h.getItem)
		r.Put("/items/{itemID}/popularity", h.setPopularity)
	})

	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()))
	})
}

type healthResponse struct {
	Ready bool   `json:"ready"`
	State string `json:"state,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Ready: h.backend.Ready()}
	if h.state != nil {
		resp.State = h.state()
	}
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	h.respondJSON(w, status, resp)
}

func (h *Handler) recommend(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	k, ok := h.queryK(w, r)
	if !ok {
		return
	}

	result, err := h.backend.Recommend(r.Context(), userID, k)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, newRankedResponse(result))
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		h.respondMessage(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	k, ok := h.queryK(w, r)
	if !ok {
		return
	}

	var (
		result *core.RankedResult
		err    error
	)
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", "hybrid":
		result, err = h.backend.Search(r.Context(), q, k)
	case "keyword":
		result, err = h.backend.SearchKeywords(r.Context(), q, k)
	default:
		h.respondMessage(w, http.StatusBadRequest, "mode must be hybrid or keyword")
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, newRankedResponse(result))
}

type markSeenRequest struct {
	ItemIDs []uint64 `json:"item_ids" validate:"required,min=1,dive,gt=0"`
}

func (h *Handler) markSeen(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	var req markSeenRequest
	if !h.decode(w, r, &req) {
		return
	}

	ids := make([]core.ID, len(req.ItemIDs))
	for i, id := range req.ItemIDs {
		ids[i] = core.ID(id)
	}
	if err := h.backend.MarkSeen(r.Context(), userID, ids...); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	item, err := h.backend.GetItem(r.Context(), itemID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, newItemResponse(item))
}

type setPopularityRequest struct {
	Popularity *float32 `json:"popularity" validate:"required,gte=0"`
}

func (h *Handler) setPopularity(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req setPopularityRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.backend.SetPopularity(r.Context(), itemID, *req.Popularity); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (core.ID, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		h.respondMessage(w, http.StatusBadRequest, "invalid "+name+": "+raw)
		return 0, false
	}
	return core.ID(id), true
}

func (h *Handler) queryK(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("k")
	if raw == "" {
		return h.defaultK, true
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k < 1 || k > h.maxK {
		h.respondMessage(w, http.StatusBadRequest, "k must be an integer between 1 and "+strconv.Itoa(h.maxK))
		return 0, false
	}
	return k, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.respondMessage(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.respondMessage(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) respondMessage(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, errorResponse{Error: msg})
}

// respondError maps engine errors to HTTP status codes.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotReady):
		w.Header().Set("Retry-After", "1")
		status = http.StatusServiceUnavailable
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, search.ErrInvalidK), errors.Is(err, search.ErrEmptyRequest),
		errors.Is(err, core.ErrInvalidPopularity):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrEmbeddingFailed):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "err", err)
	}
	h.respondMessage(w, status, err.Error())
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to marshal response", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("failed to write response", "err", err)
	}
}

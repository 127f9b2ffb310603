package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mediapipe/internal/broker"
	"mediapipe/internal/ingest"
	"mediapipe/internal/jobs"
	"mediapipe/internal/logging"
	"mediapipe/internal/metrics"
	"mediapipe/internal/services"
	"mediapipe/internal/stage"
	"mediapipe/internal/staging"
	"mediapipe/internal/store"
)

// multipartMemory is the part of a multipart upload buffered in memory; the
// rest spills to temp files before staging.
const multipartMemory = 8 << 20

// Gateway accepts uploads and cascading deletes.
type Gateway interface {
	Ingest(ctx context.Context, upload ingest.Upload) (string, error)
	Delete(ctx context.Context, id string) error
}

// Announcer emits realtime events for new messages.
type Announcer interface {
	EmitNewMessage(chatGroupID string, message any)
}

// DeviceRegistry stores push tokens.
type DeviceRegistry interface {
	Register(ctx context.Context, token store.DeviceToken) error
	Remove(ctx context.Context, tokens ...string) (int64, error)
}

// HealthFunc reports one component's readiness.
type HealthFunc func(ctx context.Context) stage.Health

// StatusFunc reports daemon runtime information.
type StatusFunc func(ctx context.Context) DaemonStatus

// Options wires the router to its collaborators. Nil collaborators disable
// the routes that need them.
type Options struct {
	Files     FileReader
	Gateway   Gateway
	Broker    broker.Broker
	Announcer Announcer
	Devices   DeviceRegistry
	Health    []HealthFunc
	Status    StatusFunc
	// Realtime serves /ws.
	Realtime http.Handler
	// Metrics serves /metrics.
	Metrics        http.Handler
	APIToken       string
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type router struct {
	opts   Options
	files  *FileService
	logger *slog.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options) http.Handler {
	rt := &router{
		opts:   opts,
		files:  NewFileService(opts.Files),
		logger: logging.NewComponentLogger(opts.Logger, "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/api/health", rt.handleHealth)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(opts.APIToken))

		r.Get("/api/status", rt.handleStatus)
		r.Post("/api/files", rt.handleUpload)
		r.Get("/api/files/stats", rt.handleStats)
		r.Get("/api/files/{id}", rt.handleGetFile)
		r.Delete("/api/files/{id}", rt.handleDeleteFile)
		r.Get("/api/resources", rt.handleResources)
		r.Post("/api/messages", rt.handleMessage)
		r.Post("/api/devices", rt.handleRegisterDevice)
		r.Delete("/api/devices/{token}", rt.handleRemoveDevice)
		if opts.Realtime != nil {
			r.Method(http.MethodGet, "/ws", opts.Realtime)
		}
	})
	return r
}

func (rt *router) handleHealth(w http.ResponseWriter, r *http.Request) {
	records := make([]stage.Health, 0, len(rt.opts.Health))
	for _, check := range rt.opts.Health {
		records = append(records, check(r.Context()))
	}
	resp := FromHealth(records)
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	rt.writeJSON(w, status, resp)
}

func (rt *router) handleStatus(w http.ResponseWriter, r *http.Request) {
	if rt.opts.Status == nil {
		rt.writeError(w, http.StatusNotFound, "status unavailable")
		return
	}
	rt.writeJSON(w, http.StatusOK, rt.opts.Status(r.Context()))
}

func (rt *router) handleUpload(w http.ResponseWriter, r *http.Request) {
	if rt.opts.Gateway == nil {
		rt.writeError(w, http.StatusServiceUnavailable, "uploads disabled")
		return
	}
	if limit := rt.opts.MaxUploadBytes; limit > 0 {
		// Leave room for multipart framing; staging enforces the exact limit.
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rt.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		rt.writeError(w, http.StatusBadRequest, "expected multipart form with a file field")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	part, header, err := r.FormFile("file")
	if err != nil {
		rt.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer part.Close()

	mediaType := header.Header.Get("Content-Type")
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}
	id, err := rt.opts.Gateway.Ingest(r.Context(), ingest.Upload{
		Reader:       part,
		MediaType:    mediaType,
		OriginalName: header.Filename,
	})
	if err != nil {
		rt.writeServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/api/files/"+id)
	rt.writeJSON(w, http.StatusCreated, UploadResponse{ID: id, Status: store.StatusProcessing})
}

func (rt *router) handleGetFile(w http.ResponseWriter, r *http.Request) {
	view, err := rt.files.Describe(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rt.writeServiceError(w, err)
		return
	}
	if view == nil {
		rt.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	rt.writeJSON(w, http.StatusOK, view)
}

func (rt *router) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := rt.files.Stats(r.Context())
	if err != nil {
		rt.writeServiceError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, StatsResponse{Counts: counts})
}

func (rt *router) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if rt.opts.Gateway == nil {
		rt.writeError(w, http.StatusServiceUnavailable, "deletes disabled")
		return
	}
	if err := rt.opts.Gateway.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		rt.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *router) handleResources(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var rq store.ResourceQuery
	if value := strings.TrimSpace(query.Get("kind")); value != "" {
		rq.Kind = store.Kind(strings.ToLower(value))
		if !rq.Kind.Valid() {
			rt.writeError(w, http.StatusBadRequest, "unknown kind "+strconv.Quote(value))
			return
		}
	}
	if value := strings.TrimSpace(query.Get("status")); value != "" {
		status, ok := store.ParseStatus(value)
		if !ok {
			rt.writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(value))
			return
		}
		rq.Status = status
	}
	for name, dst := range map[string]*int{"page": &rq.Page, "limit": &rq.Limit} {
		value := strings.TrimSpace(query.Get(name))
		if value == "" {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			rt.writeError(w, http.StatusBadRequest, "invalid "+name)
			return
		}
		*dst = n
	}

	page, err := rt.files.List(r.Context(), rq)
	if err != nil {
		rt.writeServiceError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, page)
}

func (rt *router) handleMessage(w http.ResponseWriter, r *http.Request) {
	if rt.opts.Broker == nil {
		rt.writeError(w, http.StatusServiceUnavailable, "message announcements disabled")
		return
	}
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, http.StatusBadRequest, "malformed message")
		return
	}
	if err := req.Validate(); err != nil {
		rt.writeServiceError(w, err)
		return
	}
	if rt.opts.Announcer != nil {
		rt.opts.Announcer.EmitNewMessage(req.Message.ChatGroupID, req.Message)
	}
	if err := jobs.Publish(r.Context(), rt.opts.Broker, req); err != nil {
		logging.WarnWithContext(rt.logger, "enqueue message notification failed", "message_publish_failed",
			logging.Error(err),
			logging.String("message_id", req.Message.ID),
			logging.String(logging.FieldErrorHint, "check broker connectivity"),
			logging.String(logging.FieldImpact, "recipients get no push for this message"),
		)
		rt.writeError(w, http.StatusServiceUnavailable, "message queue unavailable")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (rt *router) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if rt.opts.Devices == nil {
		rt.writeError(w, http.StatusServiceUnavailable, "push disabled")
		return
	}
	var req DeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, http.StatusBadRequest, "malformed device registration")
		return
	}
	err := rt.opts.Devices.Register(r.Context(), store.DeviceToken{UserID: req.UserID, Token: req.Token, Platform: req.Platform})
	if err != nil {
		rt.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *router) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	if rt.opts.Devices == nil {
		rt.writeError(w, http.StatusServiceUnavailable, "push disabled")
		return
	}
	if _, err := rt.opts.Devices.Remove(r.Context(), chi.URLParam(r, "token")); err != nil {
		rt.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps marker errors to HTTP statuses.
func (rt *router) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, staging.ErrTooLarge):
		rt.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
	case errors.Is(err, services.ErrValidation):
		rt.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		rt.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrNotReady):
		rt.writeError(w, http.StatusConflict, err.Error())
	default:
		logging.ErrorWithContext(rt.logger, "request failed", "api_request_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.MarkerName(err)),
		)
		rt.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (rt *router) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		rt.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (rt *router) writeError(w http.ResponseWriter, status int, message string) {
	rt.writeJSON(w, status, errorResponse{Error: message})
}

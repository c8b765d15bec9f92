package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kondee/pocsdcard/internal/logctx"
	"github.com/kondee/pocsdcard/internal/service"
	"github.com/kondee/pocsdcard/internal/status"
	"github.com/kondee/pocsdcard/internal/storage"
	"github.com/kondee/pocsdcard/internal/transfer"
)

// FileService is what the handler needs from the service layer.
type FileService interface {
	Tag() string
	RequestDownload(ctx context.Context) (bool, error)
	CancelDownload() bool
	ChangeLocation(ctx context.Context, loc storage.Location, moveFiles bool) (status.FileStatus, error)
	DeleteFile(ctx context.Context) (status.FileStatus, error)
	Status() status.FileStatus
	Subscribe() (<-chan status.FileStatus, func())
	SDCardAvailable(ctx context.Context) bool
	Location(ctx context.Context) (storage.Location, error)
}

type DownloadResponse struct {
	Tag string `json:"tag"`
}

type LocationResponse struct {
	Location        storage.Location `json:"location"`
	SDCardAvailable bool             `json:"sd_card_available"`
}

type LocationRequest struct {
	Location  string `json:"location"`
	MoveFiles bool   `json:"move_files"`
}

type FileHandler struct {
	username string
	password string
	svc      FileService
}

// NewFileHandler creates the handler. Basic auth is enforced when username is set.
func NewFileHandler(username, password string, svc FileService) *FileHandler {
	return &FileHandler{
		username: username,
		password: password,
		svc:      svc,
	}
}

func (h *FileHandler) Routes() http.Handler {
	r := chi.NewRouter()

	if h.username != "" {
		r.Use(h.basicAuthMiddleware)
	}

	r.Post("/downloads", h.HandleStartDownload)
	r.Delete("/downloads", h.HandleCancelDownload)
	r.Get("/status", h.HandleStatus)
	r.Get("/status/events", h.HandleStatusEvents)
	r.Get("/location", h.HandleGetLocation)
	r.Put("/location", h.HandleSetLocation)
	r.Delete("/file", h.HandleDeleteFile)

	return r
}

// HandleStartDownload enqueues the background download.
func (h *FileHandler) HandleStartDownload(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	started, err := h.svc.RequestDownload(r.Context())
	if errors.Is(err, service.ErrBusy) {
		http.Error(w, err.Error(), http.StatusConflict)

		return
	}

	if err != nil {
		logger.Error("failed to start download", "err", err)
		http.Error(w, "failed to start download", http.StatusInternalServerError)

		return
	}

	if !started {
		http.Error(w, "download already in progress", http.StatusConflict)

		return
	}

	writeJSON(r.Context(), w, http.StatusAccepted, DownloadResponse{Tag: h.svc.Tag()})
}

func (h *FileHandler) HandleCancelDownload(w http.ResponseWriter, r *http.Request) {
	if h.svc.CancelDownload() {
		logctx.LoggerFromContext(r.Context()).Info("download cancelled by request")
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *FileHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, h.svc.Status())
}

// HandleStatusEvents streams status snapshots as server-sent events until the
// client goes away. Slow clients only see the latest snapshot.
func (h *FileHandler) HandleStatusEvents(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)

		return
	}

	updates, unsubscribe := h.svc.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("status stream closed")

			return
		case st, ok := <-updates:
			if !ok {
				return
			}

			data, err := json.Marshal(st)
			if err != nil {
				logger.Error("failed to marshal status", "err", err)

				return
			}

			if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", data); err != nil {
				return
			}

			flusher.Flush()
		}
	}
}

func (h *FileHandler) HandleGetLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := h.svc.Location(r.Context())
	if err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to read location", "err", err)
		http.Error(w, "failed to read location", http.StatusInternalServerError)

		return
	}

	writeJSON(r.Context(), w, http.StatusOK, LocationResponse{
		Location:        loc,
		SDCardAvailable: h.svc.SDCardAvailable(r.Context()),
	})
}

// HandleSetLocation switches the download location, optionally moving the
// already downloaded files.
func (h *FileHandler) HandleSetLocation(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("failed to decode request", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	loc, err := storage.ParseLocation(req.Location)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	st, err := h.svc.ChangeLocation(r.Context(), loc, req.MoveFiles)
	if err != nil {
		h.writeError(w, r, "failed to change location", err)

		return
	}

	writeJSON(r.Context(), w, http.StatusOK, st)
}

func (h *FileHandler) HandleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.DeleteFile(r.Context()); err != nil {
		h.writeError(w, r, "failed to delete file", err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *FileHandler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var resErr *transfer.ResolutionError

	switch {
	case errors.Is(err, service.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &resErr):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		logctx.LoggerFromContext(r.Context()).Error(msg, "err", err)
		http.Error(w, msg+": "+err.Error(), http.StatusInternalServerError)
	}
}

func (h *FileHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		if username != h.username || password != h.password {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to encode response", "err", err)
	}
}

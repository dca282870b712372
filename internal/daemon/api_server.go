package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"caddis/internal/api"
	"caddis/internal/config"
	"caddis/internal/engine"
	"caddis/internal/jobs"
	"caddis/internal/logging"
	"caddis/internal/services"
	"caddis/internal/services/oda"
)

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	maxInput int64

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:     bind,
		logger:   logger,
		daemon:   d,
		maxInput: cfg.MaxInputBytes(),
	}

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Post("/convert", srv.handleConvert)
		r.Get("/jobs", srv.handleJobs)
		r.Get("/jobs/{id}", srv.handleJob)
		r.Get("/status", srv.handleStatus)
		r.Get("/health", srv.handleHealth)
	})

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		// Conversions are served synchronously; the write timeout must
		// outlast the admission wait plus the conversion timeout.
		ReadTimeout:  cfg.AdmissionWait() + cfg.ConversionTimeout(),
		WriteTimeout: cfg.AdmissionWait() + cfg.ConversionTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// handleConvert accepts one drawing as multipart form data and streams the
// converted file back on success. The form carries the upload under "file",
// the target format under "target", and an optional "source_version".
func (s *apiServer) handleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxInput+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, api.ErrorResponse{
			Error:          fmt.Sprintf("parse multipart form: %v", err),
			Classification: services.CodeInputInvalid,
		})
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	target, err := oda.ParseFormat(r.FormValue("target"))
	if err != nil {
		s.writeClassifiedError(w, "", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, api.ErrorResponse{
			Error:          `multipart field "file" is required`,
			Classification: services.CodeInputInvalid,
		})
		return
	}
	defer file.Close()

	if header.Size > s.maxInput {
		s.writeError(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{
			Error:          fmt.Sprintf("input exceeds %d byte limit", s.maxInput),
			Classification: services.CodeInputInvalid,
		})
		return
	}

	input, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, api.ErrorResponse{
			Error:          fmt.Sprintf("read upload: %v", err),
			Classification: services.CodeInputInvalid,
		})
		return
	}

	result, err := s.daemon.Convert(r.Context(), engine.Request{
		Filename:   header.Filename,
		Input:      input,
		Target:     target,
		SourceHint: r.FormValue("source_version"),
	})
	if err != nil {
		jobID := ""
		if result != nil {
			jobID = result.JobID
		}
		s.writeClassifiedError(w, jobID, err)
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": result.OutputName})
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("X-Job-Id", result.JobID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		s.log().Warn("write conversion response", logging.Error(err))
	}
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	var states []jobs.State
	for _, value := range r.URL.Query()["state"] {
		parsed, ok := jobs.ParseState(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, api.ErrorResponse{
				Error:          fmt.Sprintf("unknown job state %q", value),
				Classification: services.CodeInputInvalid,
			})
			return
		}
		states = append(states, parsed)
	}

	records, err := s.daemon.ListJobs(r.Context(), states)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromRecords(records)})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		s.writeError(w, http.StatusNotFound, api.ErrorResponse{Error: "job not found"})
		return
	}
	rec, err := s.daemon.GetJob(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
		return
	}
	if rec == nil {
		s.writeError(w, http.StatusNotFound, api.ErrorResponse{Error: "job not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromRecord(rec)})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// httpStatusFor maps an engine error classification onto an HTTP status.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInputInvalid):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrResourceExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrCrashed), errors.Is(err, services.ErrOutputMissing):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeClassifiedError(w http.ResponseWriter, jobID string, err error) {
	details := services.Details(err)
	s.writeError(w, httpStatusFor(err), api.ErrorResponse{
		Error:          details.Message,
		Classification: details.Code,
		JobID:          jobID,
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, payload api.ErrorResponse) {
	s.writeJSON(w, status, payload)
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}

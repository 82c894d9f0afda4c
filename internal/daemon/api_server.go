package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ticketless/internal/api"
	"ticketless/internal/config"
	"ticketless/internal/logging"
	"ticketless/internal/queue"
	"ticketless/internal/services"
	"ticketless/internal/upload"
	"ticketless/internal/worker"
)

// userHeader carries the authenticated user id set by the fronting gateway.
const userHeader = "X-User-ID"

const maxFormValue = 4 << 10

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	queueSvc *api.QueueService
	handler  http.Handler

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil, nil
	}
	srv := &apiServer{
		bind:     bind,
		logger:   logger,
		daemon:   d,
		queueSvc: api.NewQueueService(d.deps.Store),
	}
	srv.handler = srv.routes(cfg.API.Token, cfg.API.WorkerSecret)
	return srv, nil
}

// routes builds the mux. Upload bodies stream for as long as the client
// sends, so the server sets no read or write deadline; the toolchain timeout
// bounds processing instead.
func (s *apiServer) routes(token, workerSecret string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/videos", authMiddleware(token, withRequestID(s.handleUpload)))
	mux.HandleFunc("POST /api/jobs", authMiddleware(token, withRequestID(s.handleEnqueue)))
	mux.HandleFunc("GET /api/jobs", authMiddleware(token, s.handleJobs))
	mux.HandleFunc("GET /api/jobs/{id}", authMiddleware(token, s.handleJob))
	mux.HandleFunc("GET /api/status", authMiddleware(token, s.handleStatus))
	mux.HandleFunc("POST /api/worker/run", secretMiddleware(workerSecret, s.handleWorkerRun))
	if m := s.daemon.deps.Metrics; m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	return mux
}

func (s *apiServer) start() error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
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
		s.server = nil
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound address once the server is listening.
func (s *apiServer) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.daemon.deps.Uploads == nil {
		s.writeError(w, http.StatusServiceUnavailable, "inline uploads are disabled")
		return
	}
	form, err := readVideoForm(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	result, err := s.daemon.deps.Uploads.Handle(r.Context(), upload.Request{
		UserID:          strings.TrimSpace(r.Header.Get(userHeader)),
		ContestID:       form.contestID,
		TicketTimestamp: form.ticket,
		Description:     form.description,
		AutoSlice:       form.autoSlice,
		Source:          form.source,
		Quality:         form.quality,
		Filename:        form.filename,
		Body:            form.body,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if s.daemon.deps.Enqueuer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "queued uploads are disabled")
		return
	}
	form, err := readVideoForm(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	job, err := s.daemon.deps.Enqueuer.Enqueue(r.Context(), api.EnqueueRequest{
		UserID:          strings.TrimSpace(r.Header.Get(userHeader)),
		ContestID:       form.contestID,
		TicketTimestamp: form.ticket,
		Description:     form.description,
		AutoSlice:       form.autoSlice,
		Source:          form.source,
		Quality:         form.quality,
		Filename:        form.filename,
		Body:            form.body,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: *job})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := queue.ListFilter{UserID: strings.TrimSpace(query.Get("user_id"))}
	for _, value := range query["status"] {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", part))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	jobs, err := s.queueSvc.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if jobs == nil {
		jobs = []api.JobView{}
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: jobs})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.queueSvc.Describe(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: *job})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	withChecks := r.URL.Query().Get("checks") == "1" || strings.EqualFold(r.URL.Query().Get("checks"), "true")
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context(), withChecks))
}

func (s *apiServer) handleWorkerRun(w http.ResponseWriter, r *http.Request) {
	summary, err := s.daemon.RunWorker(r.Context(), TriggerHTTP)
	if err != nil && !worker.IsStateError(err) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// withRequestID stamps a request id on the context and echoes it in the
// X-Request-ID response header.
func withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	}
}

type videoForm struct {
	contestID   string
	ticket      *time.Time
	description string
	autoSlice   bool
	source      string
	quality     string
	filename    string
	body        io.Reader
}

// readVideoForm streams a multipart body. Scalar fields must precede the
// "video" part; the part itself is handed on unread so large payloads are
// never buffered in memory.
func readVideoForm(r *http.Request) (videoForm, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return videoForm{}, services.Invalid("api", "expected a multipart/form-data body")
	}
	form := videoForm{autoSlice: true}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return videoForm{}, services.Invalid("api", `missing "video" file part`)
		}
		if err != nil {
			return videoForm{}, services.Invalid("api", "malformed multipart body")
		}
		if part.FormName() == "video" {
			form.filename = part.FileName()
			form.body = part
			return form, nil
		}
		value, err := readFormValue(part)
		if err != nil {
			return videoForm{}, err
		}
		if err := form.set(part.FormName(), value); err != nil {
			return videoForm{}, err
		}
	}
}

func readFormValue(part *multipart.Part) (string, error) {
	defer part.Close()
	data, err := io.ReadAll(io.LimitReader(part, maxFormValue+1))
	if err != nil {
		return "", services.Invalid("api", "malformed multipart body")
	}
	if len(data) > maxFormValue {
		return "", services.Invalid("api", fmt.Sprintf("field %q is too long", part.FormName()))
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *videoForm) set(name, value string) error {
	switch name {
	case "contest_id":
		f.contestID = value
	case "description":
		f.description = value
	case "source":
		f.source = value
	case "quality_mode":
		f.quality = value
	case "auto_slice":
		if value == "" {
			return nil
		}
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return services.Invalid("api", "auto_slice must be true or false")
		}
		f.autoSlice = parsed
	case "ticket_timestamp":
		if value == "" {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return services.Invalid("api", "ticket_timestamp must be RFC3339")
		}
		f.ticket = &parsed
	}
	return nil
}

// writeServiceError maps the error taxonomy onto HTTP: file problems are 422,
// service problems 503. A request whose client went away gets no body.
func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		return
	}
	requestID, _ := services.RequestIDFromContext(r.Context())
	status := http.StatusServiceUnavailable
	switch services.Classify(err) {
	case services.KindValidation:
		status = http.StatusUnprocessableEntity
	case services.KindNotFound:
		status = http.StatusNotFound
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	s.writeJSON(w, status, api.ErrorResponse{
		Error:     services.UserMessage(err),
		Kind:      string(services.Classify(err)),
		Category:  api.Category(err),
		RequestID: requestID,
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

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}

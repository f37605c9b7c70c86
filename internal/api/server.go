// Package api exposes channel rendering as a small HTTP job service: submit
// a channel run, poll its status, fetch the per-frame results.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dropstage/dropstage/pkg/channel"
	"github.com/dropstage/dropstage/pkg/generator"
	"github.com/dropstage/dropstage/pkg/render"
)

// JobStatus is the lifecycle state of a submitted job.
type JobStatus string

// Job states.
const (
	StatusPending JobStatus = "pending"
	StatusRunning JobStatus = "running"
	StatusDone    JobStatus = "done"
	StatusFailed  JobStatus = "failed"
)

// Job is one submitted channel run.
type Job struct {
	ID        string                `json:"id"`
	Status    JobStatus             `json:"status"`
	Submitted time.Time             `json:"submitted"`
	Started   time.Time             `json:"started,omitzero"`
	Finished  time.Time             `json:"finished,omitzero"`
	Error     string                `json:"error,omitempty"`
	Frames    []channel.FrameResult `json:"frames,omitempty"`

	opts channel.Options
}

// Server runs channel jobs submitted over HTTP. Jobs execute one at a time
// on a background goroutine; the store keeps finished jobs for polling.
type Server struct {
	Runner  *channel.Runner
	Backend render.Backend

	// Pool serves jobs whose channel does not name its own asset pool.
	Pool generator.Pool

	Logger *log.Logger

	mu   sync.Mutex
	jobs map[string]*Job
	work chan *Job
	once sync.Once
}

// NewServer creates a job server around a channel runner.
func NewServer(runner *channel.Runner, backend render.Backend, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		Runner:  runner,
		Backend: backend,
		Logger:  logger,
		jobs:    make(map[string]*Job),
		work:    make(chan *Job, 64),
	}
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.Healthz)
	r.Post("/jobs", s.SubmitJob)
	r.Get("/jobs", s.ListJobs)
	r.Get("/jobs/{id}", s.GetJob)
	return r
}

// Start launches the background worker. The worker exits when ctx is
// cancelled; queued jobs stay pending.
func (s *Server) Start(ctx context.Context) {
	s.once.Do(func() {
		go s.worker(ctx)
	})
}

// Healthz handles the GET /healthz request.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SubmitJob handles the POST /jobs request. The body is a channel.Options
// JSON document carrying either an inline channel or a channel path.
func (s *Server) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var opts channel.Options
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := &Job{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		Submitted: time.Now(),
		opts:      opts,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	select {
	case s.work <- job:
	default:
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		http.Error(w, "job queue is full", http.StatusServiceUnavailable)
		return
	}

	s.Logger.Info("job submitted", "job", job.ID)
	writeJSON(w, http.StatusAccepted, job.view())
}

// GetJob handles the GET /jobs/{id} request.
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	job, ok := s.jobs[id]
	var view Job
	if ok {
		view = job.view()
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListJobs handles the GET /jobs request.
func (s *Server) ListJobs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	views := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		views = append(views, job.view())
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.work:
			s.runJob(ctx, job)
		}
	}
}

func (s *Server) runJob(ctx context.Context, job *Job) {
	s.mu.Lock()
	job.Status = StatusRunning
	job.Started = time.Now()
	opts := job.opts
	s.mu.Unlock()

	if opts.Backend == nil {
		opts.Backend = s.Backend
	}
	if opts.Pool == nil {
		opts.Pool = s.Pool
	}
	opts.Logger = s.Logger
	result, err := s.Runner.Execute(ctx, opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	job.Finished = time.Now()
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		s.Logger.Error("job failed", "job", job.ID, "err", err)
		return
	}
	job.Status = StatusDone
	job.Frames = result.Frames
	s.Logger.Info("job complete", "job", job.ID, "frames", len(result.Frames))
}

// view copies the job for serialization; callers must hold the store lock.
func (j *Job) view() Job {
	view := *j
	view.opts = channel.Options{}
	return view
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Default().Error("encode response", "err", err)
	}
}

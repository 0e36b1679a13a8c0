package orchestrator

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/local/cbzbinder/internal/discovery"
    "github.com/local/cbzbinder/internal/merge"
    "github.com/local/cbzbinder/internal/metrics"
    "github.com/local/cbzbinder/internal/queue"
    "github.com/local/cbzbinder/internal/statuscheck"
    "github.com/local/cbzbinder/internal/store"
)

type Queue interface {
    EnqueueMerge(ctx context.Context, job queue.Job) error
    CancelJob(ctx context.Context, jobID string) error
}

type StatusStore interface {
    Set(ctx context.Context, jobID string, st store.Status) error
    Get(ctx context.Context, jobID string) (store.Status, bool, error)
}

type LayoutStore interface {
    GetLayout(ctx context.Context, jobID string) (store.Layout, bool, error)
}

type Dependencies struct {
    Queue   Queue
    Status  StatusStore
    Layouts LayoutStore
    Checker *statuscheck.Checker
}

type Orchestrator struct {
    deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
    return &Orchestrator{deps: deps}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request){ w.WriteHeader(http.StatusOK); _,_ = w.Write([]byte("ok")) })
    mux.HandleFunc("/status", o.handleStatus)
    mux.Handle("/metrics", metrics.Handler())
    mux.HandleFunc("/merge", o.handleMerge)
    mux.HandleFunc("/progress/", o.handleProgress)
    mux.HandleFunc("/layout/", o.handleLayout)
    mux.HandleFunc("/download/", o.handleDownload)
    mux.HandleFunc("/cancel", o.handleCancelJob)
}

type mergeReq struct {
    Sources        []string        `json:"sources"`
    OutputName     string          `json:"output_name"`
    Formats        []string        `json:"formats"`
    Overrides      queue.Overrides `json:"overrides"`
    IdempotencyKey string          `json:"idempotency_key"`
}

type processResp struct {
    Status   string         `json:"status"`
    JobID    string         `json:"job_id"`
    Message  string         `json:"message"`
    Metadata map[string]any `json:"metadata,omitempty"`
}

func (o *Orchestrator) handleMerge(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed); return
    }
    defer r.Body.Close()
    var req mergeReq
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(w, "invalid json", http.StatusBadRequest); return
    }
    if msg := validate(req); msg != "" {
        http.Error(w, msg, http.StatusBadRequest); return
    }

    jobID := uuid.NewString()
    idem := req.IdempotencyKey
    if idem == "" { idem = "merge:" + jobID }
    job := queue.Job{
        JobID:          jobID,
        Sources:        req.Sources,
        OutputName:     req.OutputName,
        Formats:        req.Formats,
        Overrides:      req.Overrides,
        IdempotencyKey: idem,
        Attempt:        1,
        Source:         "api",
    }
    start := time.Now()
    _ = o.deps.Status.Set(r.Context(), jobID, store.Status{Status: store.StateQueued, Progress: 0, Message: "queued", Start: &start,
        Metadata: map[string]any{"sources": len(req.Sources), "output_name": req.OutputName, "formats": req.Formats}})
    if err := o.deps.Queue.EnqueueMerge(r.Context(), job); err != nil {
        log.Error().Err(err).Str("job_id", jobID).Msg("enqueue failed")
        end := time.Now()
        _ = o.deps.Status.Set(r.Context(), jobID, store.Status{Status: store.StateFailed, Message: "queue unavailable", End: &end})
        http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
        return
    }
    log.Info().Str("job_id", jobID).Int("sources", len(req.Sources)).Msg("merge job created")

    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(http.StatusCreated)
    _ = json.NewEncoder(w).Encode(processResp{
        Status:   "ok",
        JobID:    jobID,
        Message:  "Merge job created successfully",
        Metadata: map[string]any{"timestamp": start.Format(time.RFC3339)},
    })
}

// validate returns a message describing what is wrong with req, or "".
func validate(req mergeReq) string {
    if len(req.Sources) == 0 { return "missing sources" }
    numbered := 0
    for _, s := range req.Sources {
        if _, ok := discovery.ParseNumber(s); ok { numbered++ }
    }
    if numbered == 0 { return "no source carries an [N] number" }
    if len(req.Formats) > 0 {
        if err := merge.ValidateFormats(req.Formats); err != nil { return err.Error() }
    }
    if n := req.OutputName; n != "" && (strings.ContainsAny(n, `/\`) || n == "." || n == "..") {
        return "output_name must be a plain file name"
    }
    seen := map[uint32]bool{}
    for _, id := range req.Overrides.Spread { seen[id] = true }
    for _, id := range req.Overrides.Single {
        if seen[id] { return fmt.Sprintf("page %d is forced to both spread and single", id) }
    }
    return ""
}

func (o *Orchestrator) handleProgress(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/progress/")
    st, ok, err := o.deps.Status.Get(r.Context(), id)
    if err != nil { http.Error(w, "error", 500); return }
    if !ok {
        http.Error(w, "not found", http.StatusNotFound); return
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(map[string]any{
        "success":    st.Status == store.StateSuccess,
        "job_id":     id,
        "status":     st.Status,
        "progress":   st.Progress,
        "message":    st.Message,
        "start_time": st.Start,
        "end_time":   st.End,
        "metadata":   st.Metadata,
    })
}

func (o *Orchestrator) handleLayout(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/layout/")
    if o.deps.Layouts == nil { http.Error(w, "not found", http.StatusNotFound); return }
    l, ok, err := o.deps.Layouts.GetLayout(r.Context(), id)
    if err != nil { http.Error(w, "error", 500); return }
    if !ok { http.Error(w, "not found", http.StatusNotFound); return }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(l)
}

// handleDownload streams a finished result kept in the local result dir.
func (o *Orchestrator) handleDownload(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/download/")
    format := r.URL.Query().Get("format")
    if format == "" { format = merge.FormatCBZ }
    if format != merge.FormatCBZ && format != merge.FormatPDF {
        http.Error(w, "format must be cbz or pdf", http.StatusBadRequest); return
    }
    st, ok, err := o.deps.Status.Get(r.Context(), id)
    if err != nil || !ok { http.Error(w, "not found", http.StatusNotFound); return }
    if st.Status != store.StateSuccess { http.Error(w, "not ready", http.StatusAccepted); return }
    p, _ := st.Metadata[format+"_path"].(string)
    if p == "" { http.Error(w, "result not available", http.StatusNotFound); return }
    f, err := os.Open(p)
    if err != nil { http.Error(w, "result not available", http.StatusNotFound); return }
    defer f.Close()
    fi, err := f.Stat()
    if err != nil { http.Error(w, "failed to read", 500); return }

    ctype := "application/vnd.comicbook+zip"
    if format == merge.FormatPDF { ctype = "application/pdf" }
    w.Header().Set("Content-Type", ctype)
    w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(p)))
    http.ServeContent(w, r, filepath.Base(p), fi.ModTime(), f)
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
    if o.deps.Checker == nil { http.Error(w, "status checks disabled", http.StatusNotFound); return }
    sum := o.deps.Checker.Summary(r.Context())
    w.Header().Set("Content-Type", "application/json")
    if !sum.OK() { w.WriteHeader(http.StatusServiceUnavailable) }
    _ = json.NewEncoder(w).Encode(sum)
}

type cancelReq struct {
    JobID  string `json:"job_id"`
    Reason string `json:"reason,omitempty"`
}

func (o *Orchestrator) handleCancelJob(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req cancelReq
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil { http.Error(w, "invalid json", 400); return }
    if req.JobID == "" { http.Error(w, "missing job_id", 400); return }
    st, ok, _ := o.deps.Status.Get(r.Context(), req.JobID)
    if ok && st.Terminal() {
        http.Error(w, fmt.Sprintf("job already %s", st.Status), http.StatusConflict); return
    }
    // mark cancelled in queue store
    if err := o.deps.Queue.CancelJob(r.Context(), req.JobID); err != nil {
        http.Error(w, "cancel failed", 500); return
    }
    if !ok { st = store.Status{} }
    st.Status = store.StateCancelled
    st.Progress = 0
    if req.Reason != "" { st.Message = fmt.Sprintf("Cancelled: %s", req.Reason) } else { st.Message = "Cancelled" }
    now := time.Now(); st.End = &now
    _ = o.deps.Status.Set(r.Context(), req.JobID, st)
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(map[string]any{"success": true, "job_id": req.JobID, "status": store.StateCancelled})
}

package dispatcher

import (
    "context"
    "errors"
    "fmt"
    "math"
    "math/rand/v2"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "time"

    "github.com/rs/zerolog/log"

    cfgpkg "github.com/local/cbzbinder/internal/config"
    "github.com/local/cbzbinder/internal/discovery"
    "github.com/local/cbzbinder/internal/imposition"
    "github.com/local/cbzbinder/internal/merge"
    "github.com/local/cbzbinder/internal/metrics"
    "github.com/local/cbzbinder/internal/pdfout"
    "github.com/local/cbzbinder/internal/queue"
    "github.com/local/cbzbinder/internal/store"
)

type Queue interface {
    Dequeue(ctx context.Context, consumer string, timeout time.Duration) (queue.Delivery, bool, error)
    Ack(ctx context.Context, msgID string) error
    IsCancelled(ctx context.Context, jobID string) (bool, error)
    IsIdemDone(ctx context.Context, key string) (bool, error)
    MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error
    Retry(ctx context.Context, job queue.Job, at time.Time) (queue.Job, error)
    AddDLQ(ctx context.Context, job queue.Job, class string, cause error) error
}

type StatusStore interface {
    Set(ctx context.Context, jobID string, st store.Status) error
    Get(ctx context.Context, jobID string) (store.Status, bool, error)
}

type LayoutStore interface {
    SaveLayout(ctx context.Context, jobID string, l store.Layout) error
}

// Merger runs one merge.
type Merger interface {
    Run(ctx context.Context, opts merge.Options) (*merge.Result, error)
}

// Uploader stores finished results remotely.
type Uploader interface {
    UploadFile(ctx context.Context, key, localPath, contentType string) (string, error)
}

type Config struct {
    Concurrency   int
    JobTimeout    time.Duration
    MaxAttempts   int
    RetryBase     time.Duration
    RetryJitter   time.Duration
    BackoffFactor float64
    ResultDir     string
    ResultPrefix  string
    ResultMaxAge  time.Duration
    CancelPoll    time.Duration
    Merge         cfgpkg.MergeConfig
}

// ConfigFrom maps the service configuration onto the worker.
func ConfigFrom(c cfgpkg.Config) Config {
    return Config{
        Concurrency:   c.Worker.Concurrency,
        JobTimeout:    c.Worker.JobTimeout.D(),
        MaxAttempts:   c.Worker.JobMaxAttempts,
        RetryBase:     c.Worker.RetryBaseDelay.D(),
        RetryJitter:   c.Worker.RetryJitter.D(),
        BackoffFactor: c.Worker.RetryBackoffFactor,
        ResultDir:     c.Storage.LocalDir,
        ResultPrefix:  c.Storage.ResultPrefix,
        Merge:         c.Merge,
    }
}

type Dependencies struct {
    Queue    Queue
    Status   StatusStore
    Layouts  LayoutStore
    Merger   Merger
    Uploader Uploader // nil keeps results local only
}

type Worker struct {
    cfg    Config
    deps   Dependencies
    stop   chan struct{}
    wg     sync.WaitGroup
    name   string
}

func New(cfg Config, deps Dependencies) *Worker {
    if cfg.Concurrency <= 0 { cfg.Concurrency = 2 }
    if cfg.JobTimeout <= 0 { cfg.JobTimeout = 15 * time.Minute }
    if cfg.MaxAttempts <= 0 { cfg.MaxAttempts = 3 }
    if cfg.RetryBase <= 0 { cfg.RetryBase = 2 * time.Second }
    if cfg.BackoffFactor < 1 { cfg.BackoffFactor = 2 }
    if cfg.ResultDir == "" { cfg.ResultDir = filepath.Join("data", "results") }
    if cfg.ResultMaxAge <= 0 { cfg.ResultMaxAge = 7 * 24 * time.Hour }
    if cfg.CancelPoll <= 0 { cfg.CancelPoll = time.Second }
    host, _ := os.Hostname()
    if host == "" { host = "worker" }
    return &Worker{cfg: cfg, deps: deps, stop: make(chan struct{}), name: host}
}

func (w *Worker) Start() {
    for i := 0; i < w.cfg.Concurrency; i++ {
        w.wg.Add(1)
        go w.loop(i)
    }
}

// Stop ends the dequeue loops and waits for running jobs until ctx expires.
func (w *Worker) Stop(ctx context.Context) error {
    close(w.stop)
    done := make(chan struct{})
    go func() { w.wg.Wait(); close(done) }()
    select {
    case <-done:
        return nil
    case <-ctx.Done():
        return ctx.Err()
    }
}

func (w *Worker) loop(id int) {
    defer w.wg.Done()
    consumer := fmt.Sprintf("%s-%d", w.name, id)
    log.Info().Int("worker", id).Str("consumer", consumer).Msg("dispatcher worker started")
    for {
        select {
        case <-w.stop:
            log.Info().Int("worker", id).Msg("dispatcher worker stopped")
            return
        default:
        }

        d, ok, err := w.deps.Queue.Dequeue(context.Background(), consumer, 2*time.Second)
        if err != nil {
            log.Error().Err(err).Msg("queue dequeue error")
            time.Sleep(500 * time.Millisecond)
            continue
        }
        if !ok { continue }
        w.Process(context.Background(), d)
    }
}

// Process handles one delivery and always acks it: the job either reached a
// terminal state or was rescheduled for another attempt.
func (w *Worker) Process(ctx context.Context, d queue.Delivery) {
    defer func() {
        if err := w.deps.Queue.Ack(ctx, d.MsgID); err != nil {
            log.Error().Err(err).Str("msg_id", d.MsgID).Msg("ack failed")
        }
    }()

    job := d.Job
    jlog := log.With().Str("job_id", job.JobID).Int("attempt", job.Attempt).Logger()

    if cancelled, _ := w.deps.Queue.IsCancelled(ctx, job.JobID); cancelled {
        jlog.Warn().Msg("job cancelled before processing; skipping")
        w.markCancelled(ctx, job.JobID)
        return
    }
    if done, _ := w.deps.Queue.IsIdemDone(ctx, job.IdempotencyKey); done {
        jlog.Info().Str("idempotency_key", job.IdempotencyKey).Msg("job already done; skipping")
        w.markDuplicate(ctx, job)
        return
    }

    start := time.Now()
    w.update(ctx, job.JobID, func(st *store.Status) {
        st.Status = store.StateProcessing
        st.Progress = 0
        st.Message = "merging"
        st.Metadata["attempt"] = job.Attempt
        if st.Start == nil { st.Start = &start }
    })

    jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
    defer cancel()
    stopWatch := w.watchCancel(jobCtx, cancel, job.JobID)
    defer stopWatch()

    opts, err := w.options(job)
    var res *merge.Result
    if err == nil {
        opts.Progress = &statusProgress{ctx: ctx, w: w, jobID: job.JobID}
        res, err = w.deps.Merger.Run(jobCtx, opts)
    }
    if err != nil {
        if errors.Is(err, context.Canceled) && ctx.Err() == nil {
            jlog.Warn().Msg("job cancelled while running")
            w.markCancelled(ctx, job.JobID)
            os.RemoveAll(w.jobDir(job.JobID))
            return
        }
        w.fail(ctx, job, err)
        return
    }

    meta, err := w.publish(ctx, job, res)
    if err != nil {
        w.fail(ctx, job, err)
        return
    }
    if w.deps.Layouts != nil {
        if err := w.deps.Layouts.SaveLayout(ctx, job.JobID, layoutOf(res)); err != nil {
            jlog.Warn().Err(err).Msg("failed to save layout")
        }
    }
    _ = w.deps.Queue.MarkIdemDone(ctx, job.IdempotencyKey, 24*time.Hour)

    end := time.Now()
    w.update(ctx, job.JobID, func(st *store.Status) {
        st.Status = store.StateSuccess
        st.Progress = 100
        st.Message = "completed"
        st.End = &end
        for k, v := range meta { st.Metadata[k] = v }
    })
    jlog.Info().Dur("duration", time.Since(start)).Int("sheets", res.Stats.Sheets).Msg("job completed")

    CleanupResults(w.cfg.ResultDir, w.cfg.ResultMaxAge)
    CleanupTemps(max(time.Hour, 2*w.cfg.JobTimeout))
}

// options turns a queued job into merge options.
func (w *Worker) options(job queue.Job) (merge.Options, error) {
    if len(job.Sources) == 0 {
        return merge.Options{}, invalid("job has no sources")
    }
    found := discovery.FromFiles(job.Sources)
    if len(found.Sources) == 0 {
        return merge.Options{}, invalid("no source carries an [N] number")
    }

    formats := job.Formats
    if len(formats) == 0 { formats = w.cfg.Merge.Formats }
    if err := merge.ValidateFormats(formats); err != nil {
        return merge.Options{}, invalid("%v", err)
    }

    name, err := outputName(job.OutputName, w.cfg.Merge.Output)
    if err != nil {
        return merge.Options{}, err
    }

    ov := imposition.Overrides{}
    ov.Set(imposition.OverrideSpread, job.Overrides.Spread...)
    for _, id := range job.Overrides.Single {
        if ov[id] == imposition.OverrideSpread {
            return merge.Options{}, invalid("page %d is forced to both spread and single", id)
        }
    }
    ov.Set(imposition.OverrideSingle, job.Overrides.Single...)

    return merge.Options{
        Sources:     found.Sources,
        Output:      filepath.Join(w.jobDir(job.JobID), name),
        Formats:     formats,
        Overrides:   ov,
        HalfQuality: w.cfg.Merge.HalfQuality,
        ScanWorkers: w.cfg.Merge.ScanWorkers,
        Render: pdfout.Options{
            PaperSize: w.cfg.Merge.PaperSize,
            DPI:       w.cfg.Merge.DPI,
            Quality:   w.cfg.Merge.SheetQuality,
            GuideLine: w.cfg.Merge.GuideLine,
        },
    }, nil
}

func outputName(name, fallback string) (string, error) {
    if name == "" { name = filepath.Base(fallback) }
    if name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
        return "", invalid("output_name %q must be a plain file name", name)
    }
    if filepath.Ext(name) == "" { name += ".cbz" }
    return name, nil
}

func (w *Worker) jobDir(jobID string) string { return filepath.Join(w.cfg.ResultDir, jobID) }

// publish records where the results live, uploading them when storage is set.
func (w *Worker) publish(ctx context.Context, job queue.Job, res *merge.Result) (map[string]any, error) {
    meta := map[string]any{
        "pages":   res.Stats.Pages,
        "spreads": res.Stats.Spreads,
        "gaps":    res.Stats.Gaps,
        "pads":    res.Stats.Pads,
        "sheets":  res.Stats.Sheets,
    }
    for _, out := range []struct{ kind, path, mime string }{
        {merge.FormatCBZ, res.CBZPath, "application/vnd.comicbook+zip"},
        {merge.FormatPDF, res.PDFPath, "application/pdf"},
    } {
        if out.path == "" { continue }
        meta[out.kind+"_path"] = out.path
        if w.deps.Uploader == nil { continue }
        key := w.cfg.ResultPrefix + job.JobID + "/" + filepath.Base(out.path)
        ref, err := w.deps.Uploader.UploadFile(ctx, key, out.path, out.mime)
        if err != nil {
            return nil, fmt.Errorf("upload %s: %w", out.kind, err)
        }
        meta[out.kind+"_s3"] = ref
    }
    return meta, nil
}

func layoutOf(res *merge.Result) store.Layout {
    return store.Layout{
        Reading: res.Reading.String(),
        Print:   res.Print.String(),
        Stats: map[string]int{
            "pages":   res.Stats.Pages,
            "singles": res.Stats.Singles,
            "spreads": res.Stats.Spreads,
            "gaps":    res.Stats.Gaps,
            "pads":    res.Stats.Pads,
            "sheets":  res.Stats.Sheets,
        },
    }
}

// fail retries the job with backoff or sends it to the DLQ.
func (w *Worker) fail(ctx context.Context, job queue.Job, cause error) {
    class := classify(cause)
    jlog := log.With().Str("job_id", job.JobID).Int("attempt", job.Attempt).Str("class", class).Logger()
    os.RemoveAll(w.jobDir(job.JobID))

    if class != classFatal && job.Attempt < w.cfg.MaxAttempts {
        delay := w.backoff(job.Attempt)
        next, err := w.deps.Queue.Retry(ctx, job, time.Now().Add(delay))
        if err == nil {
            metrics.IncRetry()
            jlog.Warn().Err(cause).Dur("delay", delay).Msg("merge failed; retry scheduled")
            w.update(ctx, job.JobID, func(st *store.Status) {
                st.Status = store.StateRetrying
                st.Message = fmt.Sprintf("attempt %d failed: %v", job.Attempt, cause)
                st.Metadata["attempt"] = next.Attempt
            })
            return
        }
        jlog.Error().Err(err).Msg("failed to schedule retry")
    }

    if err := w.deps.Queue.AddDLQ(ctx, job, class, cause); err != nil {
        jlog.Error().Err(err).Msg("failed to dead-letter job")
    }
    metrics.ObserveMerge("dlq", 0)
    jlog.Error().Err(cause).Msg("merge failed; moved to DLQ")
    msg := cause.Error()
    if isTimeoutError(cause) { msg = fmt.Sprintf("timed out after %s", w.cfg.JobTimeout) }
    end := time.Now()
    w.update(ctx, job.JobID, func(st *store.Status) {
        st.Status = store.StateFailed
        st.Message = msg
        st.End = &end
        st.Metadata["error_class"] = class
    })
}

func (w *Worker) backoff(attempt int) time.Duration {
    d := time.Duration(float64(w.cfg.RetryBase) * math.Pow(w.cfg.BackoffFactor, float64(attempt-1)))
    if w.cfg.RetryJitter > 0 {
        d += time.Duration(rand.Int64N(int64(w.cfg.RetryJitter)))
    }
    return d
}

// watchCancel cancels a running job once it is marked cancelled.
func (w *Worker) watchCancel(ctx context.Context, cancel context.CancelFunc, jobID string) func() {
    done := make(chan struct{})
    go func() {
        t := time.NewTicker(w.cfg.CancelPoll)
        defer t.Stop()
        for {
            select {
            case <-done:
                return
            case <-ctx.Done():
                return
            case <-t.C:
                if c, _ := w.deps.Queue.IsCancelled(ctx, jobID); c {
                    cancel()
                    return
                }
            }
        }
    }()
    return func() { close(done) }
}

// markDuplicate closes a job whose idempotency key an earlier job already
// completed. Its results live under that earlier job.
func (w *Worker) markDuplicate(ctx context.Context, job queue.Job) {
    if st, ok, _ := w.deps.Status.Get(ctx, job.JobID); ok && st.Status == store.StateSuccess { return }
    end := time.Now()
    w.update(ctx, job.JobID, func(st *store.Status) {
        st.Status = store.StateSuccess
        st.Progress = 100
        st.Message = "already done"
        st.End = &end
        st.Metadata["duplicate_of_key"] = job.IdempotencyKey
    })
}

func (w *Worker) markCancelled(ctx context.Context, jobID string) {
    end := time.Now()
    w.update(ctx, jobID, func(st *store.Status) {
        st.Status = store.StateCancelled
        if st.Message == "" || !strings.HasPrefix(st.Message, "Cancelled") { st.Message = "Cancelled" }
        st.End = &end
    })
}

// update applies fn to the stored status.
func (w *Worker) update(ctx context.Context, jobID string, fn func(*store.Status)) {
    st, _, err := w.deps.Status.Get(ctx, jobID)
    if err != nil {
        log.Warn().Err(err).Str("job_id", jobID).Msg("status read failed")
    }
    if st.Metadata == nil { st.Metadata = map[string]any{} }
    fn(&st)
    if err := w.deps.Status.Set(ctx, jobID, st); err != nil {
        log.Warn().Err(err).Str("job_id", jobID).Msg("status write failed")
    }
}

// statusProgress maps merge stages onto the job's progress percentage.
type statusProgress struct {
    ctx   context.Context
    w     *Worker
    jobID string
    stage string
    total int
    done  int
    last  int
}

var stageSpan = map[string][2]int{
    "scan":    {0, 30},
    "archive": {30, 60},
    "booklet": {60, 95},
}

func (p *statusProgress) Begin(stage string, total int) {
    p.stage, p.total, p.done = stage, total, 0
    p.report()
}

func (p *statusProgress) Advance() {
    p.done++
    p.report()
}

func (p *statusProgress) End() {}

func (p *statusProgress) report() {
    span, ok := stageSpan[p.stage]
    if !ok { return }
    pct := span[0]
    if p.total > 0 { pct += (span[1] - span[0]) * p.done / p.total }
    if pct == p.last && p.done > 0 { return }
    p.last = pct
    p.w.update(p.ctx, p.jobID, func(st *store.Status) {
        st.Progress = pct
        st.Message = p.stage
    })
}

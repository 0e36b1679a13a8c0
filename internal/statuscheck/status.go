package statuscheck

import (
    "context"
    "errors"
    "os"
    "path/filepath"
    "time"
)

// Pinger models the minimal capability we need from Redis and S3.
type Pinger interface {
    Ping(ctx context.Context) error
}

// Checker aggregates health checks for external dependencies of the service.
type Checker struct {
    redis     Pinger
    s3        Pinger
    resultDir string
}

// Options configures the Checker.
type Options struct {
    Redis     Pinger
    S3        Pinger // nil when results stay local
    ResultDir string
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK       bool   `json:"ok"`
    Message  string `json:"message"`
    Optional bool   `json:"optional,omitempty"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Redis   Status `json:"redis"`
    S3      Status `json:"s3"`
    Results Status `json:"results"`
}

// OK reports whether every required subsystem is ready.
func (s Summary) OK() bool {
    for _, st := range []Status{s.Redis, s.S3, s.Results} {
        if !st.OK && !st.Optional { return false }
    }
    return true
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
    return &Checker{redis: opts.Redis, s3: opts.S3, resultDir: opts.ResultDir}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    return Summary{
        Redis:   c.checkRedis(ctx),
        S3:      c.checkS3(ctx),
        Results: c.checkResultDir(),
    }
}

func (c *Checker) checkRedis(ctx context.Context) Status {
    if c.redis == nil {
        return Status{OK: false, Message: "client unavailable"}
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := c.redis.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
    if c.s3 == nil {
        return Status{OK: false, Optional: true, Message: "Bucket not configured"}
    }
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := c.s3.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

// checkResultDir makes sure merged results can be written.
func (c *Checker) checkResultDir() Status {
    if c.resultDir == "" {
        return Status{OK: false, Message: "Result dir not configured"}
    }
    if err := os.MkdirAll(c.resultDir, 0o755); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    f, err := os.CreateTemp(c.resultDir, ".probe-*")
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    name := f.Name()
    f.Close()
    os.Remove(name)
    return Status{OK: true, Message: "Writable: " + filepath.Clean(c.resultDir)}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}

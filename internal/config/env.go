package config

import (
    "errors"
    "fmt"
    "io/fs"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
    toml "github.com/pelletier/go-toml/v2"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level      string `toml:"level"`
    Pretty     bool   `toml:"pretty"`
    File       string `toml:"file"`
    MaxSizeMB  int    `toml:"max_size_mb"`
    MaxBackups int    `toml:"max_backups"`
    MaxAgeDays int    `toml:"max_age_days"`
    Compress   bool   `toml:"compress"`
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool     `toml:"send"`
    APIKey        string   `toml:"api_key"`
    OrgID         string   `toml:"org_id"`
    Dataset       string   `toml:"dataset"`
    FlushInterval Duration `toml:"flush_interval"`
}

// MergeConfig controls what a merge run produces.
type MergeConfig struct {
    Output       string   `toml:"output"`
    Formats      []string `toml:"formats"`
    PaperSize    string   `toml:"paper_size"`
    DPI          int      `toml:"dpi"`
    HalfQuality  int      `toml:"half_quality"`  // JPEG quality for split spread halves
    SheetQuality int      `toml:"sheet_quality"` // JPEG quality for composed print sheets
    GuideLine    bool     `toml:"guide_line"`
    ScanWorkers  int      `toml:"scan_workers"`
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
    Concurrency        int      `toml:"concurrency"`
    JobTimeout         Duration `toml:"job_timeout"`
    JobMaxAttempts     int      `toml:"job_max_attempts"`
    RetryBaseDelay     Duration `toml:"retry_base_delay"`
    RetryJitter        Duration `toml:"retry_jitter"`
    RetryBackoffFactor float64  `toml:"retry_backoff_factor"`
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
    RedisURL     string   `toml:"redis_url"`
    Stream       string   `toml:"stream"`
    Group        string   `toml:"group"`
    PollInterval Duration `toml:"poll_interval"`
}

// StorageConfig defines where sources are fetched from and results go.
type StorageConfig struct {
    Bucket             string `toml:"bucket"`
    Region             string `toml:"region"`
    Endpoint           string `toml:"endpoint"`
    AccessKey          string `toml:"access_key"`
    SecretKey          string `toml:"secret_key"`
    EncryptionPassword string `toml:"encryption_password"`
    ResultPrefix       string `toml:"result_prefix"`
    LocalDir           string `toml:"local_dir"`
}

// HTTPConfig configures the service listener.
type HTTPConfig struct {
    Port          string `toml:"port"`
    RunDispatcher bool   `toml:"run_dispatcher"`
}

// Config is the top-level configuration.
type Config struct {
    Logging LoggingConfig `toml:"logging"`
    Axiom   AxiomConfig   `toml:"axiom"`
    Merge   MergeConfig   `toml:"merge"`
    Worker  WorkerConfig  `toml:"worker"`
    Queue   QueueConfig   `toml:"queue"`
    Storage StorageConfig `toml:"storage"`
    HTTP    HTTPConfig    `toml:"http"`
}

// Default returns the built-in configuration.
func Default() Config {
    return Config{
        Logging: LoggingConfig{
            Level:      "info",
            Pretty:     parseBool(devDefaultPretty()),
            MaxSizeMB:  100,
            MaxBackups: 10,
            MaxAgeDays: 30,
            Compress:   true,
        },
        Axiom: AxiomConfig{
            Dataset:       "dev_cbzbinder",
            FlushInterval: Duration(10 * time.Second),
        },
        Merge: MergeConfig{
            Output:       "combined_output.cbz",
            Formats:      []string{"cbz", "pdf"},
            PaperSize:    "A4",
            DPI:          150,
            HalfQuality:  100,
            SheetQuality: 90,
            GuideLine:    true,
            ScanWorkers:  4,
        },
        Worker: WorkerConfig{
            Concurrency:        2,
            JobTimeout:         Duration(15 * time.Minute),
            JobMaxAttempts:     3,
            RetryBaseDelay:     Duration(2 * time.Second),
            RetryJitter:        Duration(200 * time.Millisecond),
            RetryBackoffFactor: 2.0,
        },
        Queue: QueueConfig{
            RedisURL:     "redis://localhost:6379",
            Stream:       "jobs:merge",
            Group:        "workers:merge",
            PollInterval: Duration(100 * time.Millisecond),
        },
        Storage: StorageConfig{
            Region:       "us-east-1",
            ResultPrefix: "results/",
            LocalDir:     "data/results",
        },
        HTTP: HTTPConfig{
            Port:          "8080",
            RunDispatcher: true,
        },
    }
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Default()
    applyEnv(&cfg)
    return cfg
}

// Load reads .env (if present), then the optional TOML file at path, then
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
    if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
        return Config{}, fmt.Errorf("load .env: %w", err)
    }
    cfg := Default()
    if path != "" {
        data, err := os.ReadFile(path)
        if err != nil { return Config{}, fmt.Errorf("read config: %w", err) }
        if err := toml.Unmarshal(data, &cfg); err != nil {
            return Config{}, fmt.Errorf("parse config %s: %w", path, err)
        }
    }
    applyEnv(&cfg)
    return cfg, nil
}

func applyEnv(cfg *Config) {
    l := &cfg.Logging
    l.Level = getEnv("LOG_LEVEL", l.Level)
    l.Pretty = envBool("LOG_PRETTY", l.Pretty)
    l.File = getEnv("LOG_FILE", l.File)
    l.MaxSizeMB = parseInt(os.Getenv("LOG_MAX_SIZE_MB"), l.MaxSizeMB)
    l.MaxBackups = parseInt(os.Getenv("LOG_MAX_BACKUPS"), l.MaxBackups)
    l.MaxAgeDays = parseInt(os.Getenv("LOG_MAX_AGE_DAYS"), l.MaxAgeDays)
    l.Compress = envBool("LOG_COMPRESS", l.Compress)

    a := &cfg.Axiom
    a.Send = envBool("SEND_LOGS_TO_AXIOM", a.Send)
    a.APIKey = getEnv("AXIOM_API_KEY", a.APIKey)
    a.OrgID = getEnv("AXIOM_ORG_ID", a.OrgID)
    if base := os.Getenv("AXIOM_DATASET"); base != "" { a.Dataset = base + "_cbzbinder" }
    a.FlushInterval = envDuration("AXIOM_FLUSH_INTERVAL", a.FlushInterval)

    m := &cfg.Merge
    m.Output = getEnv("MERGE_OUTPUT", m.Output)
    if v := os.Getenv("MERGE_FORMATS"); v != "" { m.Formats = splitList(v) }
    m.PaperSize = getEnv("MERGE_PAPER_SIZE", m.PaperSize)
    m.DPI = parseInt(os.Getenv("MERGE_DPI"), m.DPI)
    m.HalfQuality = parseInt(os.Getenv("MERGE_HALF_QUALITY"), m.HalfQuality)
    m.SheetQuality = parseInt(os.Getenv("MERGE_SHEET_QUALITY"), m.SheetQuality)
    m.GuideLine = envBool("MERGE_GUIDE_LINE", m.GuideLine)
    m.ScanWorkers = parseInt(os.Getenv("MERGE_SCAN_WORKERS"), m.ScanWorkers)

    w := &cfg.Worker
    w.Concurrency = parseInt(os.Getenv("WORKER_CONCURRENCY"), w.Concurrency)
    w.JobTimeout = envDuration("JOB_TIMEOUT", w.JobTimeout)
    w.JobMaxAttempts = parseInt(os.Getenv("JOB_MAX_ATTEMPTS"), w.JobMaxAttempts)
    w.RetryBaseDelay = envDuration("RETRY_BASE_DELAY", w.RetryBaseDelay)
    w.RetryJitter = envDuration("RETRY_JITTER", w.RetryJitter)
    w.RetryBackoffFactor = parseFloat(os.Getenv("RETRY_BACKOFF_FACTOR"), w.RetryBackoffFactor)

    q := &cfg.Queue
    q.RedisURL = getEnv("REDIS_URL", q.RedisURL)
    q.Stream = getEnv("QUEUE_STREAM", q.Stream)
    q.Group = getEnv("QUEUE_GROUP", q.Group)
    q.PollInterval = envDuration("QUEUE_POLL_INTERVAL", q.PollInterval)

    s := &cfg.Storage
    s.Bucket = getEnv("S3_BUCKET", s.Bucket)
    s.Region = getEnv("AWS_REGION", s.Region)
    s.Endpoint = getEnv("S3_ENDPOINT", s.Endpoint)
    s.AccessKey = getEnv("AWS_ACCESS_KEY_ID", s.AccessKey)
    s.SecretKey = getEnv("AWS_SECRET_ACCESS_KEY", s.SecretKey)
    s.EncryptionPassword = getEnv("ENCRYPTION_PASSWORD", s.EncryptionPassword)
    s.ResultPrefix = getEnv("RESULT_PREFIX", s.ResultPrefix)
    s.LocalDir = getEnv("RESULT_DIR", s.LocalDir)

    h := &cfg.HTTP
    h.Port = getEnv("PORT", h.Port)
    h.RunDispatcher = envBool("RUN_DISPATCHER", h.RunDispatcher)
}

// Duration is a time.Duration that reads "10s" style strings from TOML.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalText(b []byte) error {
    v, err := time.ParseDuration(string(b))
    if err != nil { return fmt.Errorf("invalid duration %q: %w", b, err) }
    *d = Duration(v)
    return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func envBool(key string, def bool) bool {
    v := os.Getenv(key)
    if v == "" { return def }
    return parseBool(v)
}

func envDuration(key string, def Duration) Duration {
    return Duration(parseDuration(os.Getenv(key), def.D()))
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func splitList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" { out = append(out, strings.ToLower(p)) }
    }
    return out
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}

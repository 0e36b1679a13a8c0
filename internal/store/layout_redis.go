package store

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// Layout is the audit record of one merge: both slot sequences rendered as
// text plus the counts behind them.
type Layout struct {
    Reading string         `json:"reading_order"`
    Print   string         `json:"print_order"`
    Stats   map[string]int `json:"stats"`
}

type LayoutStore struct {
    client *redis.Client
    ttl    time.Duration
}

func NewLayoutStore(c *redis.Client) *LayoutStore {
    return &LayoutStore{client: c, ttl: 7 * 24 * time.Hour}
}

func (s *LayoutStore) key(jobID string) string { return fmt.Sprintf("merge:%s:layout", jobID) }

func (s *LayoutStore) SaveLayout(ctx context.Context, jobID string, l Layout) error {
    stats, _ := json.Marshal(l.Stats)
    m := map[string]interface{}{"reading": l.Reading, "print": l.Print, "stats": string(stats)}
    pipe := s.client.TxPipeline()
    pipe.HSet(ctx, s.key(jobID), m)
    pipe.Expire(ctx, s.key(jobID), s.ttl)
    _, err := pipe.Exec(ctx)
    return err
}

func (s *LayoutStore) GetLayout(ctx context.Context, jobID string) (Layout, bool, error) {
    res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
    if err != nil { return Layout{}, false, err }
    if len(res) == 0 { return Layout{}, false, nil }
    l := Layout{Reading: res["reading"], Print: res["print"]}
    if v := res["stats"]; v != "" {
        _ = json.Unmarshal([]byte(v), &l.Stats)
    }
    return l, true, nil
}

package queue

import (
    "context"
    "fmt"
    "strconv"
    "time"

    redis "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog/log"
)

// Retry schedules the job's next attempt at the given time and returns it.
func (q *RedisQueue) Retry(ctx context.Context, job Job, at time.Time) (Job, error) {
    next := job.Next()
    data, err := next.Encode()
    if err != nil { return Job{}, fmt.Errorf("retry %s: %w", job.JobID, err) }
    z := redis.Z{Score: float64(at.Unix()), Member: string(data)}
    if err := q.client.ZAdd(ctx, q.DelayedKey, z).Err(); err != nil {
        return Job{}, fmt.Errorf("retry %s: %w", job.JobID, err)
    }
    return next, nil
}

func (q *RedisQueue) mover() {
    ticker := time.NewTicker(q.pollInterval)
    defer ticker.Stop()
    for {
        select {
        case <-q.stop:
            return
        case <-ticker.C:
            ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
            if n, err := q.moveDue(ctx, time.Now()); err != nil {
                log.Warn().Err(err).Msg("retry mover failed")
            } else if n > 0 {
                log.Debug().Int("jobs", n).Msg("retries moved to stream")
            }
            cancel()
        }
    }
}

// moveDue puts retries due by now back on the stream. Each member is decoded
// and written as a regular entry carrying its attempt count; members that no
// longer decode are dead-lettered instead.
func (q *RedisQueue) moveDue(ctx context.Context, now time.Time) (int, error) {
    members, err := q.client.ZRangeByScore(ctx, q.DelayedKey, &redis.ZRangeBy{
        Min:   "-inf",
        Max:   strconv.FormatInt(now.Unix(), 10),
        Count: 100,
    }).Result()
    if err != nil || len(members) == 0 { return 0, err }

    pipe := q.client.TxPipeline()
    for _, m := range members {
        job, err := DecodeJob([]byte(m))
        if err != nil {
            pipe.XAdd(ctx, &redis.XAddArgs{Stream: q.DLQStream, Values: rawDeadLetterValues([]byte(m), err, now)})
        } else {
            vals, _ := entryValues(job)
            pipe.XAdd(ctx, &redis.XAddArgs{Stream: q.Stream, Values: vals})
        }
        pipe.ZRem(ctx, q.DelayedKey, m)
    }
    if _, err := pipe.Exec(ctx); err != nil { return 0, err }
    return len(members), nil
}

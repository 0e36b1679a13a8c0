package queue

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    redis "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog/log"
)

// RedisQueue carries merge jobs on a Redis stream read through a consumer
// group. Retries wait in a ZSET until the mover puts them back on the stream;
// jobs that give up land on a dead-letter stream.
type RedisQueue struct {
    client *redis.Client

    Stream      string
    Group       string
    CancelKey   string // set of cancelled job ids
    DelayedKey  string // ZSET of retries scored by due time
    DLQStream   string
    IdemDoneKey string // prefix for finished idempotency keys

    pollInterval time.Duration
    stop         chan struct{}
}

// NewRedisQueue connects, makes sure the consumer group exists and starts the
// retry mover.
func NewRedisQueue(redisURL, stream, group string, poll time.Duration) (*RedisQueue, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil { return nil, fmt.Errorf("parse redis url: %w", err) }
    c := redis.NewClient(opt)

    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()
    if err := c.Ping(ctx).Err(); err != nil {
        c.Close()
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    if err := c.XGroupCreateMkStream(ctx, stream, group, "$").Err(); err != nil && !isBusyGroupErr(err) {
        c.Close()
        return nil, fmt.Errorf("create group %s on %s: %w", group, stream, err)
    }
    if poll <= 0 { poll = 200 * time.Millisecond }

    q := &RedisQueue{
        client:       c,
        Stream:       stream,
        Group:        group,
        CancelKey:    stream + ":cancelled",
        DelayedKey:   stream + ":retry",
        DLQStream:    stream + ":dlq",
        IdemDoneKey:  "idem:merge:",
        pollInterval: poll,
        stop:         make(chan struct{}),
    }
    go q.mover()
    return q, nil
}

func isBusyGroupErr(err error) bool {
    return err != nil && strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP")
}

// Close stops the mover and the connection.
func (q *RedisQueue) Close() error {
    close(q.stop)
    return q.client.Close()
}

// Client exposes the connection for stores sharing it.
func (q *RedisQueue) Client() *redis.Client { return q.client }

func (q *RedisQueue) Ping(ctx context.Context) error { return q.client.Ping(ctx).Err() }

// EnqueueMerge appends a merge job to the stream.
func (q *RedisQueue) EnqueueMerge(ctx context.Context, job Job) error {
    if job.JobID == "" { return errors.New("enqueue: job has no id") }
    if job.Attempt <= 0 { job.Attempt = 1 }
    vals, err := entryValues(job)
    if err != nil { return fmt.Errorf("enqueue %s: %w", job.JobID, err) }
    return q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.Stream, Values: vals}).Err()
}

// Dequeue blocks up to timeout for the next job. ok is false when nothing
// arrived. Entries that do not decode are dead-lettered and acked here, so
// callers only ever see valid jobs.
func (q *RedisQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (d Delivery, ok bool, err error) {
    res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
        Group:    q.Group,
        Consumer: consumer,
        Streams:  []string{q.Stream, ">"},
        Count:    1,
        Block:    timeout,
    }).Result()
    if errors.Is(err, redis.Nil) { return Delivery{}, false, nil }
    if err != nil { return Delivery{}, false, err }
    if len(res) == 0 || len(res[0].Messages) == 0 { return Delivery{}, false, nil }

    msg := res[0].Messages[0]
    job, raw, derr := jobFromValues(msg.Values)
    if derr != nil {
        log.Error().Err(derr).Str("msg_id", msg.ID).Msg("dead-lettering undecodable stream entry")
        if err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.DLQStream, Values: rawDeadLetterValues(raw, derr, time.Now())}).Err(); err != nil {
            return Delivery{}, false, fmt.Errorf("dead-letter %s: %w", msg.ID, err)
        }
        return Delivery{}, false, q.Ack(ctx, msg.ID)
    }
    return Delivery{MsgID: msg.ID, Job: job}, true, nil
}

// Ack marks a message as processed.
func (q *RedisQueue) Ack(ctx context.Context, msgID string) error {
    if msgID == "" { return nil }
    return q.client.XAck(ctx, q.Stream, q.Group, msgID).Err()
}

// CancelJob marks a job as cancelled. Workers check this before and while
// merging.
func (q *RedisQueue) CancelJob(ctx context.Context, jobID string) error {
    return q.client.SAdd(ctx, q.CancelKey, jobID).Err()
}

func (q *RedisQueue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
    return q.client.SIsMember(ctx, q.CancelKey, jobID).Result()
}

// AddDLQ records a job that will not be retried, with the error class that
// decided it.
func (q *RedisQueue) AddDLQ(ctx context.Context, job Job, class string, cause error) error {
    return q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.DLQStream, Values: deadLetterValues(job, class, cause, time.Now())}).Err()
}

func (q *RedisQueue) IsIdemDone(ctx context.Context, key string) (bool, error) {
    if key == "" { return false, nil }
    n, err := q.client.Exists(ctx, q.IdemDoneKey+key).Result()
    return n == 1, err
}

func (q *RedisQueue) MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error {
    if key == "" { return nil }
    return q.client.Set(ctx, q.IdemDoneKey+key, 1, ttl).Err()
}

// Depths returns the pending, retrying and dead-lettered counts.
func (q *RedisQueue) Depths(ctx context.Context) (int64, int64, int64, error) {
    pipe := q.client.Pipeline()
    pending := pipe.XLen(ctx, q.Stream)
    retrying := pipe.ZCard(ctx, q.DelayedKey)
    dead := pipe.XLen(ctx, q.DLQStream)
    if _, err := pipe.Exec(ctx); err != nil { return 0, 0, 0, err }
    return pending.Val(), retrying.Val(), dead.Val(), nil
}

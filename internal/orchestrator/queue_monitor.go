package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/cbzbinder/internal/metrics"
)

// Depther reports stream, delayed and dlq lengths.
type Depther interface {
	Depths(ctx context.Context) (int64, int64, int64, error)
}

// MonitorQueue publishes queue depth gauges until ctx is done.
func MonitorQueue(ctx context.Context, q Depther, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("started queue monitor")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample(ctx, q)
		}
	}
}

func sample(ctx context.Context, q Depther) {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	stream, delayed, dlq, err := q.Depths(cctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read queue depths")
		return
	}
	metrics.SetQueueDepth("stream", stream)
	metrics.SetQueueDepth("delayed", delayed)
	metrics.SetQueueDepth("dlq", dlq)
	if dlq > 0 {
		log.Debug().Int64("dlq", dlq).Msg("dead letter queue not empty")
	}
}

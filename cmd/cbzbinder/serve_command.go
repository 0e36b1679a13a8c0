package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/cbzbinder/internal/dispatcher"
	"github.com/local/cbzbinder/internal/merge"
	"github.com/local/cbzbinder/internal/metrics"
	"github.com/local/cbzbinder/internal/orchestrator"
	"github.com/local/cbzbinder/internal/queue"
	"github.com/local/cbzbinder/internal/statuscheck"
	"github.com/local/cbzbinder/internal/storage"
	"github.com/local/cbzbinder/internal/store"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port string
	var noDispatcher bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the merge HTTP API and queue workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.HTTP.Port = port
			}
			if noDispatcher {
				cfg.HTTP.RunDispatcher = false
			}

			runCtx := cmd.Context()

			metrics.Init()

			rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.PollInterval.D())
			if err != nil {
				return err
			}
			defer rq.Close()
			statuses := store.NewRedisStatusFromClient(rq.Client())
			layouts := store.NewLayoutStore(rq.Client())

			resolver := &merge.Resolver{HTTP: &http.Client{Timeout: 10 * time.Minute}}
			checks := statuscheck.Options{Redis: rq, ResultDir: cfg.Storage.LocalDir}
			deps := dispatcher.Dependencies{
				Queue:   rq,
				Status:  statuses,
				Layouts: layouts,
				Merger:  merge.NewRunner(resolver),
			}
			if cfg.Storage.Bucket != "" {
				s3c, err := storage.NewS3Client(runCtx, s3Options(cfg))
				if err != nil {
					return err
				}
				resolver.S3 = s3c
				checks.S3 = s3c
				deps.Uploader = s3c
			} else {
				log.Warn().Msg("no storage bucket configured, results stay local")
			}

			mux := http.NewServeMux()
			orchestrator.New(orchestrator.Dependencies{
				Queue:   rq,
				Status:  statuses,
				Layouts: layouts,
				Checker: statuscheck.New(checks),
			}).RegisterRoutes(mux)
			go orchestrator.MonitorQueue(runCtx, rq, 5*time.Second)

			if cfg.HTTP.RunDispatcher {
				disp := dispatcher.New(dispatcher.ConfigFrom(*cfg), deps)
				disp.Start()
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					if err := disp.Stop(sctx); err != nil {
						log.Warn().Err(err).Msg("dispatcher did not drain before shutdown")
					}
				}()
			}

			srv := &http.Server{Addr: ":" + cfg.HTTP.Port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			errCh := make(chan error, 1)
			go func() {
				log.Info().Msgf("HTTP server listening on :%s", cfg.HTTP.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-runCtx.Done():
			case err := <-errCh:
				return err
			}
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
			log.Info().Msg("shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&port, "port", "8080", "HTTP listen port")
	cmd.Flags().BoolVar(&noDispatcher, "no-dispatcher", false, "Serve the API only, without queue workers")
	return cmd
}

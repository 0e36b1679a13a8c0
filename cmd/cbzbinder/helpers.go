package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/cbzbinder/internal/config"
	"github.com/local/cbzbinder/internal/discovery"
	"github.com/local/cbzbinder/internal/merge"
	"github.com/local/cbzbinder/internal/storage"
)

// sourceFlags select the archives of a run.
type sourceFlags struct {
	files  []string
	dirs   []string
	spread []string
	single []string
}

func (s *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&s.files, "files", "f", nil, "Archives to merge (local paths, s3:// or http(s):// refs)")
	cmd.Flags().StringSliceVarP(&s.dirs, "dirs", "d", nil, "Directories whose [N]-numbered archives are merged (default: current directory)")
	cmd.Flags().StringArrayVar(&s.spread, "spread", nil, "Page ids to force as spreads, e.g. 3,7-9")
	cmd.Flags().StringArrayVar(&s.single, "single", nil, "Page ids to force as single pages")
	cmd.MarkFlagsMutuallyExclusive("files", "dirs")
}

// sources discovers and orders the archives named by the flags.
func (s *sourceFlags) sources() ([]discovery.Source, error) {
	var res discovery.Result
	if len(s.files) > 0 {
		res = discovery.FromFiles(s.files)
	} else {
		dirs := s.dirs
		if len(dirs) == 0 {
			dirs = []string{"."}
		}
		res = discovery.FromDirs(dirs)
	}
	if len(res.Sources) == 0 {
		return nil, fmt.Errorf("%w: no [N]-numbered archives found", merge.ErrNoSources)
	}
	return res.Sources, nil
}

// newResolver builds the source resolver, wiring S3 only when a source
// needs it.
func newResolver(ctx context.Context, cfg *config.Config, sources []discovery.Source) (*merge.Resolver, error) {
	res := &merge.Resolver{HTTP: &http.Client{Timeout: 10 * time.Minute}}
	for _, s := range sources {
		if !strings.HasPrefix(s.Ref, "s3://") {
			continue
		}
		cli, err := storage.NewS3Client(ctx, s3Options(cfg))
		if err != nil {
			return nil, err
		}
		res.S3 = cli
		break
	}
	return res, nil
}

func s3Options(cfg *config.Config) storage.Options {
	return storage.Options{
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Password:  cfg.Storage.EncryptionPassword,
	}
}

func logSources(sources []discovery.Source) {
	for _, s := range sources {
		log.Debug().Int("number", s.Number).Str("archive", s.Ref).Msg("source")
	}
}

package main

import (
	"os"
	"strings"
	"sync"

	"github.com/local/cbzbinder/internal/config"
	"github.com/local/cbzbinder/internal/logger"
)

type commandContext struct {
	configFlag *string
	verbose    *int
	color      *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, verbose *int, color *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
		color:      color,
	}
}

// ensureConfig loads the configuration once and sets up logging from it.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		verbose := 0
		if c.verbose != nil {
			verbose = *c.verbose
		}
		cfg.Logging.Level = logger.VerbosityLevel(cfg.Logging.Level, verbose)
		if err := logger.Init(logger.Options{
			Level:        cfg.Logging.Level,
			Pretty:       cfg.Logging.Pretty,
			File:         cfg.Logging.File,
			MaxSizeMB:    cfg.Logging.MaxSizeMB,
			MaxBackups:   cfg.Logging.MaxBackups,
			MaxAgeDays:   cfg.Logging.MaxAgeDays,
			Compress:     cfg.Logging.Compress,
			Console:      os.Stderr,
			ForceColor:   c.color != nil && *c.color,
			SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
			AxiomAPIKey:  cfg.Axiom.APIKey,
			AxiomOrgID:   cfg.Axiom.OrgID,
			AxiomDataset: cfg.Axiom.Dataset,
			AxiomFlush:   cfg.Axiom.FlushInterval.D(),
		}); err != nil {
			c.configErr = err
			return
		}
		c.config = &cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) colorForced() bool {
	return c.color != nil && *c.color
}

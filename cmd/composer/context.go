package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-composer/internal/config"
	"github.com/heimdex/heimdex-composer/internal/db"
	"github.com/heimdex/heimdex-composer/internal/logging"
	"github.com/heimdex/heimdex-composer/internal/probe"
	"github.com/heimdex/heimdex-composer/internal/project"
	"github.com/heimdex/heimdex-composer/internal/store"
)

var errProjectLocked = errors.New("project is open in another composer process; stop `composer serve` or use its HTTP API")

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.EnvConfig
	configErr  error

	loggerOnce sync.Once
	log        *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.EnvConfig, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.New(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
			c.configErr = fmt.Errorf("create data dir: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.log = logging.NewLogger(config.DefaultLogLevel, config.DefaultLogFormat)
			return
		}
		c.log = logging.NewLogger(cfg.LogLevel(), cfg.LogFormat())
	})
	return c.log
}

// lockProject takes the project lock. Exclusive locks are for commands that
// change the project; shared locks let several readers run side by side.
func (c *commandContext) lockProject(exclusive bool) (*flock.Flock, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	lock := flock.New(cfg.LockPath())
	var ok bool
	if exclusive {
		ok, err = lock.TryLock()
	} else {
		ok, err = lock.TryRLock()
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, errProjectLocked
	}
	return lock, nil
}

// withProject opens the project database under the project lock, loads a
// session and hands it to fn.
func (c *commandContext) withProject(cmd *cobra.Command, exclusive bool, fn func(*project.Session, store.Repository) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger := c.logger()

	lock, err := c.lockProject(exclusive)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release project lock", "error", err)
		}
	}()

	database, err := db.New(cfg.DBPath(), logging.WithComponent(logger, "db"))
	if err != nil {
		return fmt.Errorf("open project: %w", err)
	}
	defer database.Close()

	repo := store.NewRepository(database.Conn())
	session := newSession(cfg, repo, logger)
	defer session.Close()

	if _, err := session.Load(cmd.Context()); err != nil {
		return err
	}
	return fn(session, repo)
}

func newSession(cfg config.Config, repo store.Repository, logger *slog.Logger) *project.Session {
	return project.NewSession(project.Options{
		Prober:  probe.NewFFProbe(cfg.FFProbePath(), cfg.ProbeTimeout(), logging.WithComponent(logger, "probe")),
		Repo:    repo,
		Workers: cfg.BuildWorkers(),
		Logger:  logger,
	})
}

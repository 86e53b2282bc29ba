// Package gitsync commits and pushes the data directory after a
// successful scrape run. Sync failures are reported to the caller but are
// never fatal to a run.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/weathertrack/geoscraper/internal/config"
)

// Syncer shells out to git in the working tree that holds the data
// directory.
type Syncer struct {
	cfg     config.GitConfig
	dataDir string
	clock   clockwork.Clock
	logger  *zap.Logger

	// run is swapped in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// New constructs a Syncer for the given data directory.
func New(cfg config.GitConfig, dataDir string, clock clockwork.Clock, logger *zap.Logger) *Syncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Syncer{
		cfg:     cfg,
		dataDir: dataDir,
		clock:   clock,
		logger:  logger,
		run:     runCommand,
	}
}

// Sync stages the data directory, commits when something changed, and
// pushes. A clean index is not an error. Every command is anchored to the
// data directory with -C, so the process working directory never decides
// which repository gets staged.
func (s *Syncer) Sync(ctx context.Context) error {
	if s.cfg.UserName != "" {
		if _, err := s.git(ctx, "config", "user.name", s.cfg.UserName); err != nil {
			return fmt.Errorf("configure git user: %w", err)
		}
		if _, err := s.git(ctx, "config", "user.email", s.cfg.UserEmail); err != nil {
			return fmt.Errorf("configure git email: %w", err)
		}
	}

	if _, err := s.git(ctx, "add", "-A", "."); err != nil {
		return fmt.Errorf("stage data directory: %w", err)
	}

	// diff --cached --quiet exits 1 when staged changes exist.
	_, err := s.git(ctx, "diff", "--cached", "--quiet", "--", ".")
	switch exitStatus(err) {
	case 0:
		s.logger.Info("no data changes to sync")
		return nil
	case 1:
	default:
		return fmt.Errorf("inspect staged changes: %w", err)
	}

	message := fmt.Sprintf("chore(scrape): update data %s",
		s.clock.Now().UTC().Format(time.RFC3339))
	if _, err := s.git(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("commit data: %w", err)
	}
	if out, err := s.git(ctx, "push", "origin", s.cfg.Branch); err != nil {
		return fmt.Errorf("push data: %w: %s", err, strings.TrimSpace(string(out)))
	}

	s.logger.Info("data synced", zap.String("branch", s.cfg.Branch))
	return nil
}

func (s *Syncer) git(ctx context.Context, args ...string) ([]byte, error) {
	return s.run(ctx, "git", append([]string{"-C", s.dataDir}, args...)...)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

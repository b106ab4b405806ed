package worklet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gg-glitch-88/holvi/internal/store"
)

// Operation names accepted by the Runner.
const (
	OpSelectURL    = "select-url"
	OpSelectCharAt = "select-char-at"
)

// ErrUnknownOperation is returned by Run for operation names the
// Runner does not know.
var ErrUnknownOperation = errors.New("worklet: unknown operation")

// Recorder is the subset of store.DB the Runner needs for its audit
// trail.
type Recorder interface {
	InsertInvocation(ctx context.Context, inv *store.Invocation) (int64, error)
}

// Publisher matches the concrete bus without importing it.
type Publisher interface {
	PublishURLSelected(data interface{})
}

// Request names one operation to run and its parameters. Key defaults
// to DefaultKey when empty; CharIndex is ignored by select-url.
type Request struct {
	Operation string `json:"operation"`
	Key       string `json:"key,omitempty"`
	CharIndex int    `json:"char_index,omitempty"`
}

// Result is the outcome of one run. Matched false is the operation's
// absence signal, not a failure.
type Result struct {
	Invocation string    `json:"invocation"`
	Operation  string    `json:"operation"`
	Key        string    `json:"key"`
	CharIndex  int       `json:"char_index"`
	URL        string    `json:"url,omitempty"`
	Char       string    `json:"char,omitempty"`
	Matched    bool      `json:"matched"`
	RanAt      time.Time `json:"ran_at"`
}

// Runner executes worklet operations against the shared store,
// records each run, and announces matches on the event bus.
type Runner struct {
	st   Store
	rec  Recorder
	pub  Publisher
	base string
	log  *zap.Logger
}

// NewRunner wires a Runner. base is the collector URL select-char-at
// candidates point at; empty means BeaconBase. select-url always uses
// BeaconBase regardless.
func NewRunner(st Store, rec Recorder, pub Publisher, base string, log *zap.Logger) *Runner {
	if base == "" {
		base = BeaconBase
	}
	return &Runner{st: st, rec: rec, pub: pub, base: base, log: log}
}

// Base returns the collector URL select-char-at runs resolve against.
func (r *Runner) Base() string { return r.base }

// Run executes one operation. An unknown operation name is the only
// request error; everything the operation itself decides — including
// "no URL" — comes back as a successful Result.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	res := &Result{
		Invocation: uuid.NewString(),
		Operation:  req.Operation,
		Key:        req.Key,
		CharIndex:  req.CharIndex,
		RanAt:      time.Now().UTC(),
	}
	if res.Key == "" {
		res.Key = DefaultKey
	}

	var (
		url     string
		matched bool
		err     error
	)
	switch req.Operation {
	case OpSelectURL:
		res.Key, res.CharIndex = DefaultKey, 0
		url, matched, err = SelectURL(ctx, r.st)
	case OpSelectCharAt:
		url, matched, err = SelectCharAt(ctx, r.st, res.Key, res.CharIndex, r.base)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, req.Operation)
	}
	if err != nil {
		return nil, err
	}
	res.URL = url
	res.Matched = matched
	if matched {
		// Every Alphabet symbol is one byte, so the encoded character
		// is the last byte of the candidate URL.
		res.Char = url[len(url)-1:]
	}

	if _, err := r.rec.InsertInvocation(ctx, &store.Invocation{
		Invocation:  res.Invocation,
		Operation:   res.Operation,
		Key:         res.Key,
		CharIndex:   res.CharIndex,
		Matched:     res.Matched,
		SelectedURL: res.URL,
		RanAt:       res.RanAt,
	}); err != nil {
		r.log.Warn("worklet: record invocation", zap.Error(err),
			zap.String("invocation", res.Invocation))
	}

	r.log.Debug("worklet: run",
		zap.String("invocation", res.Invocation),
		zap.String("operation", res.Operation),
		zap.Int("char_index", res.CharIndex),
		zap.Bool("matched", res.Matched),
	)
	if res.Matched && r.pub != nil {
		r.pub.PublishURLSelected(res)
	}
	return res, nil
}

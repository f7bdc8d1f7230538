package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fres-sudo/neuravia/internal/adapters/classifier"
	"github.com/fres-sudo/neuravia/internal/adapters/repository"
	service "github.com/fres-sudo/neuravia/internal/app"
	"github.com/fres-sudo/neuravia/internal/domain/model"
	"github.com/fres-sudo/neuravia/internal/domain/types"
	"github.com/fres-sudo/neuravia/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// spyLedger counts appends on top of an in-memory ledger.
type spyLedger struct {
	repository.Ledger
	appends atomic.Int64
}

func newSpyLedger() *spyLedger {
	return &spyLedger{Ledger: repository.NewMemoryStore(context.Background())}
}

func (l *spyLedger) Append(ctx context.Context, e model.LedgerEntry) (model.LedgerEntry, error) {
	l.appends.Add(1)
	return l.Ledger.Append(ctx, e)
}

func (l *spyLedger) history(patientID string) []model.LedgerEntry {
	out, _ := l.Ledger.History(context.Background(), patientID, types.HistoryFilter{})
	return out
}

type stubClassifier struct {
	result classifier.Classification
	err    error
	calls  atomic.Int64
}

func (c *stubClassifier) Classify(_ context.Context, _ string, _ []byte) (classifier.Classification, error) {
	c.calls.Add(1)
	return c.result, c.err
}

type stubCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (c *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	return c.reply, c.err
}

func (c *stubCompleter) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

var errUpstream = errors.New("upstream unavailable")

func startService(opts ...service.Option) *service.Service {
	svc := service.New(opts...)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		panic(err)
	}
	return svc
}

// eventually polls cond until it holds or the timeout passes.
func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

//go:build !integration

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

type recordingAlerter struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingAlerter) Alert(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func TestPool(t *testing.T) {
	log := zerolog.Nop()

	t.Run("should run submitted tasks and drain on stop", func(t *testing.T) {
		p := NewPool(2, &log)
		p.Start(context.Background())
		var n int32
		for i := 0; i < 5; i++ {
			if err := p.Submit(func(ctx context.Context) error {
				atomic.AddInt32(&n, 1)
				return nil
			}); err != nil {
				t.Fatalf("submit %d: %v", i, err)
			}
		}
		p.Stop()
		if got := atomic.LoadInt32(&n); got != 5 {
			t.Errorf("expected 5 tasks to run, got %d", got)
		}
	})

	t.Run("should survive failing and panicking tasks", func(t *testing.T) {
		p := NewPool(1, &log)
		p.Start(context.Background())
		_ = p.Submit(func(ctx context.Context) error { return errors.New("boom") })
		_ = p.Submit(func(ctx context.Context) error { panic("boom") })
		var ran int32
		_ = p.Submit(func(ctx context.Context) error { atomic.StoreInt32(&ran, 1); return nil })
		p.Stop()
		if atomic.LoadInt32(&ran) != 1 {
			t.Error("expected the pool to keep working after a failing task")
		}
	})

	t.Run("should reject work when the queue is full", func(t *testing.T) {
		p := NewPool(1, &log) // not started: nothing consumes
		var err error
		for i := 0; i < 10 && err == nil; i++ {
			err = p.Submit(func(ctx context.Context) error { return nil })
		}
		if !errors.Is(err, ErrQueueFull) {
			t.Errorf("expected ErrQueueFull, got %v", err)
		}
	})

	t.Run("should deliver alerts through the pool", func(t *testing.T) {
		p := NewPool(1, &log)
		p.Start(context.Background())
		rec := &recordingAlerter{}
		a := NewAsyncAlerter(p, rec, &log)
		if err := a.Alert(context.Background(), "notify cycle failed"); err != nil {
			t.Fatal(err)
		}
		p.Stop()
		if len(rec.texts) != 1 || rec.texts[0] != "notify cycle failed" {
			t.Errorf("unexpected alerts: %v", rec.texts)
		}
	})
}

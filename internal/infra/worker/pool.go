// Package worker runs side work that must not hold up a webhook response.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrQueueFull is returned by Submit when the backlog is at capacity.
var ErrQueueFull = errors.New("worker queue full")

type Task func(ctx context.Context) error

// Pool is a fixed set of goroutines reading a bounded backlog. Stop runs whatever is
// still queued before it returns.
type Pool struct {
	size    int
	backlog chan Task
	closing chan struct{}
	stopped sync.Once
	running sync.WaitGroup
	log     *zerolog.Logger
}

func NewPool(size int, logger *zerolog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		size:    size,
		backlog: make(chan Task, size*4),
		closing: make(chan struct{}),
		log:     logger,
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.running.Add(p.size)
	for i := 0; i < p.size; i++ {
		go p.work(ctx, i)
	}
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.running.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.backlog:
			p.safeRun(ctx, id, task)
		case <-p.closing:
			for {
				select {
				case task := <-p.backlog:
					p.safeRun(ctx, id, task)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) safeRun(ctx context.Context, id int, task Task) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = task(ctx)
	}()
	if err != nil {
		p.log.Warn().Err(err).Int("worker", id).Msg("background task failed")
	}
}

// Submit never blocks; a saturated pool sheds the task.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case p.backlog <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) Stop() {
	p.stopped.Do(func() { close(p.closing) })
	p.running.Wait()
}

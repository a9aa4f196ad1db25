// Package sender executes outbound Telegram calls asynchronously so slow or
// flaky sends never block update handling.
package sender

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kasuwa/accbot/core/logger"
	"github.com/kasuwa/accbot/core/netutil"

	"log/slog"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was rejected.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
}

type job struct {
	ctx    context.Context
	action string
	run    func() error
}

// Dispatcher runs outbound calls on a small worker pool with bounded retry
// for transient network failures.
type Dispatcher struct {
	opts Options
	jobs chan job
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewDispatcher starts a dispatcher with sane defaults if options are zeroed.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 128
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}

	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
		stop: make(chan struct{}),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue schedules an outbound call. The context is used for log metadata.
func (d *Dispatcher) Enqueue(ctx context.Context, action string, run func() error) error {
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}
	select {
	case d.jobs <- job{ctx: ctx, action: action, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close drains the queue and stops the workers.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.stop)
		close(d.jobs)
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.execute(j)
	}
}

func (d *Dispatcher) execute(j job) {
	attempts := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = j.run(); err == nil {
			return
		}
		if !netutil.ShouldRetry(err) || attempt == attempts {
			break
		}
		time.Sleep(d.opts.RetryBackoff * time.Duration(attempt))
	}
	logger.TG.Warn("outbound send failed",
		slog.String("event", "sender.fail"),
		slog.String("action", j.action),
		slog.String("rid", logger.RIDFrom(j.ctx)),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
}

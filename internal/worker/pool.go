// Package worker 异步任务协程池
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/smysle/allowance-campaign/pkg/logger"
)

var (
	// ErrQueueFull 队列已满，任务被丢弃
	ErrQueueFull = errors.New("worker queue full")
	// ErrNilTask 提交了空任务
	ErrNilTask = errors.New("nil task")
	// ErrStopped 协程池已停止
	ErrStopped = errors.New("worker pool stopped")
)

// Task 异步任务
type Task func(ctx context.Context) error

// Pool 固定大小的协程池，队列满时直接拒绝，不阻塞提交方
type Pool struct {
	wg       sync.WaitGroup
	jobs     chan Task
	quit     chan struct{}
	n        int
	stopOnce sync.Once

	mu      sync.RWMutex
	stopped bool
}

// NewPool 创建协程池，队列容量为 workers*4
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		jobs: make(chan Task, workers*4),
		quit: make(chan struct{}),
		n:    workers,
	}
}

// Start 启动工作协程
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					p.drain(ctx, id)
					return
				case task := <-p.jobs:
					p.run(ctx, id, task)
				}
			}
		}(i)
	}
	logger.Debug().Int("workers", p.n).Msg("协程池已启动")
}

// drain 停止时执行完队列里剩余的任务
func (p *Pool) drain(ctx context.Context, id int) {
	for {
		select {
		case task := <-p.jobs:
			p.run(ctx, id, task)
		default:
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	if task == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Int("worker", id).Interface("panic", r).Msg("任务 panic")
		}
	}()
	if err := task(ctx); err != nil {
		logger.Warn().Err(err).Int("worker", id).Msg("任务执行失败")
	}
}

// Stop 停止协程池，等待已入队的任务执行完
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()

		close(p.quit)
		p.wg.Wait()
		logger.Debug().Msg("协程池已停止")
	})
}

// Submit 提交任务，队列满时返回 ErrQueueFull
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.jobs <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

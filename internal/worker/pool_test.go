package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsTasks(t *testing.T) {
	p := NewPool(2)
	p.Start(context.Background())

	var count int32
	done := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		err := p.Submit(func(ctx context.Context) error {
			atomic.AddInt32(&count, 1)
			done <- struct{}{}
			return nil
		})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	for i := 0; i < 5; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task did not run")
		}
	}
	p.Stop()

	if got := atomic.LoadInt32(&count); got != 5 {
		t.Errorf("count = %d, want 5", got)
	}
}

func TestPool_QueueFull(t *testing.T) {
	// 未启动的协程池不会消费队列
	p := NewPool(1)
	for i := 0; i < 4; i++ {
		if err := p.Submit(func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("Submit(%d) error = %v", i, err)
		}
	}
	if err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Submit() error = %v, want ErrQueueFull", err)
	}
}

func TestPool_NilTask(t *testing.T) {
	p := NewPool(1)
	if err := p.Submit(nil); !errors.Is(err, ErrNilTask) {
		t.Errorf("Submit(nil) error = %v, want ErrNilTask", err)
	}
}

func TestPool_StopDrainsQueue(t *testing.T) {
	p := NewPool(1)
	var count int32
	for i := 0; i < 3; i++ {
		_ = p.Submit(func(ctx context.Context) error {
			atomic.AddInt32(&count, 1)
			return errors.New("ignored")
		})
	}
	p.Start(context.Background())
	p.Stop()
	p.Stop()

	if got := atomic.LoadInt32(&count); got != 3 {
		t.Errorf("count = %d, want 3", got)
	}
	if err := p.Submit(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit() after Stop error = %v, want ErrStopped", err)
	}
}

func TestPool_RecoversPanic(t *testing.T) {
	p := NewPool(1)
	p.Start(context.Background())
	defer p.Stop()

	_ = p.Submit(func(ctx context.Context) error { panic("boom") })

	done := make(chan struct{})
	_ = p.Submit(func(ctx context.Context) error {
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
}

package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"clashsub/backend/service/shared"
)

// Job 周期任务：先等待 Next 给出的间隔再执行；失败后额外等待 Backoff。
type Job struct {
	Name    string
	Next    func(now time.Time) time.Duration
	Run     func(ctx context.Context) error
	Backoff time.Duration
}

// Scheduler 同一时刻最多运行一个循环。
type Scheduler struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler 创建调度器。
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Start 启动任务循环；已有循环在运行时返回 false。
func (s *Scheduler) Start(ctx context.Context, job Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
		default:
			return false
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		RunLoop(loopCtx, job)
	}()
	logrus.Infof("[tasks] %s started", job.Name)
	return true
}

// Stop 取消循环并等待其退出。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running 是否有循环在运行。
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// RunLoop 阻塞执行任务循环，仅在 ctx 取消时返回。
func RunLoop(ctx context.Context, job Job) {
	for {
		delay := time.Minute
		if job.Next != nil {
			delay = job.Next(time.Now())
		}
		if err := shared.Sleep(ctx, delay); err != nil {
			logrus.Infof("[tasks] %s stopped", job.Name)
			return
		}

		if err := safeRun(ctx, job.Name, job.Run); err != nil {
			if ctx.Err() != nil {
				return
			}
			logrus.Warnf("[tasks] %s failed: %v", job.Name, err)
			if err := shared.Sleep(ctx, job.Backoff); err != nil {
				return
			}
		}
	}
}

func safeRun(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[tasks] %s panicked: %v", name, r)
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

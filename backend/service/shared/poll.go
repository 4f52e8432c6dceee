package shared

import (
	"context"
	"time"
)

// Poll 每隔 interval 调用一次 cond，最多 attempts 次；cond 返回 true 时立即结束。
//
// 先等待再检查：刚发出的启动/终止指令需要时间生效。
// ctx 取消时返回 ctx.Err()；次数用尽返回 (false, nil)。
func Poll(ctx context.Context, attempts int, interval time.Duration, cond func(context.Context) bool) (bool, error) {
	if attempts <= 0 {
		attempts = 1
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for i := 0; i < attempts; i++ {
		if i > 0 {
			timer.Reset(interval)
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
		if cond(ctx) {
			return true, nil
		}
	}
	return false, nil
}

// Sleep 可取消的等待。
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

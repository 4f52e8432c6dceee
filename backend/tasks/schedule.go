package tasks

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// NextDelay 计算距离下次执行的等待时间：cron 表达式合法时按表达式，否则按固定间隔。
func NextDelay(spec string, interval time.Duration, now time.Time) time.Duration {
	var sched cron.Schedule
	if spec = strings.TrimSpace(spec); spec != "" {
		parsed, err := cron.ParseStandard(spec)
		if err != nil {
			logrus.Warnf("[tasks] invalid cron expression %q, falling back to %s: %v", spec, interval, err)
		} else {
			sched = parsed
		}
	}
	if sched == nil {
		if interval <= 0 {
			interval = time.Minute
		}
		return interval
	}
	delay := sched.Next(now).Sub(now)
	if delay < 0 {
		return 0
	}
	return delay
}

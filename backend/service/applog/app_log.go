package applog

import (
	"os"
	"time"

	"clashsub/backend/service/process"
)

const maxAppLogChunkBytes int64 = 512 * 1024

// Snapshot 应用日志增量片段。
type Snapshot struct {
	Pid       int    `json:"pid"`
	StartedAt string `json:"startedAt,omitempty"`
	Path      string `json:"path,omitempty"`

	From int64  `json:"from"`
	To   int64  `json:"to"`
	End  int64  `json:"end"`
	Lost bool   `json:"lost"`
	Text string `json:"text"`

	Error string `json:"error,omitempty"`
}

// Log 当前进程的应用日志文件。
type Log struct {
	path      string
	startedAt time.Time
}

// New path 为空表示未落盘。
func New(path string, startedAt time.Time) *Log {
	return &Log{path: path, startedAt: startedAt}
}

// Since 从 since 偏移处读取。
func (l *Log) Since(since int64) Snapshot {
	snap := Snapshot{Pid: os.Getpid(), Path: l.path}
	if !l.startedAt.IsZero() {
		snap.StartedAt = l.startedAt.Format(time.RFC3339Nano)
	}
	if l.path == "" {
		return snap
	}

	chunk, err := process.ReadLogChunk(l.path, since, maxAppLogChunkBytes)
	snap.From = chunk.From
	snap.To = chunk.To
	snap.End = chunk.End
	snap.Lost = chunk.Lost
	snap.Text = chunk.Text
	if err != nil {
		snap.Error = err.Error()
	}
	return snap
}

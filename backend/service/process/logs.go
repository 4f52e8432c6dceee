package process

import (
	"errors"
	"io"
	"os"
)

// MaxLogChunkBytes 单次读取的日志上限
const MaxLogChunkBytes int64 = 512 * 1024

// LogChunk 日志文件的一段。偏移越过文件末尾（轮转或截断）时从头读取并标记 Lost。
type LogChunk struct {
	Path string `json:"path,omitempty"`
	Pid  int    `json:"pid,omitempty"`

	From int64  `json:"from"`
	To   int64  `json:"to"`
	End  int64  `json:"end"`
	Lost bool   `json:"lost"`
	Text string `json:"text"`

	Error string `json:"error,omitempty"`
}

// LogsSince 从 since 偏移处读取内核输出日志。
func (m *Manager) LogsSince(since int64) LogChunk {
	chunk, err := ReadLogChunk(m.cfg.LogPath, since, MaxLogChunkBytes)
	chunk.Path = m.cfg.LogPath
	if pid, ok := ReadPID(m.cfg.PIDFile); ok {
		chunk.Pid = pid
	}
	if err != nil {
		chunk.Error = err.Error()
	}
	return chunk
}

// ReadLogChunk 读取 [since, since+maxBytes) 区间；文件不存在返回空块。
func ReadLogChunk(path string, since, maxBytes int64) (LogChunk, error) {
	if maxBytes <= 0 {
		return LogChunk{}, errors.New("maxBytes must be > 0")
	}
	if since < 0 {
		since = 0
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return LogChunk{}, nil
		}
		return LogChunk{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return LogChunk{}, err
	}
	chunk := LogChunk{From: since, End: st.Size()}
	if chunk.From > chunk.End {
		chunk.From = 0
		chunk.Lost = true
	}
	chunk.To = chunk.From

	remaining := chunk.End - chunk.From
	if remaining <= 0 {
		return chunk, nil
	}
	if _, err := f.Seek(chunk.From, io.SeekStart); err != nil {
		return LogChunk{}, err
	}
	if remaining > maxBytes {
		remaining = maxBytes
	}
	data, err := io.ReadAll(io.LimitReader(f, remaining))
	if err != nil {
		return LogChunk{}, err
	}
	chunk.To = chunk.From + int64(len(data))
	chunk.Text = string(data)
	return chunk, nil
}

package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultMaxSizeMB = 100

// MultiWriter fans a log line out to every appender. A failing appender does
// not stop the others; the last error is reported.
type MultiWriter struct {
	mu      sync.Mutex
	writers []io.Writer
}

func NewMultiWriter(writers ...io.Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.writers {
		if _, e := w.Write(p); e != nil {
			err = e
		}
	}
	return len(p), err
}

func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.mu.Lock()
	m.writers = append(m.writers, writer)
	m.mu.Unlock()
	return m
}

func (m *MultiWriter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writers)
}

func consoleAppender(output string) (io.Writer, error) {
	switch output {
	case "", OutputStdout:
		return os.Stdout, nil
	case OutputStderr:
		return os.Stderr, nil
	default:
		return nil, fmt.Errorf("unknown log output %q (must be stdout or stderr)", output)
	}
}

// fileAppender returns a lumberjack logger rotating opt.Filename. The parent
// directory is created if missing.
func fileAppender(opt FileAppenderOpt) (io.Writer, error) {
	if opt.Filename == "" {
		return nil, fmt.Errorf("file appender requires a filename")
	}
	if err := os.MkdirAll(filepath.Dir(opt.Filename), 0o755); err != nil {
		return nil, fmt.Errorf("file appender: %w", err)
	}
	maxSize := opt.MaxSize
	if maxSize <= 0 {
		maxSize = defaultMaxSizeMB
	}
	return &lumberjack.Logger{
		Filename:   opt.Filename,
		MaxSize:    maxSize,
		MaxBackups: opt.MaxBackups,
		MaxAge:     opt.MaxAge,
		Compress:   opt.Compress,
	}, nil
}

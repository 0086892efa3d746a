// Package logging provides the engine-wide leveled logger. Writes are queued
// to an async worker so the detection hot path never blocks on disk; entries
// are dropped rather than queued unboundedly when the buffer is saturated.
package logging

import (
	"fmt"
	"os"
	"sync"
	"time"
)

type LogLevel uint8

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	case "critical":
		return LevelCritical
	default:
		return LevelInfo
	}
}

type entry struct {
	level LogLevel
	line  string
}

type Logger struct {
	level   LogLevel
	file    *os.File
	queue   chan entry
	dropped uint64
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// NewLogger opens path for appending and starts the writer goroutine. Entries
// at LevelWarn and above are mirrored to stderr so operational problems are
// visible even when nobody tails the log file.
func NewLogger(level LogLevel, path string) (*Logger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	l := &Logger{
		level: level,
		file:  file,
		queue: make(chan entry, 8192),
	}

	l.wg.Add(1)
	go l.worker()

	return l, nil
}

func (l *Logger) worker() {
	defer l.wg.Done()
	for e := range l.queue {
		l.file.WriteString(e.line)
		if e.level >= LevelWarn {
			os.Stderr.WriteString(e.line)
		}
	}
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if level < l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	line := fmt.Sprintf("[%s] [%s] %s\n", timestamp, level, fmt.Sprintf(format, args...))

	select {
	case l.queue <- entry{level: level, line: line}:
	default:
		// Buffer full. Dropping is preferable to stalling detection.
		l.mu.Lock()
		l.dropped++
		l.mu.Unlock()
	}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(LevelError, format, args...) }
func (l *Logger) Critical(format string, args ...interface{}) {
	l.log(LevelCritical, format, args...)
}

// Dropped reports how many entries were discarded due to backpressure.
func (l *Logger) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

func (l *Logger) Close() error {
	close(l.queue)
	l.wg.Wait()
	return l.file.Close()
}

var GlobalLogger *Logger

func InitGlobalLogger(level LogLevel, path string) error {
	logger, err := NewLogger(level, path)
	if err != nil {
		return err
	}
	GlobalLogger = logger
	return nil
}

func Debug(format string, args ...interface{}) {
	if GlobalLogger != nil {
		GlobalLogger.Debug(format, args...)
	}
}

func Info(format string, args ...interface{}) {
	if GlobalLogger != nil {
		GlobalLogger.Info(format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	if GlobalLogger != nil {
		GlobalLogger.Warn(format, args...)
	}
}

func Error(format string, args ...interface{}) {
	if GlobalLogger != nil {
		GlobalLogger.Error(format, args...)
	}
}

func Critical(format string, args ...interface{}) {
	if GlobalLogger != nil {
		GlobalLogger.Critical(format, args...)
	}
}

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Message is one entry of the overlay history
type Message struct {
	Timestamp time.Time
	Component string
	Message   string
}

// String renders the message the way the overlay terminal shows it
func (m Message) String() string {
	return fmt.Sprintf("[%s] %s", m.Component, m.Message)
}

type writeTask struct {
	content string
}

// Logger provides unified debug message handling for console, file and overlay
type Logger struct {
	mu             sync.RWMutex
	out            io.Writer
	verbose        bool
	history        []Message
	maxHistoryMsgs int

	logFile       *os.File
	writeQueue    chan writeTask
	workerStopped sync.WaitGroup
	closed        bool

	now func() time.Time
}

// NewLogger creates a logger writing console lines to out (stdout when nil)
func NewLogger(out io.Writer, verbose bool) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{
		out:            out,
		verbose:        verbose,
		history:        make([]Message, 0),
		maxHistoryMsgs: 50, // Keep last 50 messages for overlay
		now:            time.Now,
	}
}

// EnableFile mirrors every message into path, written by a background worker
func (l *Logger) EnableFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.mu.Lock()
	l.logFile = f
	l.writeQueue = make(chan writeTask, 100)
	l.mu.Unlock()

	l.workerStopped.Add(1)
	go l.fileWriteWorker()
	return nil
}

func (l *Logger) fileWriteWorker() {
	defer l.workerStopped.Done()
	for task := range l.writeQueue {
		if _, err := l.logFile.WriteString(task.content); err != nil {
			fmt.Fprintf(l.out, "[LOGGER] file write failed: %v\n", err)
		}
	}
}

// Msg logs a component-tagged message
func (l *Logger) Msg(component, message string) {
	timestamp := l.now()
	line := fmt.Sprintf("[%s][%s] %s\n", timestamp.Format("15:04:05.000"), component, message)

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprint(l.out, line)

	l.history = append(l.history, Message{Timestamp: timestamp, Component: component, Message: message})
	if len(l.history) > l.maxHistoryMsgs {
		l.history = l.history[1:] // Remove oldest
	}

	if l.writeQueue != nil && !l.closed {
		select {
		case l.writeQueue <- writeTask{content: line}:
		default:
			// Queue full, drop message to prevent blocking
		}
	}
}

// Verbose logs only when verbose output is enabled
func (l *Logger) Verbose(component, message string) {
	l.mu.RLock()
	enabled := l.verbose
	l.mu.RUnlock()
	if !enabled {
		return
	}
	l.Msg(component, message)
}

// History returns a copy of the recent messages, oldest first
func (l *Logger) History() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.history))
	copy(out, l.history)
	return out
}

// Close flushes and closes the log file, if any
func (l *Logger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	if l.writeQueue != nil {
		close(l.writeQueue)
	}
	l.mu.Unlock()

	l.workerStopped.Wait()
	if l.logFile != nil {
		l.logFile.Close()
	}
}

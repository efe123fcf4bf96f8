package decisionlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Writer writes decision events to a destination
type Writer interface {
	// Write writes an event
	Write(event *Event) error

	// Close closes the writer
	Close() error
}

// stdoutWriter writes decision events to stdout as JSON
type stdoutWriter struct {
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewStdoutWriter creates a new stdout writer
func NewStdoutWriter() Writer {
	return &stdoutWriter{
		encoder: json.NewEncoder(os.Stdout),
	}
}

// Write writes an event to stdout as JSON
func (w *stdoutWriter) Write(event *Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.encoder.Encode(event)
}

// Close closes the writer (no-op for stdout)
func (w *stdoutWriter) Close() error {
	return nil
}

// fileWriter writes decision events to a file with rotation
type fileWriter struct {
	logger  *lumberjack.Logger
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewFileWriter creates a new file writer with log rotation
func NewFileWriter(filename string, maxSizeMB, maxAgeDays, maxBackups int) (Writer, error) {
	// Ensure directory exists
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	logger := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxAge:     maxAgeDays,
		MaxBackups: maxBackups,
		LocalTime:  true,
		Compress:   true,
	}

	return &fileWriter{
		logger:  logger,
		encoder: json.NewEncoder(logger),
	}, nil
}

// Write writes an event to the file
func (w *fileWriter) Write(event *Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.encoder.Encode(event)
}

// Close closes the file writer
func (w *fileWriter) Close() error {
	return w.logger.Close()
}

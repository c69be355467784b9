package main

import (
	"strings"
	"sync"
)

const logBufferLines = 1000

// LogBuffer captures the most recent log lines in memory for GET /logs
type LogBuffer struct {
	lines []string
	mu    sync.Mutex
}

func NewLogBuffer() *LogBuffer {
	return &LogBuffer{lines: make([]string, 0, logBufferLines)}
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, strings.TrimRight(string(p), "\n"))
	if len(lb.lines) > logBufferLines {
		lb.lines = lb.lines[len(lb.lines)-logBufferLines:]
	}
	return len(p), nil
}

func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}

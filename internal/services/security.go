package services

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// SecurityLogger appends admin-gate events to a log file.
type SecurityLogger struct {
	mu  sync.Mutex
	w   io.Writer
	c   io.Closer
	now func() time.Time
}

// NewSecurityLogger opens path for appending. It returns nil if the file
// cannot be opened; a nil logger discards events.
func NewSecurityLogger(path string) *SecurityLogger {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("SecurityLogger - Could not open %s: %v", path, err)
		return nil
	}
	return &SecurityLogger{w: file, c: file, now: time.Now}
}

// LogSecurityEvent writes one line: time, event, details and client IP.
func (sl *SecurityLogger) LogSecurityEvent(eventType, details, ipAddress string) {
	if sl == nil || sl.w == nil {
		return
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	timestamp := sl.now().Format("2006-01-02 15:04:05")
	entry := fmt.Sprintf("[%s] %s - %s - IP: %s\n", timestamp, eventType, details, ipAddress)
	if _, err := io.WriteString(sl.w, entry); err != nil {
		log.Printf("SecurityLogger - Write error: %v", err)
	}
}

// Close closes the log file.
func (sl *SecurityLogger) Close() {
	if sl != nil && sl.c != nil {
		sl.c.Close()
	}
}

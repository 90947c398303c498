package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BryanChi/SuperGPT-Website/internal/infrastructure"
)

// AttemptLimiter blocks a client after too many failed admin attempts inside
// a window.
type AttemptLimiter struct {
	mutex         sync.Mutex
	attemptCounts map[string]int
	lastAttempts  map[string]time.Time
	blocked       map[string]time.Time

	maxAttempts     int
	blockDuration   time.Duration
	windowDuration  time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	stopChan        chan struct{}
	stopOnce        sync.Once
}

// NewAttemptLimiter starts a limiter. maxAttempts <= 0 disables blocking.
func NewAttemptLimiter(maxAttempts int, blockDuration, windowDuration time.Duration) *AttemptLimiter {
	l := &AttemptLimiter{
		attemptCounts:   make(map[string]int),
		lastAttempts:    make(map[string]time.Time),
		blocked:         make(map[string]time.Time),
		maxAttempts:     maxAttempts,
		blockDuration:   blockDuration,
		windowDuration:  windowDuration,
		cleanupInterval: 5 * time.Minute,
		now:             time.Now,
		stopChan:        make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Blocked reports whether identifier is locked out and for how much longer.
func (l *AttemptLimiter) Blocked(identifier string) (bool, time.Duration) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	since, ok := l.blocked[identifier]
	if !ok {
		return false, 0
	}
	remaining := l.blockDuration - l.now().Sub(since)
	if remaining <= 0 {
		delete(l.blocked, identifier)
		return false, 0
	}
	return true, remaining
}

// RecordFailure counts a failed attempt and reports whether the identifier is
// now blocked.
func (l *AttemptLimiter) RecordFailure(ctx context.Context, identifier string) bool {
	if l.maxAttempts <= 0 {
		return false
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.now()
	if last, ok := l.lastAttempts[identifier]; ok && now.Sub(last) <= l.windowDuration {
		l.attemptCounts[identifier]++
	} else {
		l.attemptCounts[identifier] = 1
	}
	l.lastAttempts[identifier] = now

	if l.attemptCounts[identifier] < l.maxAttempts {
		return false
	}

	l.blocked[identifier] = now
	delete(l.attemptCounts, identifier)
	delete(l.lastAttempts, identifier)

	infrastructure.ContextLogger(ctx).WarnContext(ctx, "client blocked after repeated admin failures",
		slog.String("action", "security_violation"),
		slog.String("client", identifier),
		slog.Int("max_attempts", l.maxAttempts),
		slog.Duration("block_duration", l.blockDuration))
	return true
}

// RecordSuccess clears the failure history of identifier.
func (l *AttemptLimiter) RecordSuccess(identifier string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	delete(l.attemptCounts, identifier)
	delete(l.lastAttempts, identifier)
}

// Stats returns limiter counters.
func (l *AttemptLimiter) Stats() map[string]interface{} {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return map[string]interface{}{
		"active_attempts": len(l.attemptCounts),
		"blocked_clients": len(l.blocked),
		"max_attempts":    l.maxAttempts,
		"block_duration":  l.blockDuration.String(),
		"window_duration": l.windowDuration.String(),
	}
}

// Stop ends the cleanup goroutine.
func (l *AttemptLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
}

func (l *AttemptLimiter) cleanup() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopChan:
			return
		}
	}
}

func (l *AttemptLimiter) sweep() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.now()
	for id, last := range l.lastAttempts {
		if now.Sub(last) > l.windowDuration {
			delete(l.attemptCounts, id)
			delete(l.lastAttempts, id)
		}
	}
	for id, since := range l.blocked {
		if now.Sub(since) > l.blockDuration {
			delete(l.blocked, id)
		}
	}
}

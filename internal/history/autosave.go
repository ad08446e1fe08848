package history

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"reading-leveler/internal/logger"
)

const (
	DefaultIdle = 10 * time.Second

	minDraftRunes   = 10
	draftTitleRunes = 30
)

// AutoSaver saves a draft as a theme once it has been idle for a while.
// Each Touch restarts the idle timer.
type AutoSaver struct {
	history *History
	idle    time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	armed   bool
	stopped bool
	wg      sync.WaitGroup
}

func NewAutoSaver(h *History, idle time.Duration) *AutoSaver {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &AutoSaver{history: h, idle: idle}
}

// Touch records the latest draft. It returns false once the saver is stopped.
func (a *AutoSaver) Touch(content, grade string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return false
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.seq++
	a.armed = true
	seq := a.seq
	a.timer = time.AfterFunc(a.idle, func() { a.fire(seq, content, grade) })
	return true
}

func (a *AutoSaver) fire(seq uint64, content, grade string) {
	a.mu.Lock()
	// superseded by a later Touch
	if a.stopped || seq != a.seq {
		a.mu.Unlock()
		return
	}
	a.armed = false
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	if utf8.RuneCountInString(strings.TrimSpace(content)) <= minDraftRunes {
		return
	}
	title := truncateRunes(content, draftTitleRunes) + "..."
	if _, err := a.history.Save(context.Background(), title, content, grade); err != nil {
		logger.Logger.WithFields(logrus.Fields{"error": err}).Warn("draft auto-save failed")
	}
}

// Pending reports whether a draft is waiting for its idle timer.
func (a *AutoSaver) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.armed && !a.stopped
}

// Stop cancels the pending timer and waits for a running save to finish.
func (a *AutoSaver) Stop() {
	a.mu.Lock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()
	a.wg.Wait()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string { return truncateRunes(s, n) }

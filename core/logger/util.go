package logger

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Status maps err to the status field value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Took is the rounded time elapsed since start.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to whole milliseconds; negative values become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// Sanitize drops control and format runes except tab and newline.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes s and truncates it to max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) > max {
		r = r[:max]
	}
	return string(r)
}

// BuildRID formats the correlation id updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// sampler lets n of every d calls through. A zero ratio lets everything
// through.
type sampler struct {
	mu   sync.Mutex
	n, d int
	seq  int
}

func (s *sampler) set(n, d int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || d <= 0 {
		n, d = 0, 0
	}
	s.n, s.d, s.seq = min(n, d), d, 0
}

func (s *sampler) allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.d == 0 {
		return true
	}
	s.seq = s.seq%s.d + 1
	return s.seq <= s.n
}

// parseRatio accepts "n/d" or a bare "d" meaning 1/d. It returns 0, 0 for
// anything else, which disables sampling.
func parseRatio(raw string) (int, int) {
	raw = strings.TrimSpace(raw)
	if num, den, ok := strings.Cut(raw, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(num))
		d, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
			return 0, 0
		}
		return n, d
	}
	if d, err := strconv.Atoi(raw); err == nil && d > 0 {
		return 1, d
	}
	return 0, 0
}

package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/paydesk/core/logger"
	tghelpers "github.com/m3rciful/paydesk/core/telegram/helpers"
)

// RateLimitOptions configures RateLimitMiddleware.
type RateLimitOptions struct {
	Interval time.Duration
	// Exclude lists update classes that bypass the limit: "callback",
	// "message" or "inline_query".
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// Bypass lets a sender through unconditionally, e.g. the admin.
	Bypass func(userID int64) bool
}

func limitClass(c tele.Context) string {
	upd := c.Update()
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// RateLimitMiddleware drops updates that arrive from the same user faster
// than Interval.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	var (
		mu       sync.Mutex
		lastSeen = make(map[int64]time.Time)
		swept    time.Time
	)
	allow := func(userID int64, now time.Time) bool {
		mu.Lock()
		defer mu.Unlock()
		if now.Sub(swept) > time.Minute {
			for id, ts := range lastSeen {
				if now.Sub(ts) > opts.Interval {
					delete(lastSeen, id)
				}
			}
			swept = now
		}
		if last, ok := lastSeen[userID]; ok && now.Sub(last) < opts.Interval {
			return false
		}
		lastSeen[userID] = now
		return true
	}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if opts.Bypass != nil && opts.Bypass(user.ID) {
				return next(c)
			}
			class := limitClass(c)
			if _, skip := opts.Exclude[class]; skip {
				return next(c)
			}
			if allow(user.ID, time.Now()) {
				return next(c)
			}

			logger.Warn(tghelpers.BuildContext(c), "tg", "rate_limit",
				slog.Int64("user_id", user.ID),
				slog.String("class", class),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}

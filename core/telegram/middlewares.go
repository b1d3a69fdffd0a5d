package telegram

import (
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/paydesk/core/config"
	"github.com/m3rciful/paydesk/core/telegram/middleware"
)

// MiddlewareOptions customises DefaultMiddlewares.
type MiddlewareOptions struct {
	// OnUpdate observes the kind of every update, e.g. for metrics.
	OnUpdate func(kind string)
	// OnLimited answers a throttled update.
	OnLimited tele.HandlerFunc
	// OnPanic answers the user after a recovered handler panic.
	OnPanic tele.HandlerFunc
	// RateLimitBypass exempts senders from throttling.
	RateLimitBypass func(userID int64) bool
}

// DefaultMiddlewares builds the global chain: recover, rate limit when
// configured, logging and update metrics.
func DefaultMiddlewares(cfg *coreconfig.Config, opts MiddlewareOptions) []Middleware {
	mws := []Middleware{{Name: "recover", Use: middleware.Recover(opts.OnPanic)}}

	if cfg != nil {
		if interval := cfg.RateLimit.Interval(); interval > 0 {
			mws = append(mws, Middleware{
				Name: "rate_limit",
				Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
					Interval:  interval,
					Exclude:   cfg.RateLimit.Exclusions(),
					OnLimited: opts.OnLimited,
					Bypass:    opts.RateLimitBypass,
				}),
			})
		}
	}

	return append(mws,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.Metrics(opts.OnUpdate)},
	)
}

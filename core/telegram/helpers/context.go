package helpers

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/paydesk/core/logger"
)

// Keys under which per-update values are cached on tele.Context.
const (
	keyContext = "logger_ctx"
	keyRID     = "rid"
)

// StoreContext caches ctx on c for downstream handlers.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(keyContext, ctx)
	}
}

// ContextFrom returns the context cached by StoreContext.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(keyContext).(context.Context)
	return ctx, ok && ctx != nil
}

// ids extracts the update, chat and user ids of c. Missing parts are zero.
func ids(c tele.Context) (updateID int, chatID, userID int64) {
	if u := c.Sender(); u != nil {
		userID = u.ID
	}
	if ch := c.Chat(); ch != nil {
		chatID = ch.ID
	}
	return c.Update().ID, userID, chatID
}

// RID returns the request id of the update in c, minting and caching one
// on first use.
func RID(c tele.Context) string {
	if rid, _ := c.Get(keyRID).(string); rid != "" {
		return rid
	}
	rid := logger.BuildRID(ids(c))
	c.Set(keyRID, rid)
	return rid
}

// BuildContext returns the logging context for the update in c. The first
// call derives it from the update and caches it; later calls reuse it.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}
	updateID, chatID, userID := ids(c)
	ctx := logger.WithRID(logger.Background(), RID(c))
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the cached context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler != "" {
		ctx = logger.WithHandler(ctx, handler)
		StoreContext(c, ctx)
	}
	return ctx
}

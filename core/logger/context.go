package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	keyMeta ctxKey = iota
	keyLogger
)

// meta carries per-update correlation fields. It is copied on every With*
// call so parent contexts stay unchanged.
type meta struct {
	rid      string
	updateID int
	userID   int64
	chatID   int64
	handler  string
}

func metaFrom(ctx context.Context) meta {
	if ctx == nil {
		return meta{}
	}
	m, _ := ctx.Value(keyMeta).(meta)
	return m
}

func withMeta(ctx context.Context, fn func(*meta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	fn(&m)
	return context.WithValue(ctx, keyMeta, m)
}

// WithRID attaches the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *meta) { m.rid = rid })
}

// WithUpdateMeta attaches the Telegram update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *meta) {
		m.updateID = updateID
		m.userID = userID
		m.chatID = chatID
	})
}

// WithHandler names the handler serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *meta) { m.handler = handler })
}

func RIDFrom(ctx context.Context) string      { return metaFrom(ctx).rid }
func UpdateIDFrom(ctx context.Context) int    { return metaFrom(ctx).updateID }
func UserIDFrom(ctx context.Context) int64    { return metaFrom(ctx).userID }
func ChatIDFrom(ctx context.Context) int64    { return metaFrom(ctx).chatID }
func HandlerFrom(ctx context.Context) string  { return metaFrom(ctx).handler }

// WithLogger stores log in ctx; Event falls back to it when no component
// logger is available.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, keyLogger, log)
}

// FromContext returns the logger stored in ctx or the base logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(keyLogger).(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// appendMeta adds correlation fields from ctx that the record did not set.
func appendMeta(ctx context.Context, r *record) {
	m := metaFrom(ctx)
	if m.rid != "" {
		r.setDefault("rid", m.rid)
	}
	if m.updateID != 0 {
		r.setDefault("update_id", int64(m.updateID))
	}
	if m.userID != 0 {
		r.setDefault("user_id", m.userID)
	}
	if m.chatID != 0 {
		r.setDefault("chat_id", m.chatID)
	}
	if m.handler != "" {
		r.setDefault("handler", m.handler)
	}
}

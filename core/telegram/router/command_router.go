package router

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/paydesk/core/logger"
	tg "github.com/m3rciful/paydesk/core/telegram"
	"github.com/m3rciful/paydesk/core/telegram/middleware"
)

// CommandRouteOptions configures CommandRoutes.
type CommandRouteOptions struct {
	Admin middleware.AdminOptions
}

// CommandRoutes wraps every registered command with recovery, logging and,
// for admin-only commands, the admin gate.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	admin := middleware.AdminOnly(opts.Admin)

	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for name, cmd := range cmds {
		h := cmd.Handler
		if cmd.AdminOnly {
			h = admin(h)
		}
		h = summarized(handlerName("cmd.", name), h)
		h = middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
		routes = append(routes, tg.Route{Endpoint: name, Handler: h})
	}

	logger.Info(context.Background(), "tg.wire", "routes.commands",
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.CallbackKeys())),
	)
	return routes
}

func summarized(name string, h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		return handle(c, name, func() error { return h(c) })
	}
}

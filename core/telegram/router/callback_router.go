package router

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/paydesk/core/telegram"
	"github.com/m3rciful/paydesk/core/telegram/callbacks"
	"github.com/m3rciful/paydesk/core/telegram/middleware"
)

// CallbackRoute routes every inline button press through the registry by
// its unique key. The button spinner is always answered.
func CallbackRoute(reg *tg.Registry) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key, payload := callbacks.Parse(c.Callback())
		_ = c.Respond()

		name := handlerName("callback.", key)
		extras := []slog.Attr{slog.String("cb_key", key)}
		if payload != "" {
			extras = append(extras, slog.String("payload", payload))
		}

		h, ok := reg.Callback(key)
		if !ok {
			h = reg.CallbackNotFound()
			extras = append(extras, slog.String("reason", "not_found"))
		}
		return handle(c, name, func() error {
			if h == nil {
				return nil
			}
			return h(c)
		}, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}

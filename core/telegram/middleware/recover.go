package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/paydesk/core/logger"
	tghelpers "github.com/m3rciful/paydesk/core/telegram/helpers"
)

// Recover turns a handler panic into a logged error. When onPanic is set it
// is called to answer the user.
func Recover(onPanic tele.HandlerFunc) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				logger.Error(tghelpers.BuildContext(c), "tg", "handler.panic",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("telegram: handler panic: %v", r)
				if onPanic != nil {
					_ = onPanic(c)
				}
			}()
			return next(c)
		}
	}
}

// RecoverMiddleware recovers without answering the user.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return Recover(nil)(next)
}

package middleware

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/paydesk/core/logger"
	tghelpers "github.com/m3rciful/paydesk/core/telegram/helpers"
)

// AdminOptions configures AdminOnly.
type AdminOptions struct {
	AdminID int64
	// OnReject answers non-admin senders. When nil they are ignored silently.
	OnReject tele.HandlerFunc
}

// IsAdmin reports whether the sender of c is the configured admin.
// A zero AdminID matches nobody.
func (o AdminOptions) IsAdmin(c tele.Context) bool {
	sender := c.Sender()
	return o.AdminID != 0 && sender != nil && sender.ID == o.AdminID
}

// AdminOnly lets only the admin reach next.
func AdminOnly(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.IsAdmin(c) {
				return next(c)
			}
			var userID int64
			if s := c.Sender(); s != nil {
				userID = s.ID
			}
			logger.Debug(tghelpers.BuildContext(c), "tg", "access.denied",
				slog.Int64("user_id", userID),
			)
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}

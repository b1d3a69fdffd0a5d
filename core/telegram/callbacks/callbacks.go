// Package callbacks decodes inline button data produced by telebot.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Prefix marks callback data built with tele.ReplyMarkup.Data.
const Prefix = "\f"

// Parse splits callback data in the "\f<unique>|<payload>" form.
// When telebot already resolved the unique key, Data holds only the payload.
func Parse(cb *tele.Callback) (unique, payload string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, Prefix)
	unique, payload, _ = strings.Cut(raw, "|")
	return strings.TrimSpace(unique), payload
}

// Key returns the unique key of the callback in c.
func Key(c tele.Context) string {
	k, _ := Parse(c.Callback())
	return k
}

// Payload returns the payload of the callback in c.
func Payload(c tele.Context) string {
	_, p := Parse(c.Callback())
	return p
}

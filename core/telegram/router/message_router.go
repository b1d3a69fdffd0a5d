package router

import (
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/paydesk/core/telegram"
	"github.com/m3rciful/paydesk/core/telegram/middleware"
)

// Conversation receives messages that are not commands.
type Conversation interface {
	Text(c tele.Context) error
	Photo(c tele.Context) error
	// Media handles attachments other than photos.
	Media(c tele.Context) error
}

// MessageOptions configures MessageRoutes.
type MessageOptions struct {
	// Intercept sees text before the conversation. It reports whether it
	// consumed the message.
	Intercept func(c tele.Context) (bool, error)
}

// MessageRoutes routes text, photos and other attachments. Text matching a
// registered command is dispatched to it, so "/cmd@bot" and trailing
// arguments still reach the command handler.
func MessageRoutes(conv Conversation, reg *tg.Registry, opts MessageOptions) []tg.Route {
	text := func(c tele.Context) error {
		if opts.Intercept != nil {
			var err error
			handled := false
			herr := handle(c, "intercept", func() error {
				handled, err = opts.Intercept(c)
				return err
			})
			if handled || herr != nil {
				return herr
			}
		}
		if reg != nil {
			if name, cmd, ok := reg.Lookup(c.Text()); ok && !cmd.AdminOnly {
				return handle(c, handlerName("cmd.", name), func() error { return cmd.Handler(c) })
			}
		}
		return handle(c, "conversation.text", func() error { return conv.Text(c) })
	}
	photo := func(c tele.Context) error {
		return handle(c, "conversation.photo", func() error { return conv.Photo(c) })
	}
	media := func(c tele.Context) error {
		return handle(c, "conversation.media", func() error { return conv.Media(c) })
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}
	routes := []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(text)},
		{Endpoint: tele.OnPhoto, Handler: wrap(photo)},
	}
	for _, ep := range []string{tele.OnDocument, tele.OnVideo, tele.OnSticker, tele.OnVoice, tele.OnAnimation} {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: wrap(media)})
	}
	return routes
}

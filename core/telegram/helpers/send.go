package helpers

import (
	"bytes"
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/paydesk/core/logger"
	"github.com/m3rciful/paydesk/core/telegram/sender"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by Deliver. With no
// dispatcher set, sends run inline.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := globalDispatcher.Load()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	if err := disp.Enqueue(ctx, action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("action", action),
				slog.String("endpoint", endpoint),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

// Message is an outgoing reply to the current chat.
type Message struct {
	Text      string
	Photo     []byte
	Markup    *tele.ReplyMarkup
	ParseMode tele.ParseMode
	// Edit replaces the message a callback came from instead of sending.
	Edit bool
}

func (m Message) options() *tele.SendOptions {
	return &tele.SendOptions{ParseMode: m.ParseMode, ReplyMarkup: m.Markup}
}

// Deliver sends m to the chat of c. A photo is always sent as a new message
// with Text as caption. A failed edit falls back to a new message.
func Deliver(c tele.Context, m Message) error {
	switch {
	case len(m.Photo) > 0:
		return sendAsync(c, "send.photo", "sendPhoto", func() error {
			photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(m.Photo)), Caption: m.Text}
			return c.Send(photo, m.options())
		})

	case m.Edit && c.Callback() != nil && c.Message() != nil:
		return sendAsync(c, "edit.text", "editMessageText", func() error {
			err := c.Edit(m.Text, m.options())
			if err == nil || errors.Is(err, tele.ErrSameMessageContent) {
				return nil
			}
			logger.Debug(BuildContext(c), "tg.sender", "edit.fallback", slog.String("err", err.Error()))
			return c.Send(m.Text, m.options())
		})
	}

	return sendAsync(c, "send.text", "sendMessage", func() error {
		return c.Send(m.Text, m.options())
	})
}

// SendText sends plain text to the current chat.
func SendText(c tele.Context, text string) error {
	return Deliver(c, Message{Text: text})
}

package middleware

import (
	tele "gopkg.in/telebot.v4"
)

const (
	keyMessages = "messages"
	keyKeyboard = "kb"
)

// Update kinds reported by UpdateKind.
const (
	KindCommand  = "command"
	KindCallback = "callback"
	KindText     = "text"
	KindPhoto    = "photo"
	KindDocument = "document"
	KindOther    = "other"
)

// UpdateKind classifies the update in c.
func UpdateKind(c tele.Context) string {
	upd := c.Update()
	switch {
	case upd.Callback != nil:
		return KindCallback
	case upd.Message == nil:
		return KindOther
	case upd.Message.Photo != nil:
		return KindPhoto
	case upd.Message.Document != nil:
		return KindDocument
	case len(upd.Message.Text) > 0 && upd.Message.Text[0] == '/':
		return KindCommand
	case upd.Message.Text != "":
		return KindText
	}
	return KindOther
}

// countingContext counts replies sent through the wrapped context.
type countingContext struct{ tele.Context }

func (m countingContext) observe(opts []interface{}) {
	n, _ := m.Get(keyMessages).(int)
	m.Set(keyMessages, n+1)
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				m.Set(keyKeyboard, true)
			}
		case *tele.ReplyMarkup:
			if v != nil {
				m.Set(keyKeyboard, true)
			}
		}
	}
}

// Send proxies tele.Context.Send.
func (m countingContext) Send(what interface{}, opts ...interface{}) error {
	err := m.Context.Send(what, opts...)
	if err == nil {
		m.observe(opts)
	}
	return err
}

// Reply proxies tele.Context.Reply.
func (m countingContext) Reply(what interface{}, opts ...interface{}) error {
	err := m.Context.Reply(what, opts...)
	if err == nil {
		m.observe(opts)
	}
	return err
}

// Edit proxies tele.Context.Edit.
func (m countingContext) Edit(what interface{}, opts ...interface{}) error {
	err := m.Context.Edit(what, opts...)
	if err == nil {
		m.observe(opts)
	}
	return err
}

// EditOrSend proxies tele.Context.EditOrSend.
func (m countingContext) EditOrSend(what interface{}, opts ...interface{}) error {
	err := m.Context.EditOrSend(what, opts...)
	if err == nil {
		m.observe(opts)
	}
	return err
}

// Metrics counts replies per update for the handler summary and reports the
// update kind to observe, if set.
func Metrics(observe func(kind string)) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if observe != nil {
				observe(UpdateKind(c))
			}
			c.Set(keyMessages, 0)
			c.Set(keyKeyboard, false)
			return next(countingContext{Context: c})
		}
	}
}

// GetCounters reads the reply count and keyboard flag recorded by Metrics.
func GetCounters(c tele.Context) (int, bool) {
	msgs, _ := c.Get(keyMessages).(int)
	kb, _ := c.Get(keyKeyboard).(bool)
	return msgs, kb
}

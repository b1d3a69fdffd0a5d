// Package keyboard builds inline keyboards from plain button descriptions
// so callers outside the transport never touch telebot types.
package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn describes one inline button. Unique selects the callback
// handler and Data is passed to it as payload.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
}

// Inline builds an inline keyboard from rows of buttons. It returns nil for
// an empty layout so the result can be passed straight to Send.
func Inline(rows ...[]InlineBtn) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = *markup.Data(btn.Text, btn.Unique, btn.Data).Inline()
		}
		inline = append(inline, r)
	}
	markup.InlineKeyboard = inline
	return markup
}

// Chunk splits buttons into rows of at most n. n <= 1 yields one per row.
func Chunk(buttons []InlineBtn, n int) [][]InlineBtn {
	if n < 1 {
		n = 1
	}
	rows := make([][]InlineBtn, 0, (len(buttons)+n-1)/n)
	for i := 0; i < len(buttons); i += n {
		end := i + n
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}

package helpers

import tele "gopkg.in/telebot.v4"

// Sender returns the id and username of the update author, or zero values
// when the update has none.
func Sender(c tele.Context) (int64, string) {
	u := c.Sender()
	if u == nil {
		return 0, ""
	}
	return u.ID, u.Username
}

// PhotoFileID returns the file id of the photo in the current message.
// telebot keeps only the largest size on Message.Photo.
func PhotoFileID(c tele.Context) string {
	msg := c.Message()
	if msg == nil || msg.Photo == nil {
		return ""
	}
	return msg.Photo.FileID
}

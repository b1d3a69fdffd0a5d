package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name          string
		cb            *tele.Callback
		unique, value string
	}{
		{"nil", nil, "", ""},
		{"encoded", &tele.Callback{Data: "\fdep_amount|100"}, "dep_amount", "100"},
		{"no payload", &tele.Callback{Data: "\fmenu_deposit"}, "menu_deposit", ""},
		{"empty payload", &tele.Callback{Data: "\fcancel|"}, "cancel", ""},
		{"pipe in payload", &tele.Callback{Data: "\fx|a|b"}, "x", "a|b"},
		{"resolved", &tele.Callback{Unique: "dep_pay", Data: "7"}, "dep_pay", "7"},
		{"plain", &tele.Callback{Data: "legacy"}, "legacy", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, p := Parse(tc.cb)
			if u != tc.unique || p != tc.value {
				t.Fatalf("Parse = (%q, %q), want (%q, %q)", u, p, tc.unique, tc.value)
			}
		})
	}
}

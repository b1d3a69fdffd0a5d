package keyboard

import (
	"strings"
	"testing"
)

func TestInline(t *testing.T) {
	if Inline() != nil {
		t.Fatal("empty layout must be nil")
	}
	m := Inline(
		[]InlineBtn{{Text: "10", Unique: "dep_amount", Data: "10"}, {Text: "50", Unique: "dep_amount", Data: "50"}},
		nil,
		[]InlineBtn{{Text: "Cancel", Unique: "cancel"}},
	)
	if len(m.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d", len(m.InlineKeyboard))
	}
	first := m.InlineKeyboard[0][1]
	if first.Text != "50" || !strings.Contains(first.Data, "dep_amount") || !strings.HasSuffix(first.Data, "|50") {
		t.Fatalf("button = %+v", first)
	}
}

func TestChunk(t *testing.T) {
	btns := make([]InlineBtn, 5)
	if rows := Chunk(btns, 3); len(rows) != 2 || len(rows[0]) != 3 || len(rows[1]) != 2 {
		t.Fatalf("chunk 3 = %v", rows)
	}
	if rows := Chunk(btns, 0); len(rows) != 5 {
		t.Fatalf("chunk 0 = %d rows", len(rows))
	}
	if rows := Chunk(nil, 2); len(rows) != 0 {
		t.Fatalf("chunk nil = %v", rows)
	}
}

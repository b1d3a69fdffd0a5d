package format

import "testing"

func TestEscapeMarkdownV2(t *testing.T) {
	got, err := EscapeMarkdown("₹100.00 (ref-1) a_b!", MarkdownV2)
	if err != nil {
		t.Fatalf("escape: %v", err)
	}
	want := `₹100\.00 \(ref\-1\) a\_b\!`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if V2("a.b") != `a\.b` {
		t.Fatalf("V2 = %q", V2("a.b"))
	}
}

func TestEscapeMarkdownV1(t *testing.T) {
	got, _ := EscapeMarkdown("*bold* _x_ [l]", MarkdownV1)
	if got != `\*bold\* \_x\_ \[l]` {
		t.Fatalf("got %q", got)
	}
	if _, err := EscapeMarkdown("x", 3); err == nil {
		t.Fatal("unsupported version accepted")
	}
}

func TestCode(t *testing.T) {
	if got := Code("CONFIRM 123456789012"); got != "`CONFIRM 123456789012`" {
		t.Fatalf("code = %q", got)
	}
	if got := Code("a`b"); got != "`a\\`b`" {
		t.Fatalf("code = %q", got)
	}
}

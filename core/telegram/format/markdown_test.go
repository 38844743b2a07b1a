package format

import "testing"

func TestEscapeMarkdownV1(t *testing.T) {
	got, err := EscapeMarkdown("a_b *c* [d] `e`", MarkdownV1, "")
	if err != nil {
		t.Fatalf("escape: %v", err)
	}
	want := "a\\_b \\*c\\* \\[d] \\`e\\`"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	got, err := EscapeMarkdown("1+1=2!", MarkdownV2, "")
	if err != nil {
		t.Fatalf("escape: %v", err)
	}
	if got != `1\+1\=2\!` {
		t.Fatalf("got %q", got)
	}
}

func TestEscapeMarkdownUnknownVersion(t *testing.T) {
	if _, err := EscapeMarkdown("x", 3, ""); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

package models

import "testing"

func TestTableForKind(t *testing.T) {
	cases := map[string]string{
		KindUser:  "users",
		KindTopic: "topics",
		KindStory: "stories",
		KindReply: "replies",
	}

	for kind, want := range cases {
		table, ok := TableForKind(kind)
		if !ok || table != want {
			t.Fatalf("expected %s -> %s, got %q (ok=%v)", kind, want, table, ok)
		}
	}

	for _, kind := range []string{KindTag, KindView, "widget"} {
		if _, ok := TableForKind(kind); ok {
			t.Fatalf("expected no counter table for %s", kind)
		}
	}
}

func TestKindFromHash(t *testing.T) {
	cases := map[string]string{
		"S0A2B": KindStory,
		"R0A2B": KindReply,
		"T0A2B": KindTopic,
		"U0A2B": KindUser,
	}
	for hash, want := range cases {
		kind, ok := KindFromHash(hash)
		if !ok || kind != want {
			t.Fatalf("expected %s -> %s, got %q (ok=%v)", hash, want, kind, ok)
		}
	}

	for _, hash := range []string{"", "90A", "x0A"} {
		if _, ok := KindFromHash(hash); ok {
			t.Fatalf("expected no kind for %q", hash)
		}
	}
}

func TestIsCounterColumn(t *testing.T) {
	allowed := []struct{ table, column string }{
		{"users", "followers"},
		{"users", "following"},
		{"topics", "subscribers"},
		{"stories", "votes"},
		{"replies", "likes"},
	}
	for _, tc := range allowed {
		if !IsCounterColumn(tc.table, tc.column) {
			t.Fatalf("expected %s.%s to be a counter column", tc.table, tc.column)
		}
	}

	denied := []struct{ table, column string }{
		{"stories", "content"},
		{"users", "password"},
		{"replies", "votes"},
		{"widgets", "views"},
		{"stories", "views; DROP TABLE stories"},
	}
	for _, tc := range denied {
		if IsCounterColumn(tc.table, tc.column) {
			t.Fatalf("expected %s.%s to be rejected", tc.table, tc.column)
		}
	}
}

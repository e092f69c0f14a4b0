package tools

import "testing"

func TestParseLineRange(t *testing.T) {
	tests := []struct {
		name      string
		r         string
		total     int
		wantStart int
		wantEnd   int
		wantErr   bool
	}{
		{"simple", "2-4", 10, 2, 4, false},
		{"clamped start", "0-4", 10, 1, 4, false},
		{"clamped end", "2-100", 10, 2, 10, false},
		{"start after end", "5-2", 10, 0, 0, true},
		{"not a range", "abc", 10, 0, 0, true},
		{"single number", "5", 10, 0, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := parseLineRange(tc.r, tc.total)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got start=%d end=%d", start, end)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if start != tc.wantStart || end != tc.wantEnd {
				t.Fatalf("got (%d,%d), want (%d,%d)", start, end, tc.wantStart, tc.wantEnd)
			}
		})
	}
}

func TestApplyReplace(t *testing.T) {
	original := "hello world\nhello again\n"

	if _, err := applyReplace(original, EditArgs{OldText: "hello", NewText: "bye"}); err == nil {
		t.Fatal("expected error for non-unique oldText")
	}

	out, err := applyReplace(original, EditArgs{OldText: "hello world", NewText: "bye world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "bye world\nhello again\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}

	if _, err := applyReplace(original, EditArgs{OldText: "not present", NewText: "x"}); err == nil {
		t.Fatal("expected error for missing oldText")
	}
	if _, err := applyReplace(original, EditArgs{NewText: "x"}); err == nil {
		t.Fatal("expected error when oldText is empty")
	}
}

func TestApplyDeleteByOldText(t *testing.T) {
	original := "keep\nremove me\nkeep too\n"
	out, err := applyDelete(original, EditArgs{OldText: "remove me\n"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "keep\nkeep too\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestApplyDeleteByLineRange(t *testing.T) {
	original := "one\ntwo\nthree\nfour"
	out, err := applyDelete(original, EditArgs{LineRange: "2-3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "one\nfour"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestApplyDeleteRequiresOldTextOrLineRange(t *testing.T) {
	if _, err := applyDelete("a\nb\n", EditArgs{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestApplyInsert(t *testing.T) {
	original := "one\ntwo\nthree"
	out, err := applyInsert(original, EditArgs{LineRange: "1-1", NewText: "inserted"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "one\ninserted\ntwo\nthree"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestApplyInsertRequiresLineRange(t *testing.T) {
	if _, err := applyInsert("a\nb\n", EditArgs{NewText: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestApplyEditOperationAppendPrependRewrite(t *testing.T) {
	out, err := applyEditOperation("hello\n", EditArgs{Operation: "append", NewText: "world"})
	if err != nil || out != "hello\nworld" {
		t.Fatalf("append: got %q, err %v", out, err)
	}

	out, err = applyEditOperation("hello", EditArgs{Operation: "append", NewText: "world"})
	if err != nil || out != "hello\nworld" {
		t.Fatalf("append without trailing newline: got %q, err %v", out, err)
	}

	out, err = applyEditOperation("world", EditArgs{Operation: "prepend", NewText: "hello "})
	if err != nil || out != "hello world" {
		t.Fatalf("prepend: got %q, err %v", out, err)
	}

	out, err = applyEditOperation("old content", EditArgs{Operation: "rewrite", NewText: "new content"})
	if err != nil || out != "new content" {
		t.Fatalf("rewrite: got %q, err %v", out, err)
	}

	if _, err := applyEditOperation("x", EditArgs{Operation: "bogus"}); err == nil {
		t.Fatal("expected error for unknown operation")
	}
}

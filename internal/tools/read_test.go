package tools

import "testing"

func TestParseReadLineRange(t *testing.T) {
	tests := []struct {
		name      string
		r         string
		total     int
		wantStart int
		wantEnd   int
		wantErr   bool
	}{
		{"dash form", "2-4", 10, 2, 4, false},
		{"comma form", "2,4", 10, 2, 4, false},
		{"bracket form", "[2,4]", 10, 2, 4, false},
		{"quoted bracket form", "b'[2,4]'", 10, 2, 4, false},
		{"clamped", "0-100", 10, 1, 10, false},
		{"empty file", "1-1", 0, 0, 0, true},
		{"start after end", "5-2", 10, 0, 0, true},
		{"garbage", "nope", 10, 0, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := parseReadLineRange(tc.r, tc.total)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got (%d,%d)", start, end)
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

func TestDetectEncoding(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{"utf-8 bom", []byte{0xEF, 0xBB, 0xBF, 'h', 'i'}, "utf-8"},
		{"utf-16 le bom", []byte{0xFF, 0xFE, 'h', 0x00}, "utf-16"},
		{"utf-16 be bom", []byte{0xFE, 0xFF, 0x00, 'h'}, "utf-16"},
		{"utf-32 le bom", []byte{0xFF, 0xFE, 0x00, 0x00, 'h', 0, 0, 0}, "utf-32"},
		{"utf-32 be bom", []byte{0x00, 0x00, 0xFE, 0xFF, 0, 0, 0, 'h'}, "utf-32"},
		{"ascii", []byte("plain text"), "ascii"},
		{"non-ascii no bom", []byte{0xC3, 0xA9}, "utf-8"}, // "é" in utf-8
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := detectEncoding(tc.raw)
			if got != tc.want {
				t.Fatalf("detectEncoding(%v) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestDecodeUTF16RoundTrip(t *testing.T) {
	// "hi" little-endian with BOM.
	raw := []byte{0xFF, 0xFE, 'h', 0x00, 'i', 0x00}
	got := decodeUTF16(raw)
	if got != "hi" {
		t.Fatalf("got %q, want %q", got, "hi")
	}
}

func TestNumberLines(t *testing.T) {
	got := numberLines([]string{"a", "b"}, 3)
	want := "3: a\n4: b\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

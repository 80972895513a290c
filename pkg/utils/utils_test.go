package utils

import (
	"testing"
	"time"
)

func TestSanitizeString(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  hello  ", "hello"},
		{"name\x00with\x1bcontrol", "namewithcontrol"},
		{"keeps\ttabs\nand\nnewlines", "keeps\ttabs\nand\nnewlines"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SanitizeString(tc.in); got != tc.want {
			t.Errorf("SanitizeString(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("short", 10); got != "short" {
		t.Errorf("unexpected truncation: %q", got)
	}
	if got := TruncateString("a long display name", 10); got != "a long ..." {
		t.Errorf("TruncateString = %q", got)
	}
	if got := TruncateString("abcdef", 2); got != "ab" {
		t.Errorf("tiny max: %q", got)
	}
}

func TestMaskSensitive(t *testing.T) {
	if got := MaskSensitive("secrettoken", 4); got != "secr*******" {
		t.Errorf("MaskSensitive = %q", got)
	}
	if got := MaskSensitive("ab", 4); got != "**" {
		t.Errorf("short input: %q", got)
	}
}

func TestIsEmpty(t *testing.T) {
	if !IsEmpty("   \t\n") {
		t.Error("whitespace-only must be empty")
	}
	if IsEmpty(" x ") {
		t.Error("non-blank must not be empty")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{2500 * time.Millisecond, "2.50s"},
		{90 * time.Second, "1m30s"},
		{61 * time.Minute, "1h1m"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.d); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestParseDurationSafe(t *testing.T) {
	if got := ParseDurationSafe("250ms", time.Second); got != 250*time.Millisecond {
		t.Errorf("valid input: %v", got)
	}
	if got := ParseDurationSafe("garbage", time.Second); got != time.Second {
		t.Errorf("fallback: %v", got)
	}
}

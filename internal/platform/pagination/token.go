// Package pagination implements the opaque cursor tokens used by the
// Firestore-backed list queries. A token carries the last document's sort key
// and id so the next page can resume with a StartAfter clause.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultPageSize is the number of items returned when the client omits a limit.
	DefaultPageSize = 20
	// MaxPageSize caps the supported limit to prevent unbounded queries.
	MaxPageSize = 100
)

// ErrInvalidPageToken is returned when a cursor token cannot be decoded.
var ErrInvalidPageToken = errors.New("pagination: invalid page token")

// ClampLimit normalises a client-supplied limit into the supported range.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

// EncodeToken builds an opaque cursor from a sort key and document id.
func EncodeToken(key, docID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key + "|" + docID))
}

// DecodeToken parses a cursor produced by EncodeToken.
func DecodeToken(token string) (string, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return "", "", ErrInvalidPageToken
	}
	return parts[0], parts[1], nil
}

// EncodeTimeToken builds a cursor for queries ordered by a timestamp field.
func EncodeTimeToken(ts time.Time, docID string) string {
	return EncodeToken(ts.UTC().Format(time.RFC3339Nano), docID)
}

// DecodeTimeToken parses a cursor produced by EncodeTimeToken.
func DecodeTimeToken(token string) (time.Time, string, error) {
	key, docID, err := DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	ts, err := time.Parse(time.RFC3339Nano, key)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return ts, docID, nil
}

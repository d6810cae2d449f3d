package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// Cursor is a decoded pagination position: the id and sort timestamp of
// the last item on the previous page.
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

var ErrInvalidCursor = errors.New("invalid cursor format")

// EncodeCursor packs an id and timestamp into an opaque URL-safe token.
// Returns "" for an empty id, meaning no further pages.
func EncodeCursor(lastID string, ts time.Time) string {
	if lastID == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(
		[]byte(lastID + "|" + ts.UTC().Format(time.RFC3339Nano)))
}

// DecodeCursor reverses EncodeCursor. An empty token decodes to a nil
// cursor (first page). Tokens produced by the legacy std encoding are
// still accepted.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(token)
		if err != nil {
			return nil, ErrInvalidCursor
		}
	}
	id, tsText, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, tsText)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{LastID: id, Timestamp: ts}, nil
}

// Package pagination implements keyset paging over rows ordered newest first
// by (created_at, id).
package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Cursor marks the last row of the previous page. The next page starts
// strictly after it.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Window is a normalized page request. Fetch is one larger than Size so the
// caller can tell whether another page exists.
type Window struct {
	Size  int
	Fetch int
	After *Cursor
}

// NewWindow normalizes limit into [1, MaxLimit] and decodes token. An empty
// token starts at the newest row.
func NewWindow(limit int, token string) (Window, error) {
	size := limit
	switch {
	case size <= 0:
		size = DefaultLimit
	case size > MaxLimit:
		size = MaxLimit
	}
	after, err := Decode(token)
	if err != nil {
		return Window{}, err
	}
	return Window{Size: size, Fetch: size + 1, After: after}, nil
}

// Trim cuts rows down to the window size and returns the cursor for the next
// page, or nil when rows was the final page. key extracts the ordering key.
func Trim[T any](w Window, rows []T, key func(T) Cursor) ([]T, *Cursor) {
	if w.Size <= 0 || len(rows) <= w.Size {
		return rows, nil
	}
	rows = rows[:w.Size]
	next := key(rows[len(rows)-1])
	return rows, &next
}

// Encode renders c as an opaque URL-safe token.
func Encode(c *Cursor) string {
	if c == nil {
		return ""
	}
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 36) + "." + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a token produced by Encode.
func Decode(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	stamp, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, fmt.Errorf("malformed cursor")
	}
	nanos, err := strconv.ParseInt(stamp, 36, 64)
	if err != nil {
		return nil, fmt.Errorf("cursor timestamp: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("cursor id: %w", err)
	}
	return &Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: parsed}, nil
}

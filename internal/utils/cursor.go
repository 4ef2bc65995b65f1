package utils

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

var ErrBadCursor = errors.New("malformed cursor")

// EncodeCursor packs the (created_at, id) position of the last row on a page
// into an opaque token. Opaque so clients cannot construct or reorder them.
func EncodeCursor(createdAt time.Time, id string) string {
	raw := createdAt.UTC().Format(time.RFC3339Nano) + "|" + id

	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(cursor string) (time.Time, string, error) {
	if cursor == "" {
		return time.Time{}, "", nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)

	if err != nil {
		return time.Time{}, "", ErrBadCursor
	}

	ts, id, found := strings.Cut(string(raw), "|")

	if !found || id == "" {
		return time.Time{}, "", ErrBadCursor
	}

	createdAt, err := time.Parse(time.RFC3339Nano, ts)

	if err != nil {
		return time.Time{}, "", ErrBadCursor
	}

	return createdAt, id, nil
}

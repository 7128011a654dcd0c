package pagination

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Cursor is the canonical, opaque pagination token (pre-encoding) with short field names to
// minimize payload size. It is serialized to minified JSON and encoded with URL-safe base64.
//
// Fields:
//   - v:   version of the cursor schema
//   - rid: result-set ID (table handle or run ID) the rows were computed from
//   - k:   result kind, e.g. "exposure" or "options"
//   - m:   optional month filter (YYYY-MM)
//   - off: row offset from the start of the result set
//   - ps:  page size in rows
//   - iat: issued-at timestamp (unix seconds)
//   - qh:  optional hash of the inputs that produced the result set
type Cursor struct {
	V   int    `json:"v"`
	Rid string `json:"rid"`
	K   string `json:"k"`
	M   string `json:"m,omitempty"`
	Off int    `json:"off"`
	Ps  int    `json:"ps"`
	Iat int64  `json:"iat"`
	Qh  string `json:"qh,omitempty"`
}

// EncodeCursor serializes and encodes the cursor as URL-safe base64 (without padding).
func EncodeCursor(c Cursor) (string, error) {
	if err := validate(&c); err != nil {
		return "", err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor decodes a URL-safe base64 token and parses the JSON cursor.
func DecodeCursor(token string) (*Cursor, error) {
	t := strings.TrimSpace(token)
	if t == "" {
		return nil, errors.New("cursor: empty token")
	}
	data, err := base64.RawURLEncoding.DecodeString(t)
	if err != nil {
		return nil, fmt.Errorf("cursor: invalid base64: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("cursor: invalid json: %w", err)
	}
	if err := validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// validate performs structural checks and defaulting.
func validate(c *Cursor) error {
	if c.V <= 0 {
		c.V = 1
	}
	if c.Iat == 0 {
		c.Iat = time.Now().Unix()
	}
	if strings.TrimSpace(c.Rid) == "" {
		return errors.New("cursor: rid (result id) required")
	}
	if strings.TrimSpace(c.K) == "" {
		return errors.New("cursor: k (result kind) required")
	}
	if c.Off < 0 {
		return errors.New("cursor: off must be >= 0")
	}
	if c.Ps <= 0 {
		return errors.New("cursor: ps must be > 0")
	}
	return nil
}

// NextOffset computes the next offset after returning n rows.
func NextOffset(curr, n int) int {
	if curr < 0 {
		curr = 0
	}
	if n <= 0 {
		return curr
	}
	return curr + n
}

// HashInputs returns a short stable digest of the given parts for binding a
// cursor to the inputs that produced its result set.
func HashInputs(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Page slices rows[off:off+ps] and reports the offset of the next page, or -1
// when the slice reaches the end.
func Page[T any](rows []T, off, ps int) ([]T, int) {
	if off < 0 {
		off = 0
	}
	if off >= len(rows) {
		return nil, -1
	}
	end := off + ps
	if ps <= 0 || end >= len(rows) {
		return rows[off:], -1
	}
	return rows[off:end], end
}

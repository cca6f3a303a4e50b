package feed

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/d60-Lab/social-feed/pkg/feederr"
)

// Cursor encodes the natural sort key (created_at, id) of the last item the
// client has seen. Offsets are never used: an insertion ahead of the window
// shifts every offset, a key-set cursor stays put.
type Cursor struct {
	// TS is UnixNano of the last item's creation time.
	TS int64 `json:"t"`
	// ID breaks ties between posts sharing a timestamp (ascending).
	ID string `json:"id"`
}

// Time returns the cursor position as time.Time.
func (c Cursor) Time() time.Time { return time.Unix(0, c.TS) }

// Encode renders the cursor as an opaque URL-safe token.
func Encode(c Cursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses a client-supplied token. A token that does not decode to a
// well-formed cursor is an InvalidOperation, not a server error.
func Decode(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, feederr.Invalid("malformed cursor")
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, feederr.Invalid("malformed cursor")
	}
	if c.TS == 0 || c.ID == "" {
		return Cursor{}, feederr.Invalid("malformed cursor")
	}
	return c, nil
}

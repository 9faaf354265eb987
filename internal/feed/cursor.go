package feed

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"thirdcoast.systems/reelfeed/internal/pipeline/faults"
)

// cursor pins a position in the (created_at DESC, id DESC) total order over
// ready videos. It is opaque to clients: base64 over a small JSON payload.
type cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

func encodeCursor(c cursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(s string) (cursor, error) {
	var c cursor
	if s == "" {
		return c, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, faults.Validationf("malformed cursor")
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, faults.Validationf("malformed cursor")
	}
	if c.CreatedAt.IsZero() || c.ID == uuid.Nil {
		return c, faults.Validationf("malformed cursor")
	}
	return c, nil
}

// Package hooks receives push notifications from external collaborators.
package hooks

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/reelfeed/cmd/web/handlers/common"
	"thirdcoast.systems/reelfeed/internal/pipeline/faults"
	"thirdcoast.systems/reelfeed/internal/pipeline/ingest"
)

// HandleStorageEvent serves POST /hooks/storage-events, the webhook object
// storage delivers "object created" notifications to. Delivery is at least
// once; the ingest handler absorbs duplicates.
func HandleStorageEvent(h *ingest.Handler) echo.HandlerFunc {
	return func(c echo.Context) error {
		var ev ingest.StorageEvent
		if err := c.Bind(&ev); err != nil {
			return common.ErrBadRequest("invalid event payload")
		}

		if err := h.HandleEvent(c.Request().Context(), ev); err != nil {
			if faults.KindOf(err) == faults.KindValidation {
				return common.ErrBadRequest(err.Error())
			}
			slog.Error("storage event handling failed", "key", ev.Key, "error", err)
			// Non-2xx makes the notification service redeliver; ingest is
			// idempotent so that is the retry path.
			return common.ErrInternal("ingest failed")
		}
		return c.NoContent(204)
	}
}

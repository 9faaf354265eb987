package feed_api

import (
	"errors"
	"log/slog"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/reelfeed/cmd/web/handlers/common"
	"thirdcoast.systems/reelfeed/internal/video"
)

// HandleStatus serves GET /api/videos/:id/status so clients polling an
// individual upload see failure explicitly instead of waiting forever on a
// video that will never reach the feed.
func HandleStatus(store video.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}

		v, err := store.Get(c.Request().Context(), id)
		if err != nil {
			if errors.Is(err, video.ErrNotFound) {
				return common.ErrNotFound("unknown video")
			}
			slog.Error("video status lookup failed", "video_id", id, "error", err)
			return common.ErrInternal("lookup failed")
		}

		resp := map[string]any{
			"id":     v.ID.String(),
			"status": string(v.Status),
		}
		if v.Status == video.StatusFailed {
			resp["failure_reason"] = v.FailureReason
		}
		return c.JSON(200, resp)
	}
}

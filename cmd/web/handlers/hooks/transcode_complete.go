package hooks

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/reelfeed/cmd/web/handlers/common"
	"thirdcoast.systems/reelfeed/internal/pipeline/completion"
	"thirdcoast.systems/reelfeed/internal/pipeline/faults"
	"thirdcoast.systems/reelfeed/internal/transcoder"
)

// HandleTranscodeComplete serves POST /hooks/transcode-complete for engines
// that push their terminal signals instead of being polled. Both wirings
// funnel into the same completion handler.
func HandleTranscodeComplete(h *completion.Handler) echo.HandlerFunc {
	return func(c echo.Context) error {
		var sig transcoder.CompletionSignal
		if err := c.Bind(&sig); err != nil {
			return common.ErrBadRequest("invalid completion payload")
		}

		if err := h.Handle(c.Request().Context(), sig); err != nil {
			if faults.KindOf(err) == faults.KindValidation {
				return common.ErrBadRequest(err.Error())
			}
			slog.Error("completion signal handling failed", "job_ref", sig.JobRef, "error", err)
			return common.ErrInternal("completion failed")
		}
		return c.NoContent(204)
	}
}

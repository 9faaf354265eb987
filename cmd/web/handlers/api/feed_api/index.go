// Package feed_api provides the public feed API handlers.
package feed_api

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"thirdcoast.systems/reelfeed/cmd/web/handlers/common"
	"thirdcoast.systems/reelfeed/internal/feed"
)

const defaultLimit = 10

var validate = validator.New()

type indexParams struct {
	Cursor string `query:"cursor"`
	Limit  int    `query:"limit" validate:"min=1,max=50"`
}

// HandleIndex serves GET /api/feed?cursor=<opaque>&limit=<1..50>.
func HandleIndex(svc *feed.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := indexParams{Limit: defaultLimit}
		if err := c.Bind(&params); err != nil {
			return common.ErrBadRequest("limit must be an integer")
		}
		if err := validate.Struct(params); err != nil {
			return common.ErrBadRequest(fmt.Sprintf("limit must be between %d and %d", feed.MinLimit, feed.MaxLimit))
		}

		page, err := svc.GetPage(c.Request().Context(), params.Cursor, params.Limit)
		if err != nil {
			return common.FromFault(err)
		}
		if page.Items == nil {
			page.Items = []feed.Item{}
		}
		return c.JSON(200, page)
	}
}

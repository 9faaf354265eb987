package web

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"thirdcoast.systems/reelfeed/cmd/web/handlers/api/feed_api"
	"thirdcoast.systems/reelfeed/cmd/web/handlers/hooks"
	"thirdcoast.systems/reelfeed/internal/feed"
	"thirdcoast.systems/reelfeed/internal/pipeline/completion"
	"thirdcoast.systems/reelfeed/internal/pipeline/ingest"
	"thirdcoast.systems/reelfeed/internal/video"
)

type Webserver struct {
	*echo.Echo
	videos     video.Store
	feedSvc    *feed.Service
	ingest     *ingest.Handler
	completion *completion.Handler
}

func NewWebserver(videos video.Store, feedSvc *feed.Service, ingestHandler *ingest.Handler, completionHandler *completion.Handler) (*Webserver, error) {
	webserver := &Webserver{
		Echo:       echo.New(),
		videos:     videos,
		feedSvc:    feedSvc,
		ingest:     ingestHandler,
		completion: completionHandler,
	}

	webserver.registerRoutes()
	webserver.setupMiddleware()

	return webserver, nil
}

func (s *Webserver) setupMiddleware() {
	s.HideBanner = true
	s.HidePort = true
	s.Use(middleware.BodyLimit("2M"))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
	}))
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz"
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			slog.Info("request", fields...)
			return nil
		},
	}))
}

func (s *Webserver) registerRoutes() {
	apiGroup := s.Group("/api")
	apiGroup.GET("/feed", feed_api.HandleIndex(s.feedSvc))
	apiGroup.GET("/videos/:id/status", feed_api.HandleStatus(s.videos))

	hooksGroup := s.Group("/hooks")
	hooksGroup.POST("/storage-events", hooks.HandleStorageEvent(s.ingest))
	hooksGroup.POST("/transcode-complete", hooks.HandleTranscodeComplete(s.completion))

	// Health check
	s.GET("/healthz", func(c echo.Context) error {
		return c.String(200, "ok")
	})
}

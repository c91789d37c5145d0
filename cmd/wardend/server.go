package main

import (
	"context"
	"log/slog"

	"github.com/chatwarden/warden/engine"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
)

type Server struct {
	echo   *echo.Echo
	engine *engine.Engine
	logger *slog.Logger
}

func NewServer(eng *engine.Engine, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echoprometheus.NewMiddleware("wardend"))

	srv := &Server{
		echo:   e,
		engine: eng,
		logger: logger,
	}

	e.GET("/_health", srv.HandleHealthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/event/message", srv.HandleMessageEvent)
	e.POST("/event/join", srv.HandleJoinEvent)
	e.POST("/event/leave", srv.HandleLeaveEvent)
	e.POST("/event/reaction", srv.HandleReactionEvent)

	e.GET("/member/:community/:member", srv.HandleGetMember)
	e.GET("/raid/:community", srv.HandleGetRaidStatus)
	e.GET("/stats/:community", srv.HandleGetCommunityStats)

	e.POST("/admin/strike", srv.HandleAdminStrike)
	e.POST("/admin/raid/:community/reset", srv.HandleAdminRaidReset)
	e.POST("/admin/compact", srv.HandleAdminCompact)

	return srv
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (s *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(200, GenericStatus{Status: "ok", Daemon: "wardend"})
}

func (s *Server) Run(bind string) error {
	return s.echo.Start(bind)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

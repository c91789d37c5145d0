package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/chatwarden/warden/engine"
	"github.com/chatwarden/warden/strike"

	"github.com/labstack/echo/v4"
)

type ActionsResponse struct {
	Actions []engine.Action `json:"actions"`
}

type ErrorResponse struct {
	Error   string          `json:"error"`
	Actions []engine.Action `json:"actions,omitempty"`
}

// respondEventError maps engine failures onto HTTP status codes. Classifier
// outages are the caller's signal to retry or queue for review, so they get
// 502 along with whatever actions the engine still emitted.
func (s *Server) respondEventError(c echo.Context, err error, actions []engine.Action) error {
	var classifierErr *engine.ClassifierError
	var storageErr *engine.StorageUnavailableError
	switch {
	case errors.Is(err, engine.ErrInvalidEvent) || errors.Is(err, strike.ErrInvalidWeight):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.As(err, &classifierErr):
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error(), Actions: actions})
	case errors.As(err, &storageErr):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error("event processing failed", "path", c.Path(), "err", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func (s *Server) HandleMessageEvent(c echo.Context) error {
	var evt engine.MessageEvent
	if err := c.Bind(&evt); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	actions, err := s.engine.ProcessMessage(c.Request().Context(), evt)
	if err != nil {
		return s.respondEventError(c, err, actions)
	}
	return c.JSON(http.StatusOK, ActionsResponse{Actions: actions})
}

func (s *Server) HandleJoinEvent(c echo.Context) error {
	var evt engine.JoinEvent
	if err := c.Bind(&evt); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	actions, err := s.engine.ProcessJoin(c.Request().Context(), evt)
	if err != nil {
		return s.respondEventError(c, err, actions)
	}
	return c.JSON(http.StatusOK, ActionsResponse{Actions: actions})
}

func (s *Server) HandleLeaveEvent(c echo.Context) error {
	var evt engine.LeaveEvent
	if err := c.Bind(&evt); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	actions, err := s.engine.ProcessLeave(c.Request().Context(), evt)
	if err != nil {
		return s.respondEventError(c, err, actions)
	}
	return c.JSON(http.StatusOK, ActionsResponse{Actions: actions})
}

func (s *Server) HandleReactionEvent(c echo.Context) error {
	var evt engine.ReactionEvent
	if err := c.Bind(&evt); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	actions, err := s.engine.ProcessReaction(c.Request().Context(), evt)
	if err != nil {
		return s.respondEventError(c, err, actions)
	}
	return c.JSON(http.StatusOK, ActionsResponse{Actions: actions})
}

func (s *Server) HandleGetMember(c echo.Context) error {
	view, err := s.engine.MemberSnapshot(c.Request().Context(), c.Param("community"), c.Param("member"), time.Now())
	if err != nil {
		return s.respondEventError(c, err, nil)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) HandleGetRaidStatus(c echo.Context) error {
	status, err := s.engine.RaidStatus(c.Request().Context(), c.Param("community"), time.Now())
	if err != nil {
		return s.respondEventError(c, err, nil)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) HandleGetCommunityStats(c echo.Context) error {
	stats, err := s.engine.CommunityStats(c.Request().Context(), c.Param("community"), time.Now())
	if err != nil {
		return s.respondEventError(c, err, nil)
	}
	return c.JSON(http.StatusOK, stats)
}

type AdminStrikeRequest struct {
	CommunityID string `json:"communityId"`
	MemberID    string `json:"memberId"`
	Weight      int64  `json:"weight"`
	Note        string `json:"note,omitempty"`
}

func (s *Server) HandleAdminStrike(c echo.Context) error {
	var req AdminStrikeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	actions, err := s.engine.ApplyManualStrike(c.Request().Context(), req.CommunityID, req.MemberID, req.Weight, req.Note, time.Now())
	if err != nil {
		return s.respondEventError(c, err, actions)
	}
	return c.JSON(http.StatusOK, ActionsResponse{Actions: actions})
}

func (s *Server) HandleAdminRaidReset(c echo.Context) error {
	if err := s.engine.ResetRaid(c.Request().Context(), c.Param("community"), time.Now()); err != nil {
		return s.respondEventError(c, err, nil)
	}
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "wardend", Message: "raid state reset"})
}

type CompactResponse struct {
	Removed int64 `json:"removed"`
}

func (s *Server) HandleAdminCompact(c echo.Context) error {
	removed, err := s.engine.Compact(c.Request().Context(), time.Now())
	if err != nil {
		return s.respondEventError(c, err, nil)
	}
	return c.JSON(http.StatusOK, CompactResponse{Removed: removed})
}

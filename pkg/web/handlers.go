package web

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-autocar/pkg/drive"
)

const defaultLimit = 50

func queryLimit(c *fiber.Ctx, ceiling int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return min(defaultLimit, ceiling), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "limit must be a positive integer")
	}
	return min(n, ceiling), nil
}

// handleStatus returns the loop snapshot and dashboard connections
func (s *Server) handleStatus(c *fiber.Ctx) error {
	status := drive.Status{Phase: drive.PhaseIdle}
	if ctrl := s.getController(); ctrl != nil {
		status = ctrl.Status()
	}
	return c.JSON(fiber.Map{
		"drive": status,
		"clients": fiber.Map{
			"decisions": s.decisionHub.ClientCount(),
			"camera":    s.cameraHub.ClientCount(),
		},
	})
}

// handleConfig returns the steering tuning and camera settings
func (s *Server) handleConfig(c *fiber.Ctx) error {
	resp := fiber.Map{"steering": s.opts.Steering}
	if s.opts.Camera != nil {
		resp["camera"] = s.opts.Camera.GetConfigJSON()
	}
	return c.JSON(resp)
}

// handleUpdateCamera applies a partial camera config or a preset
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	if s.opts.Camera == nil {
		return fiber.NewError(fiber.StatusNotFound, "camera settings unavailable")
	}

	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := s.opts.Camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.opts.Camera.GetConfigJSON())
}

// handleDecisions returns the latest decisions of the live session
func (s *Server) handleDecisions(c *fiber.Ctx) error {
	limit, err := queryLimit(c, s.opts.History)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"decisions": s.Recent(limit)})
}

func (s *Server) handleSessions(c *fiber.Ctx) error {
	if s.opts.Sessions == nil {
		return fiber.NewError(fiber.StatusNotFound, "session log disabled")
	}
	limit, err := queryLimit(c, 500)
	if err != nil {
		return err
	}
	sessions, err := s.opts.Sessions.Sessions(c.UserContext(), limit)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

func (s *Server) handleSessionDecisions(c *fiber.Ctx) error {
	if s.opts.Sessions == nil {
		return fiber.NewError(fiber.StatusNotFound, "session log disabled")
	}
	limit, err := queryLimit(c, 10000)
	if err != nil {
		return err
	}
	recs, err := s.opts.Sessions.Decisions(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"decisions": recs})
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	ctrl := s.getController()
	if ctrl == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no vehicle attached")
	}
	if err := ctrl.Start(); err != nil {
		if errors.Is(err, drive.ErrStopped) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	s.logger.Info("start requested from dashboard")
	return c.JSON(ctrl.Status())
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	ctrl := s.getController()
	if ctrl == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no vehicle attached")
	}
	if err := ctrl.Stop(); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	s.logger.Info("stop requested from dashboard")
	return c.JSON(ctrl.Status())
}

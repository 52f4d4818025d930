package api

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"trackfetch/backend"
)

const AppVersion = "1.0.0"

// Health check
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": AppVersion,
	})
}

func (s *Server) handleGetVersion(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"version": AppVersion})
}

// ============== Acquisition Handlers ==============

type acquireRequest struct {
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Quality string `json:"quality"`
}

func (s *Server) handleAcquire(c *fiber.Ctx) error {
	var req acquireRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	track := backend.TrackDescriptor{
		Title:  strings.TrimSpace(req.Title),
		Artist: strings.TrimSpace(req.Artist),
	}
	if err := backend.ValidateTrack(track); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid track: " + err.Error()})
	}

	handle, err := s.orchestrator.Acquire(c.UserContext(), track, backend.ParseQuality(req.Quality))
	result := s.orchestrator.Result(track, handle, err)
	if !result.Success {
		return c.Status(404).JSON(result)
	}
	return c.JSON(result)
}

// ============== Artifact Handlers ==============

func (s *Server) handleGetArtifact(c *fiber.Ctx) error {
	path := c.Query("path")
	if path == "" || !s.resources.Contains(path) {
		return c.Status(404).JSON(fiber.Map{"error": "Artifact not found"})
	}
	return c.Download(path, filepath.Base(path))
}

func (s *Server) handleDeleteArtifact(c *fiber.Ctx) error {
	path := c.Query("path")
	if path == "" {
		return c.Status(400).JSON(fiber.Map{"error": "path is required"})
	}
	if err := s.orchestrator.RemoveArtifact(path); err != nil {
		if errors.Is(err, backend.ErrResource) && !s.resources.Contains(path) {
			return c.Status(404).JSON(fiber.Map{"error": "Artifact not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true})
}

// ============== Source Handlers ==============

type sourceInfo struct {
	Name   string                `json:"name"`
	Status backend.ServiceStatus `json:"status"`
}

func (s *Server) handleGetSources(c *fiber.Ctx) error {
	adapters := s.orchestrator.Adapters()
	statuses := s.status.Check(c.UserContext(), adapters)

	sources := make([]sourceInfo, 0, len(adapters))
	for _, a := range adapters {
		sources = append(sources, sourceInfo{Name: a.Name(), Status: statuses[a.Name()]})
	}
	return c.JSON(fiber.Map{
		"sources":  sources,
		"disabled": s.config.Sources.Disabled,
	})
}

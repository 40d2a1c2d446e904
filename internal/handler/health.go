package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Backends names the configured implementation of each collaborator
type Backends struct {
	Storage string `json:"storage"`
	Ledger  string `json:"ledger"`
	Queue   string `json:"queue"`
	Worker  bool   `json:"worker"`
}

type HealthHandler struct {
	backends Backends
	now      func() time.Time
}

func NewHealthHandler(backends Backends) *HealthHandler {
	return &HealthHandler{backends: backends, now: time.Now}
}

// Root handles GET /
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"timestamp": h.now().Unix(),
	})
}

// Health handles GET /health
// @Summary      Health check
// @Tags         System
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Router       /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"services": h.backends,
	})
}

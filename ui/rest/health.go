package rest

import (
	"context"
	"sort"
	"time"

	"github.com/AzielCF/az-postsync/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Health struct {
	Checks  map[string]HealthCheck
	Timeout time.Duration
}

func InitRestHealth(app fiber.Router, checks map[string]HealthCheck) Health {
	handler := Health{Checks: checks, Timeout: 5 * time.Second}
	app.Get("/health", handler.GetStatus)
	return handler
}

type healthRecord struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.Timeout)
	defer cancel()

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	records := make([]healthRecord, 0, len(names))
	for _, name := range names {
		rec := healthRecord{Name: name, Status: "ok"}
		if err := h.Checks[name](ctx); err != nil {
			healthy = false
			rec.Status, rec.Message = "down", err.Error()
		}
		records = append(records, rec)
	}

	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(utils.ResponseData{
			Status:  fiber.StatusServiceUnavailable,
			Code:    "UNHEALTHY",
			Message: "One or more dependencies are unreachable",
			Results: records,
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Health status retrieved",
		Results: records,
	})
}

package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/moncompte-mobilite/mcm-api/internal/pkg/apperrors"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/subscription"
)

var subscriptionService *subscription.Service

// SetSubscriptionService injects the service instance used by the handlers.
// Called once from main before the router is installed.
func SetSubscriptionService(s *subscription.Service) {
	subscriptionService = s
}

// apiError translates a service error into the JSON error envelope.
func apiError(c *fiber.Ctx, err error) error {
	if appErr, ok := apperrors.As(err); ok {
		return c.Status(appErr.Status).JSON(fiber.Map{"error": appErr.Code, "message": appErr.Message})
	}
	log.Errorf("[API] Unexpected error on %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Unexpected error"})
}

// splitQueryList parses a comma-separated query value into a list.
func splitQueryList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

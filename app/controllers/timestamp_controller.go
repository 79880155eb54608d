package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/moncompte-mobilite/mcm-api/app/models"
	"github.com/moncompte-mobilite/mcm-api/app/repository"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/citizencontext"
)

var (
	timestampRepository repository.SubscriptionTimestampRepository
	funderRepository    repository.FunderRepository
)

// SetTimestampRepositories injects the repositories used by the timestamp
// handlers. Called once from main before the router is installed.
func SetTimestampRepositories(timestamps repository.SubscriptionTimestampRepository, funders repository.FunderRepository) {
	timestampRepository = timestamps
	funderRepository = funders
}

// HandleListTimestamps lists certified timestamp records, optionally scoped
// to one subscription and a creation date range. Back-office only; the
// result is restricted to subscriptions financed by the funders whose group
// names the gateway forwarded for the caller.
func HandleListTimestamps(c *fiber.Ctx) error {
	var start, end *time.Time
	if raw := c.Query("startDate"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "startDate must be yyyy-MM-dd"})
		}
		start = &parsed
	}
	if raw := c.Query("endDate"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "endDate must be yyyy-MM-dd"})
		}
		// Whole end day included: exclusive bound at the next midnight.
		bounded := parsed.AddDate(0, 0, 1)
		end = &bounded
	}

	funders, err := funderRepository.GetByNames(citizencontext.GetGroups(c))
	if err != nil {
		return apiError(c, err)
	}
	if len(funders) == 0 {
		return c.JSON(fiber.Map{"timestamps": []models.SubscriptionTimestamp{}, "count": 0})
	}
	funderIDs := make([]string, len(funders))
	for i, funder := range funders {
		funderIDs[i] = funder.ID
	}

	timestamps, err := timestampRepository.Find(c.Query("subscriptionId"), funderIDs, start, end)
	if err != nil {
		return apiError(c, err)
	}
	return c.JSON(fiber.Map{"timestamps": timestamps, "count": len(timestamps)})
}

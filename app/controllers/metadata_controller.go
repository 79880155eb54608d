package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/moncompte-mobilite/mcm-api/app/models"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/citizencontext"
)

// HandleCreateMetadata stores an operator's invoice bundle ahead of the
// subscription flow and returns the URL the citizen is redirected to.
func HandleCreateMetadata(c *fiber.Ctx) error {
	citizenID := citizencontext.GetCitizenID(c)
	if citizenID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing citizen identity"})
	}

	var metadata models.Metadata
	if err := c.BodyParser(&metadata); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	url, err := subscriptionService.CreateMetadata(citizenID, &metadata)
	if err != nil {
		return apiError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": metadata.ID, "subscriptionURL": url})
}

// HandleGetMetadata previews the invoice filenames a stored bundle would
// produce, without consuming it.
func HandleGetMetadata(c *fiber.Ctx) error {
	preview, err := subscriptionService.GetMetadata(c.Params("metadataId"))
	if err != nil {
		return apiError(c, err)
	}
	return c.JSON(preview)
}

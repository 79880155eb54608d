package controllers

import (
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/moncompte-mobilite/mcm-api/app/models"
	"github.com/moncompte-mobilite/mcm-api/app/repository"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/citizencontext"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/storage"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/subscription"
)

// HandleCreateSubscription opens a BROUILLON subscription for the caller.
func HandleCreateSubscription(c *fiber.Ctx) error {
	citizenID := citizencontext.GetCitizenID(c)
	if citizenID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing citizen identity"})
	}

	var input subscription.CreateInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	sub, err := subscriptionService.Create(c.UserContext(), citizenID, input)
	if err != nil {
		return apiError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": sub.ID})
}

// HandleAddAttachments stores uploaded proof files and, when a metadataId is
// given, the invoice PDFs generated from the operator's metadata record.
func HandleAddAttachments(c *fiber.Ctx) error {
	subscriptionID := c.Params("id")

	files, err := collectUploadedFiles(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}
	metadataID := c.FormValue("metadataId")

	if err := subscriptionService.AddAttachments(c.UserContext(), subscriptionID, files, metadataID); err != nil {
		return apiError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": subscriptionID})
}

// HandleFinalizeSubscription submits a draft. Manual-mode incentives land on
// A_TRAITER, automatic-mode incentives on VALIDEE or REJETEE.
func HandleFinalizeSubscription(c *fiber.Ctx) error {
	result, err := subscriptionService.Finalize(c.UserContext(), c.Params("id"))
	if err != nil {
		return apiError(c, err)
	}
	return c.JSON(result)
}

// HandleValidateSubscription settles an A_TRAITER subscription with a payment
// description. Back-office only.
func HandleValidateSubscription(c *fiber.Ctx) error {
	var payment models.SubscriptionValidation
	if err := c.BodyParser(&payment); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if err := subscriptionService.Validate(c.UserContext(), c.Params("id"), &payment); err != nil {
		return apiError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleRejectSubscription settles an A_TRAITER subscription with a rejection
// reason. Back-office only.
func HandleRejectSubscription(c *fiber.Ctx) error {
	var rejection models.SubscriptionRejection
	if err := c.BodyParser(&rejection); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if err := subscriptionService.Reject(c.UserContext(), c.Params("id"), &rejection); err != nil {
		return apiError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandlePatchSubscription merges partial specific fields into the stored
// answers.
func HandlePatchSubscription(c *fiber.Ctx) error {
	var partial map[string]interface{}
	if err := c.BodyParser(&partial); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if err := subscriptionService.PatchSpecificFields(c.UserContext(), c.Params("id"), partial); err != nil {
		return apiError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleGetSubscription returns one subscription. Citizens only see their
// own rows.
func HandleGetSubscription(c *fiber.Ctx) error {
	sub, err := subscriptionService.Get(c.Params("id"))
	if err != nil {
		return apiError(c, err)
	}
	if !citizencontext.IsManager(c) && sub.CitizenID != citizencontext.GetCitizenID(c) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "subscription.not.found", "message": "subscription " + sub.ID + " does not exist"})
	}
	return c.JSON(sub)
}

// HandleListSubscriptions lists non-draft subscriptions. Citizens are scoped
// to their own rows; back-office callers can filter freely.
func HandleListSubscriptions(c *fiber.Ctx) error {
	filter := repository.SubscriptionFilter{
		Statuses:       splitQueryList(c.Query("status")),
		IncentiveIDs:   splitQueryList(c.Query("incentiveId")),
		IncentiveTypes: splitQueryList(c.Query("incentiveType")),
		LastName:       c.Query("lastName"),
		Skip:           c.QueryInt("skip", 0),
		Limit:          c.QueryInt("limit", 10),
	}
	if year := c.Query("year"); year != "" {
		parsed, err := strconv.Atoi(year)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "year must be numeric"})
		}
		filter.Year = parsed
	}

	if citizencontext.IsManager(c) {
		filter.FunderID = c.Query("funderId")
		filter.CitizenID = c.Query("citizenId")
	} else {
		citizenID := citizencontext.GetCitizenID(c)
		if citizenID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing citizen identity"})
		}
		filter.CitizenID = citizenID
	}

	subscriptions, count, err := subscriptionService.List(filter)
	if err != nil {
		return apiError(c, err)
	}
	return c.JSON(fiber.Map{"subscriptions": subscriptions, "count": count})
}

// HandleDownloadAttachment proxies one stored attachment from blob storage.
func HandleDownloadAttachment(c *fiber.Ctx) error {
	body, mimeType, err := subscriptionService.DownloadAttachment(c.UserContext(), c.Params("id"), c.Params("filename"))
	if err != nil {
		return apiError(c, err)
	}
	if mimeType != "" {
		c.Set(fiber.HeaderContentType, mimeType)
	}
	return c.Send(body)
}

func collectUploadedFiles(c *fiber.Ctx) ([]storage.File, error) {
	form, err := c.MultipartForm()
	if err != nil {
		// No multipart body: metadata-only call.
		return nil, nil
	}
	headers := form.File["files"]
	files := make([]storage.File, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, storage.File{
			Name:      header.Filename,
			Body:      body,
			MimeType:  header.Header.Get(fiber.HeaderContentType),
			ProofType: c.FormValue("proofType", "justificatif"),
		})
	}
	return files, nil
}

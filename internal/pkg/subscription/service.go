// Package subscription owns the lifecycle of incentive applications: the
// status transitions and the orchestration of eligibility checks,
// attachment assembly, notifications and timestamping.
package subscription

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/moncompte-mobilite/mcm-api/app/models"
	"github.com/moncompte-mobilite/mcm-api/app/repository"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/apperrors"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/eligibility"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/encryption"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/env"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/invoice"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/mail"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/operatordata"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/storage"
)

// BlobStore is the attachment bucket boundary.
type BlobStore interface {
	UploadFileList(ctx context.Context, citizenID, subscriptionID string, files []storage.File) error
	DownloadFileBuffer(ctx context.Context, citizenID, subscriptionID, filename string) ([]byte, error)
	DeleteObjectFolder(ctx context.Context, citizenID, subscriptionID string) error
}

// QueuePublisher is the employer integration bus boundary.
type QueuePublisher interface {
	Publish(ctx context.Context, payload interface{}, enterpriseName string) error
}

// Mailer is the citizen notification boundary.
type Mailer interface {
	SendMailAsHTML(to, subject, templateName string, data map[string]interface{}) error
}

// InvoiceRenderer turns invoice records into PDF attachments.
type InvoiceRenderer interface {
	GeneratePDFInvoices(invoices []models.Invoice) ([]storage.File, error)
}

// Certifier appends a timestamp proof over the current subscription state.
type Certifier interface {
	CertifySubscription(ctx context.Context, subscription *models.Subscription, request models.TimestampRequest) error
}

// Checker runs the eligibility pipeline of an automatic-mode incentive.
type Checker interface {
	Run(ctx context.Context, subscription *models.Subscription, incentive *models.Incentive, applicationTimestamp time.Time) (eligibility.Outcome, error)
}

// Template names come from internal/pkg/mail; the subjects are fixed French
// wording.
const (
	subjectRequestReceived      = "Confirmation d'envoi de la demande"
	subjectSubscriptionAccepted = "Votre demande a été acceptée"
	subjectSubscriptionRejected = "Votre demande a été refusée"
)

// Service implements the subscription state machine.
type Service struct {
	subscriptions repository.SubscriptionRepository
	incentives    repository.IncentiveRepository
	citizens      repository.CitizenRepository
	funders       repository.FunderRepository
	metadata      repository.MetadataRepository

	blobs     BlobStore
	queue     QueuePublisher
	mailer    Mailer
	invoices  InvoiceRenderer
	certifier Certifier
	checker   Checker

	validate   *validator.Validate
	apiURL     string
	websiteURL string
}

// Deps collects the service collaborators.
type Deps struct {
	Subscriptions repository.SubscriptionRepository
	Incentives    repository.IncentiveRepository
	Citizens      repository.CitizenRepository
	Funders       repository.FunderRepository
	Metadata      repository.MetadataRepository

	Blobs     BlobStore
	Queue     QueuePublisher
	Mailer    Mailer
	Invoices  InvoiceRenderer
	Certifier Certifier
	Checker   Checker
}

// NewService builds the lifecycle service.
func NewService(d Deps) *Service {
	return &Service{
		subscriptions: d.Subscriptions,
		incentives:    d.Incentives,
		citizens:      d.Citizens,
		funders:       d.Funders,
		metadata:      d.Metadata,
		blobs:         d.Blobs,
		queue:         d.Queue,
		mailer:        d.Mailer,
		invoices:      d.Invoices,
		certifier:     d.Certifier,
		checker:       d.Checker,
		validate:      validator.New(),
		apiURL:        env.GetEnv("API_FQDN", "https://api.moncomptemobilite.fr"),
		websiteURL:    env.GetEnv("WEBSITE_FQDN", "https://moncomptemobilite.fr"),
	}
}

// CreateInput is the citizen's application form.
type CreateInput struct {
	IncentiveID    string                 `json:"incentiveId" validate:"required"`
	SpecificFields map[string]interface{} `json:"specificFields,omitempty"`
}

// Create opens a new DRAFT subscription, snapshotting the citizen identity.
func (s *Service) Create(ctx context.Context, citizenID string, input CreateInput) (*models.Subscription, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, apperrors.Unprocessable("subscription.create.invalid", err.Error())
	}

	incentive, err := s.getIncentive(input.IncentiveID)
	if err != nil {
		return nil, err
	}
	citizen, err := s.citizens.GetByID(citizenID)
	if err != nil {
		return nil, notFoundOr(err, "citizen.not.found", "citizen "+citizenID+" does not exist")
	}

	subscription := &models.Subscription{
		IncentiveID:     incentive.ID,
		IncentiveTitle:  incentive.Title,
		IncentiveType:   incentive.IncentiveType,
		FunderID:        incentive.FunderID,
		FunderName:      incentive.FunderName,
		CitizenID:       citizen.ID,
		LastName:        citizen.LastName,
		FirstName:       citizen.FirstName,
		Email:           citizen.Email,
		Birthdate:       citizen.Birthdate,
		City:            citizen.City,
		Postcode:        citizen.Postcode,
		EnterpriseEmail: citizen.EnterpriseEmail,
		Status:          models.StatusDraft,
		SpecificFields:  input.SpecificFields,
	}
	if err := s.subscriptions.Create(subscription); err != nil {
		return nil, fmt.Errorf("subscription: create: %w", err)
	}
	log.Infof("[Subscription] Created subscription %s for citizen %s", subscription.ID, citizen.ID)

	if incentive.IsCertifiedTimestampRequired {
		err := s.certifier.CertifySubscription(ctx, subscription, models.TimestampRequest{
			Client:   "mcm-api",
			Endpoint: "/v1/subscriptions",
		})
		if err != nil {
			return nil, err
		}
	}
	return subscription, nil
}

// AddAttachments merges uploaded proofs and metadata-derived invoice PDFs
// into one stored batch. With neither files nor invoices it writes nothing.
// The metadata record is consumed on read; a later upload failure loses the
// invoice instructions, recovery semantics for that case are undefined
// upstream.
func (s *Service) AddAttachments(ctx context.Context, subscriptionID string, files []storage.File, metadataID string) error {
	subscription, err := s.Get(subscriptionID)
	if err != nil {
		return err
	}
	if models.IsTerminal(subscription.Status) {
		return apperrors.Conflict("subscriptions.error.bad.status",
			fmt.Sprintf("subscription %s is %s, attachments can no longer be added", subscription.ID, subscription.Status))
	}
	funder, err := s.funders.GetByID(subscription.FunderID)
	if err != nil {
		return notFoundOr(err, "funder.not.found", "funder "+subscription.FunderID+" does not exist")
	}

	combined := make([]storage.File, 0, len(files))
	combined = append(combined, files...)

	if metadataID != "" {
		metadata, err := s.metadata.GetByID(metadataID)
		if err != nil {
			return notFoundOr(err, "metadata.not.found", "metadata "+metadataID+" does not exist")
		}
		if err := s.metadata.Delete(metadataID); err != nil {
			return fmt.Errorf("subscription: consume metadata %s: %w", metadataID, err)
		}
		log.Infof("[Subscription] Metadata %s consumed", metadataID)

		generated, err := s.invoices.GeneratePDFInvoices(metadata.AttachmentMetadata.Invoices)
		if err != nil {
			return err
		}
		combined = append(combined, generated...)
	}

	if len(combined) == 0 {
		return nil
	}

	fields := map[string]interface{}{}
	if funder.EncryptionPublicKey != "" {
		key, iv, err := encryption.GenerateAESKey()
		if err != nil {
			return err
		}
		encryptedKey, encryptedIV, err := encryption.EncryptAESKey(funder.EncryptionPublicKey, key, iv)
		if err != nil {
			return err
		}
		for i := range combined {
			body, err := encryption.EncryptFileHybrid(combined[i].Body, key, iv)
			if err != nil {
				return err
			}
			combined[i].Body = body
		}
		fields["encryption_key_id"] = funder.EncryptionKeyID
		fields["encryption_key_version"] = funder.EncryptionKeyVersion
		fields["encrypted_aes_key"] = base64.StdEncoding.EncodeToString(encryptedKey)
		fields["encrypted_iv"] = base64.StdEncoding.EncodeToString(encryptedIV)
	}

	formatted := invoice.FormatAttachments(combined)
	if err := s.blobs.UploadFileList(ctx, subscription.CitizenID, subscription.ID, formatted); err != nil {
		return apperrors.BadGateway("subscription.attachments.upload.failed", err.Error())
	}

	now := time.Now()
	refs := make(models.AttachmentRefList, len(formatted))
	for i, file := range formatted {
		refs[i] = models.AttachmentRef{
			OriginalName: file.Name,
			UploadDate:   now,
			ProofType:    file.ProofType,
			MimeType:     file.MimeType,
		}
	}
	fields["attachments"] = refs

	if err := s.subscriptions.UpdateFields(subscription.ID, fields); err != nil {
		return fmt.Errorf("subscription: store attachment index: %w", err)
	}
	log.Infof("[Subscription] %d attachment(s) stored for subscription %s", len(refs), subscription.ID)
	return nil
}

// FinalizeResult is the outcome of a finalize call.
type FinalizeResult struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	RejectionReason string `json:"rejectionReason,omitempty"`
	Comments        string `json:"comments,omitempty"`
}

// Finalize submits a DRAFT subscription. Manual-mode incentives move to
// A_TRAITER for back-office review; automatic-mode incentives run the
// eligibility pipeline and land directly on a terminal status.
func (s *Service) Finalize(ctx context.Context, subscriptionID string) (FinalizeResult, error) {
	subscription, err := s.Get(subscriptionID)
	if err != nil {
		return FinalizeResult{}, err
	}
	if subscription.Status != models.StatusDraft {
		return FinalizeResult{}, apperrors.Conflict("subscriptions.error.bad.status",
			fmt.Sprintf("subscription %s is %s, only %s can be finalized",
				subscription.ID, subscription.Status, models.StatusDraft))
	}
	incentive, err := s.getIncentive(subscription.IncentiveID)
	if err != nil {
		return FinalizeResult{}, err
	}

	if incentive.SubscriptionCheckMode == models.CheckModeAutomatic {
		return s.finalizeAutomatic(ctx, subscription, incentive)
	}
	return s.finalizeManual(ctx, subscription, incentive)
}

func (s *Service) finalizeAutomatic(ctx context.Context, subscription *models.Subscription, incentive *models.Incentive) (FinalizeResult, error) {
	applicationTimestamp := time.Now()
	outcome, err := s.checker.Run(ctx, subscription, incentive, applicationTimestamp)
	if err != nil {
		return FinalizeResult{}, err
	}

	result := FinalizeResult{ID: subscription.ID}
	if outcome.Eligible {
		validation := &models.SubscriptionValidation{
			Mode:                 models.PaymentModeNone,
			AdditionalProperties: outcome.AdditionalProperties,
		}
		if err := s.applyValidation(ctx, subscription, incentive, validation); err != nil {
			return FinalizeResult{}, err
		}
		result.Status = models.StatusValidated
	} else {
		rejection := &models.SubscriptionRejection{
			Type:                 outcome.RejectionReason,
			Comments:             outcome.Comments,
			AdditionalProperties: outcome.AdditionalProperties,
		}
		if err := s.applyRejection(ctx, subscription, incentive, rejection); err != nil {
			return FinalizeResult{}, err
		}
		result.Status = models.StatusRejected
		result.RejectionReason = outcome.RejectionReason
		result.Comments = outcome.Comments
	}

	if incentive.IsCertifiedTimestampRequired {
		err := s.certifier.CertifySubscription(ctx, subscription, models.TimestampRequest{
			Client:   "mcm-api",
			Endpoint: fmt.Sprintf("/v1/subscriptions/%s/verify", subscription.ID),
		})
		if err != nil {
			return FinalizeResult{}, err
		}
	}
	return result, nil
}

func (s *Service) finalizeManual(ctx context.Context, subscription *models.Subscription, incentive *models.Incentive) (FinalizeResult, error) {
	err := s.subscriptions.UpdateWithStatusGuard(subscription.ID, models.StatusDraft,
		map[string]interface{}{"status": models.StatusToProcess})
	if err != nil {
		return FinalizeResult{}, conflictOr(err)
	}
	subscription.Status = models.StatusToProcess
	log.Infof("[Subscription] Subscription %s moved to %s", subscription.ID, models.StatusToProcess)

	if !incentive.IsCitizenNotificationsDisabled {
		err := s.mailer.SendMailAsHTML(subscription.Email, subjectRequestReceived, mail.TemplateRequestsToProcess,
			map[string]interface{}{
				"Username":      capitalize(subscription.FirstName),
				"FunderName":    subscription.FunderName,
				"DashboardLink": s.websiteURL + "/mon-dashboard",
			})
		if err != nil {
			return FinalizeResult{}, apperrors.BadGateway("subscription.mail.failed", err.Error())
		}
	}

	if subscription.IncentiveType == models.IncentiveTypeEmployer {
		enterprise, err := s.funders.GetEnterpriseByID(subscription.FunderID)
		if err != nil {
			return FinalizeResult{}, notFoundOr(err, "enterprise.not.found",
				"enterprise "+subscription.FunderID+" does not exist")
		}
		if enterprise.IsHris {
			payload := s.buildIntegrationPayload(subscription)
			if err := s.queue.Publish(ctx, payload, enterprise.Name); err != nil {
				return FinalizeResult{}, apperrors.BadGateway("subscription.publish.failed", err.Error())
			}
			log.Infof("[Subscription] Subscription %s sent to bus for %s", subscription.ID, enterprise.Name)
		}
	}

	return FinalizeResult{ID: subscription.ID, Status: models.StatusToProcess}, nil
}

// IntegrationPayload is the message consumed by employer HRIS systems.
type IntegrationPayload struct {
	SubscriptionID       string                     `json:"subscriptionId"`
	CitizenID            string                     `json:"citizenId"`
	IncentiveID          string                     `json:"incentiveId"`
	LastName             string                     `json:"lastName"`
	FirstName            string                     `json:"firstName"`
	Birthdate            string                     `json:"birthdate"`
	Email                string                     `json:"email"`
	Status               string                     `json:"status"`
	SpecificFields       operatordata.OperatorRecord `json:"specificFields"`
	Attachments          []string                   `json:"attachments"`
	EncryptionKeyID      string                     `json:"encryptionKeyId,omitempty"`
	EncryptionKeyVersion int                        `json:"encryptionKeyVersion,omitempty"`
	EncryptedAESKey      string                     `json:"encryptedAESKey,omitempty"`
	EncryptedIV          string                     `json:"encryptedIV,omitempty"`
}

func (s *Service) buildIntegrationPayload(subscription *models.Subscription) IntegrationPayload {
	attachments := make([]string, 0, len(subscription.Attachments))
	for _, ref := range subscription.Attachments {
		attachments = append(attachments, fmt.Sprintf("%s/v1/subscriptions/%s/attachments/%s",
			s.apiURL, subscription.ID, ref.OriginalName))
	}

	email := subscription.EnterpriseEmail
	if email == "" {
		email = subscription.Email
	}

	return IntegrationPayload{
		SubscriptionID:       subscription.ID,
		CitizenID:            subscription.CitizenID,
		IncentiveID:          subscription.IncentiveID,
		LastName:             subscription.LastName,
		FirstName:            subscription.FirstName,
		Birthdate:            subscription.Birthdate,
		Email:                email,
		Status:               models.StatusToProcess,
		SpecificFields:       operatordata.Convert(subscription.SpecificFields, subscription.LastName, time.Now()),
		Attachments:          attachments,
		EncryptionKeyID:      subscription.EncryptionKeyID,
		EncryptionKeyVersion: subscription.EncryptionKeyVersion,
		EncryptedAESKey:      subscription.EncryptedAESKey,
		EncryptedIV:          subscription.EncryptedIV,
	}
}

// Validate settles an A_TRAITER subscription with a payment description.
func (s *Service) Validate(ctx context.Context, subscriptionID string, payment *models.SubscriptionValidation) error {
	subscription, err := s.Get(subscriptionID)
	if err != nil {
		return err
	}
	if subscription.Status != models.StatusToProcess {
		return apperrors.Conflict("subscriptions.error.bad.status",
			fmt.Sprintf("subscription %s is %s, only %s can be validated",
				subscription.ID, subscription.Status, models.StatusToProcess))
	}
	if err := s.CheckPayment(payment); err != nil {
		return err
	}
	incentive, err := s.getIncentive(subscription.IncentiveID)
	if err != nil {
		return err
	}
	return s.applyValidation(ctx, subscription, incentive, payment)
}

// Reject settles an A_TRAITER subscription with a rejection reason.
func (s *Service) Reject(ctx context.Context, subscriptionID string, rejection *models.SubscriptionRejection) error {
	subscription, err := s.Get(subscriptionID)
	if err != nil {
		return err
	}
	if subscription.Status != models.StatusToProcess {
		return apperrors.Conflict("subscriptions.error.bad.status",
			fmt.Sprintf("subscription %s is %s, only %s can be rejected",
				subscription.ID, subscription.Status, models.StatusToProcess))
	}
	if err := s.validate.Struct(rejection); err != nil {
		return apperrors.Unprocessable("subscription.rejection.invalid", err.Error())
	}
	incentive, err := s.getIncentive(subscription.IncentiveID)
	if err != nil {
		return err
	}
	return s.applyRejection(ctx, subscription, incentive, rejection)
}

// CheckPayment validates the payment description against its mode.
//
//	aucun:    no amount, no frequency, no last payment date
//	unique:   a positive amount
//	multiple: a positive amount, a frequency and a last payment date more
//	          than two months in the future
func (s *Service) CheckPayment(payment *models.SubscriptionValidation) error {
	if err := s.validate.Struct(payment); err != nil {
		return apperrors.Unprocessable("subscription.payment.invalid", err.Error())
	}

	switch payment.Mode {
	case models.PaymentModeNone:
		if payment.Amount != nil || payment.Frequency != "" || payment.LastPayment != "" {
			return apperrors.Unprocessable("subscription.payment.invalid",
				"mode aucun does not allow amount, frequency or lastPayment")
		}
	case models.PaymentModeUnique:
		if payment.Amount == nil {
			return apperrors.Unprocessable("subscription.payment.invalid",
				"mode unique requires a positive amount")
		}
		if payment.Frequency != "" || payment.LastPayment != "" {
			return apperrors.Unprocessable("subscription.payment.invalid",
				"mode unique does not allow frequency or lastPayment")
		}
	case models.PaymentModeMultiple:
		if payment.Amount == nil {
			return apperrors.Unprocessable("subscription.payment.invalid",
				"mode multiple requires a positive amount")
		}
		if payment.Frequency == "" || payment.LastPayment == "" {
			return apperrors.Unprocessable("subscription.payment.invalid",
				"mode multiple requires frequency and lastPayment")
		}
		lastPayment, err := time.Parse("2006-01-02", payment.LastPayment)
		if err != nil {
			return apperrors.Unprocessable("subscription.payment.invalid", "lastPayment must be yyyy-MM-dd")
		}
		if !lastPayment.After(time.Now().AddDate(0, 2, 0)) {
			return apperrors.BadRequest("subscription.lastpayment.date.error",
				"lastPayment must be more than two months in the future")
		}
	}
	return nil
}

func (s *Service) applyValidation(ctx context.Context, subscription *models.Subscription, incentive *models.Incentive, validation *models.SubscriptionValidation) error {
	expected := subscription.Status
	err := s.subscriptions.UpdateWithStatusGuard(subscription.ID, expected, map[string]interface{}{
		"status":     models.StatusValidated,
		"validation": validation,
	})
	if err != nil {
		return conflictOr(err)
	}
	subscription.Status = models.StatusValidated
	subscription.Validation = validation
	log.Infof("[Subscription] Subscription %s validated", subscription.ID)

	if incentive.IsCitizenNotificationsDisabled {
		return nil
	}
	data := map[string]interface{}{
		"Username":       capitalize(subscription.FirstName),
		"IncentiveTitle": subscription.IncentiveTitle,
		"RequestDate":    frenchTimestamp(subscription.CreatedAt),
		"Comments":       validation.Comments,
	}
	if validation.Amount != nil {
		data["Amount"] = *validation.Amount
	}
	for _, email := range s.notificationEmails(subscription) {
		if err := s.mailer.SendMailAsHTML(email, subjectSubscriptionAccepted, mail.TemplateSubscriptionValidated, data); err != nil {
			return apperrors.BadGateway("subscription.mail.failed", err.Error())
		}
	}
	return nil
}

// applyRejection settles the rejection and scrubs the applicant's data: the
// attachment index, the stored files and the specific fields are dropped,
// only the rejection reason survives.
func (s *Service) applyRejection(ctx context.Context, subscription *models.Subscription, incentive *models.Incentive, rejection *models.SubscriptionRejection) error {
	motive := rejection.NotificationText()
	if motive == "" {
		return apperrors.BadRequest("subscriptionRejection.type.not.found",
			"rejection type "+rejection.Type+" has no wording")
	}

	if len(subscription.Attachments) > 0 {
		if err := s.blobs.DeleteObjectFolder(ctx, subscription.CitizenID, subscription.ID); err != nil {
			return apperrors.BadGateway("subscription.attachments.delete.failed", err.Error())
		}
	}

	expected := subscription.Status
	err := s.subscriptions.UpdateWithStatusGuard(subscription.ID, expected, map[string]interface{}{
		"status":          models.StatusRejected,
		"rejection":       rejection,
		"attachments":     nil,
		"specific_fields": nil,
	})
	if err != nil {
		return conflictOr(err)
	}
	subscription.Status = models.StatusRejected
	subscription.Rejection = rejection
	subscription.Attachments = nil
	subscription.SpecificFields = nil
	log.Infof("[Subscription] Subscription %s rejected (%s)", subscription.ID, rejection.Type)

	if incentive.IsCitizenNotificationsDisabled {
		return nil
	}
	data := map[string]interface{}{
		"Username":       capitalize(subscription.FirstName),
		"IncentiveTitle": subscription.IncentiveTitle,
		"RequestDate":    frenchTimestamp(subscription.CreatedAt),
		"Motive":         motive,
		"Comments":       rejection.Comments,
	}
	for _, email := range s.notificationEmails(subscription) {
		if err := s.mailer.SendMailAsHTML(email, subjectSubscriptionRejected, mail.TemplateSubscriptionRejected, data); err != nil {
			return apperrors.BadGateway("subscription.mail.failed", err.Error())
		}
	}
	return nil
}

// PatchSpecificFields merges partial into the stored answers, key by key.
// Allowed in any status: applicants may add supplementary data after
// submission.
func (s *Service) PatchSpecificFields(ctx context.Context, subscriptionID string, partial map[string]interface{}) error {
	subscription, err := s.Get(subscriptionID)
	if err != nil {
		return err
	}
	if models.IsTerminal(subscription.Status) {
		return apperrors.Conflict("subscriptions.error.bad.status",
			fmt.Sprintf("subscription %s is %s, specific fields can no longer be changed", subscription.ID, subscription.Status))
	}

	merged := make(models.SpecificFields, len(subscription.SpecificFields)+len(partial))
	for key, value := range subscription.SpecificFields {
		merged[key] = value
	}
	for key, value := range partial {
		merged[key] = value
	}

	if err := s.subscriptions.UpdateFields(subscription.ID, map[string]interface{}{"specific_fields": merged}); err != nil {
		return fmt.Errorf("subscription: patch specific fields: %w", err)
	}
	subscription.SpecificFields = merged
	log.Infof("[Subscription] Specific fields updated for subscription %s", subscription.ID)

	incentive, err := s.getIncentive(subscription.IncentiveID)
	if err != nil {
		return err
	}
	if incentive.IsCertifiedTimestampRequired {
		return s.certifier.CertifySubscription(ctx, subscription, models.TimestampRequest{
			Client:   "mcm-api",
			Endpoint: fmt.Sprintf("/v1/subscriptions/%s", subscription.ID),
		})
	}
	return nil
}

// Get loads one subscription.
func (s *Service) Get(subscriptionID string) (*models.Subscription, error) {
	subscription, err := s.subscriptions.GetByID(subscriptionID)
	if err != nil {
		return nil, notFoundOr(err, "subscription.not.found", "subscription "+subscriptionID+" does not exist")
	}
	return subscription, nil
}

// List returns non-draft subscriptions matching the filter plus the total
// count for pagination.
func (s *Service) List(filter repository.SubscriptionFilter) ([]models.Subscription, int64, error) {
	subscriptions, err := s.subscriptions.List(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("subscription: list: %w", err)
	}
	count, err := s.subscriptions.Count(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("subscription: count: %w", err)
	}
	return subscriptions, count, nil
}

// DownloadAttachment streams one stored proof back to the caller.
func (s *Service) DownloadAttachment(ctx context.Context, subscriptionID, filename string) ([]byte, string, error) {
	subscription, err := s.Get(subscriptionID)
	if err != nil {
		return nil, "", err
	}

	mimeType := ""
	for _, ref := range subscription.Attachments {
		if ref.OriginalName == filename {
			mimeType = ref.MimeType
			break
		}
	}
	if mimeType == "" {
		return nil, "", apperrors.NotFound("subscription.attachment.not.found",
			filename+" is not attached to subscription "+subscriptionID)
	}

	body, err := s.blobs.DownloadFileBuffer(ctx, subscription.CitizenID, subscription.ID, filename)
	if err != nil {
		return nil, "", apperrors.BadGateway("subscription.attachment.download.failed", err.Error())
	}
	return body, mimeType, nil
}

// CreateMetadata stores a mobility operator's invoice bundle and returns
// the subscription URL the citizen is redirected to.
func (s *Service) CreateMetadata(citizenID string, metadata *models.Metadata) (string, error) {
	metadata.CitizenID = citizenID
	if _, err := s.getIncentive(metadata.IncentiveID); err != nil {
		return "", err
	}
	if err := s.metadata.Create(metadata); err != nil {
		return "", fmt.Errorf("subscription: create metadata: %w", err)
	}
	log.Infof("[Subscription] Metadata %s created", metadata.ID)
	return fmt.Sprintf("%s/subscriptions/new?incentiveId=%s&metadataId=%s",
		s.websiteURL, metadata.IncentiveID, metadata.ID), nil
}

// MetadataPreview lists the filenames the assembler would generate.
type MetadataPreview struct {
	IncentiveID string              `json:"incentiveId"`
	CitizenID   string              `json:"citizenId"`
	Attachments []map[string]string `json:"attachmentMetadata"`
}

// GetMetadata previews a stored invoice bundle without consuming it.
func (s *Service) GetMetadata(metadataID string) (MetadataPreview, error) {
	metadata, err := s.metadata.GetByID(metadataID)
	if err != nil {
		return MetadataPreview{}, notFoundOr(err, "metadata.not.found", "metadata "+metadataID+" does not exist")
	}

	preview := MetadataPreview{
		IncentiveID: metadata.IncentiveID,
		CitizenID:   metadata.CitizenID,
		Attachments: make([]map[string]string, 0, len(metadata.AttachmentMetadata.Invoices)),
	}
	for _, inv := range metadata.AttachmentMetadata.Invoices {
		preview.Attachments = append(preview.Attachments, map[string]string{"fileName": invoice.Filename(inv)})
	}
	return preview, nil
}

func (s *Service) getIncentive(incentiveID string) (*models.Incentive, error) {
	incentive, err := s.incentives.GetByID(incentiveID)
	if err != nil {
		return nil, notFoundOr(err, "incentive.not.found", "incentive "+incentiveID+" does not exist")
	}
	return incentive, nil
}

// notificationEmails lists the citizen addresses notified on a terminal
// transition.
func (s *Service) notificationEmails(subscription *models.Subscription) []string {
	emails := []string{subscription.Email}
	if subscription.EnterpriseEmail != "" && subscription.EnterpriseEmail != subscription.Email {
		emails = append(emails, subscription.EnterpriseEmail)
	}
	return emails
}

func notFoundOr(err error, code, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound(code, message)
	}
	return err
}

func conflictOr(err error) error {
	if errors.Is(err, models.ErrBadStatus) {
		return apperrors.Conflict("subscriptions.error.bad.status", err.Error())
	}
	return err
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	return strings.ToUpper(string(runes[0])) + strings.ToLower(string(runes[1:]))
}

// frenchTimestamp renders a creation date as "02/01/2006 à 15h04".
func frenchTimestamp(t time.Time) string {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return fmt.Sprintf("%s à %dh%02d", local.Format("02/01/2006"), local.Hour(), local.Minute())
}

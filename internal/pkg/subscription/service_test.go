package subscription

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/moncompte-mobilite/mcm-api/app/models"
	"github.com/moncompte-mobilite/mcm-api/app/repository"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/apperrors"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/eligibility"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/mail"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/storage"
)

// ---- in-memory fakes ----

type fakeSubscriptionRepo struct {
	rows map[string]*models.Subscription
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{rows: map[string]*models.Subscription{}}
}

func (r *fakeSubscriptionRepo) Create(s *models.Subscription) error {
	if s.ID == "" {
		s.ID = fmt.Sprintf("sub-%d", len(r.rows)+1)
	}
	s.CreatedAt = time.Now()
	copied := *s
	r.rows[s.ID] = &copied
	return nil
}

func (r *fakeSubscriptionRepo) GetByID(id string) (*models.Subscription, error) {
	row, ok := r.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (r *fakeSubscriptionRepo) UpdateFields(id string, fields map[string]interface{}) error {
	row, ok := r.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	applyFields(row, fields)
	return nil
}

func (r *fakeSubscriptionRepo) UpdateWithStatusGuard(id, expectedStatus string, fields map[string]interface{}) error {
	row, ok := r.rows[id]
	if !ok || row.Status != expectedStatus {
		return fmt.Errorf("%w: guard miss on %s", models.ErrBadStatus, id)
	}
	applyFields(row, fields)
	return nil
}

func applyFields(row *models.Subscription, fields map[string]interface{}) {
	for key, value := range fields {
		switch key {
		case "status":
			row.Status = value.(string)
		case "validation":
			row.Validation = value.(*models.SubscriptionValidation)
		case "rejection":
			row.Rejection = value.(*models.SubscriptionRejection)
		case "attachments":
			if value == nil {
				row.Attachments = nil
			} else {
				row.Attachments = value.(models.AttachmentRefList)
			}
		case "specific_fields":
			if value == nil {
				row.SpecificFields = nil
			} else {
				row.SpecificFields = value.(models.SpecificFields)
			}
		case "encrypted_aes_key":
			row.EncryptedAESKey = value.(string)
		case "encrypted_iv":
			row.EncryptedIV = value.(string)
		case "encryption_key_id":
			row.EncryptionKeyID = value.(string)
		case "encryption_key_version":
			row.EncryptionKeyVersion = value.(int)
		}
	}
}

func (r *fakeSubscriptionRepo) List(filter repository.SubscriptionFilter) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, row := range r.rows {
		if row.Status != models.StatusDraft {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *fakeSubscriptionRepo) Count(filter repository.SubscriptionFilter) (int64, error) {
	rows, _ := r.List(filter)
	return int64(len(rows)), nil
}

func (r *fakeSubscriptionRepo) HasValidatedForIncentives(citizenID string, incentiveIDs []string) (bool, error) {
	return false, nil
}

type fakeIncentiveRepo struct {
	rows map[string]*models.Incentive
}

func (r *fakeIncentiveRepo) GetByID(id string) (*models.Incentive, error) {
	row, ok := r.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (r *fakeIncentiveRepo) GetCheckDefinitionsByIDs(ids []string) ([]models.EligibilityCheckDefinition, error) {
	return nil, nil
}

type fakeCitizenRepo struct {
	rows map[string]*models.Citizen
}

func (r *fakeCitizenRepo) GetByID(id string) (*models.Citizen, error) {
	row, ok := r.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return row, nil
}

type fakeFunderRepo struct {
	rows map[string]*models.Funder
}

func (r *fakeFunderRepo) GetByID(id string) (*models.Funder, error) {
	row, ok := r.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (r *fakeFunderRepo) GetEnterpriseByID(id string) (*models.Funder, error) {
	row, ok := r.rows[id]
	if !ok || row.Type != models.FunderTypeEnterprise {
		return nil, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (r *fakeFunderRepo) GetByNames(names []string) ([]models.Funder, error) {
	return nil, nil
}

type fakeMetadataRepo struct {
	rows    map[string]*models.Metadata
	deleted []string
}

func (r *fakeMetadataRepo) Create(m *models.Metadata) error {
	if m.ID == "" {
		m.ID = fmt.Sprintf("meta-%d", len(r.rows)+1)
	}
	r.rows[m.ID] = m
	return nil
}

func (r *fakeMetadataRepo) GetByID(id string) (*models.Metadata, error) {
	row, ok := r.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (r *fakeMetadataRepo) Delete(id string) error {
	delete(r.rows, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type fakeBlobStore struct {
	uploads   map[string][]storage.File
	deleted   []string
	downloads map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{uploads: map[string][]storage.File{}, downloads: map[string][]byte{}}
}

func (b *fakeBlobStore) UploadFileList(_ context.Context, citizenID, subscriptionID string, files []storage.File) error {
	b.uploads[subscriptionID] = append(b.uploads[subscriptionID], files...)
	return nil
}

func (b *fakeBlobStore) DownloadFileBuffer(_ context.Context, citizenID, subscriptionID, filename string) ([]byte, error) {
	return b.downloads[filename], nil
}

func (b *fakeBlobStore) DeleteObjectFolder(_ context.Context, citizenID, subscriptionID string) error {
	b.deleted = append(b.deleted, subscriptionID)
	return nil
}

type sentMail struct {
	To       string
	Subject  string
	Template string
	Data     map[string]interface{}
}

type fakeMailer struct {
	sent []sentMail
}

func (m *fakeMailer) SendMailAsHTML(to, subject, templateName string, data map[string]interface{}) error {
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Template: templateName, Data: data})
	return nil
}

type publishedMessage struct {
	Payload    interface{}
	Enterprise string
}

type fakeQueue struct {
	published []publishedMessage
}

func (q *fakeQueue) Publish(_ context.Context, payload interface{}, enterpriseName string) error {
	q.published = append(q.published, publishedMessage{Payload: payload, Enterprise: enterpriseName})
	return nil
}

type fakeInvoices struct {
	files []storage.File
}

func (f *fakeInvoices) GeneratePDFInvoices(invoices []models.Invoice) ([]storage.File, error) {
	if len(invoices) == 0 {
		return nil, nil
	}
	return f.files, nil
}

type fakeCertifier struct {
	certified []string
}

func (c *fakeCertifier) CertifySubscription(_ context.Context, s *models.Subscription, _ models.TimestampRequest) error {
	c.certified = append(c.certified, s.ID+":"+s.Status)
	return nil
}

type fakeChecker struct {
	outcome eligibility.Outcome
}

func (c *fakeChecker) Run(_ context.Context, _ *models.Subscription, _ *models.Incentive, _ time.Time) (eligibility.Outcome, error) {
	return c.outcome, nil
}

// ---- fixture ----

type fixture struct {
	service       *Service
	subscriptions *fakeSubscriptionRepo
	incentives    *fakeIncentiveRepo
	citizens      *fakeCitizenRepo
	funders       *fakeFunderRepo
	metadata      *fakeMetadataRepo
	blobs         *fakeBlobStore
	queue         *fakeQueue
	mailer        *fakeMailer
	invoices      *fakeInvoices
	certifier     *fakeCertifier
	checker       *fakeChecker
}

func newFixture() *fixture {
	f := &fixture{
		subscriptions: newFakeSubscriptionRepo(),
		incentives:    &fakeIncentiveRepo{rows: map[string]*models.Incentive{}},
		citizens:      &fakeCitizenRepo{rows: map[string]*models.Citizen{}},
		funders:       &fakeFunderRepo{rows: map[string]*models.Funder{}},
		metadata:      &fakeMetadataRepo{rows: map[string]*models.Metadata{}},
		blobs:         newFakeBlobStore(),
		queue:         &fakeQueue{},
		mailer:        &fakeMailer{},
		invoices:      &fakeInvoices{},
		certifier:     &fakeCertifier{},
		checker:       &fakeChecker{},
	}
	f.service = NewService(Deps{
		Subscriptions: f.subscriptions,
		Incentives:    f.incentives,
		Citizens:      f.citizens,
		Funders:       f.funders,
		Metadata:      f.metadata,
		Blobs:         f.blobs,
		Queue:         f.queue,
		Mailer:        f.mailer,
		Invoices:      f.invoices,
		Certifier:     f.certifier,
		Checker:       f.checker,
	})

	f.incentives.rows["incentive-1"] = &models.Incentive{
		ID:                    "incentive-1",
		Title:                 "Aide vélo",
		FunderID:              "funder-1",
		FunderName:            "Capgemini",
		IncentiveType:         models.IncentiveTypeEmployer,
		SubscriptionCheckMode: models.CheckModeManual,
	}
	f.citizens.rows["citizen-1"] = &models.Citizen{
		ID:        "citizen-1",
		LastName:  "Rasovsky",
		FirstName: "bob",
		Email:     "bob@example.com",
		Birthdate: "1970-01-01",
	}
	f.funders.rows["funder-1"] = &models.Funder{
		ID:   "funder-1",
		Name: "Capgemini",
		Type: models.FunderTypeEnterprise,
	}
	return f
}

func (f *fixture) createDraft(t *testing.T) *models.Subscription {
	t.Helper()
	sub, err := f.service.Create(context.Background(), "citizen-1", CreateInput{
		IncentiveID:    "incentive-1",
		SpecificFields: map[string]interface{}{"Type de trajet": []string{"Court"}},
	})
	require.NoError(t, err)
	return sub
}

func testPublicKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// ---- tests ----

func TestCreateSnapshotsCitizenIdentity(t *testing.T) {
	f := newFixture()

	sub := f.createDraft(t)

	assert.Equal(t, models.StatusDraft, sub.Status)
	assert.Equal(t, "Rasovsky", sub.LastName)
	assert.Equal(t, "bob@example.com", sub.Email)
	assert.Equal(t, "Aide vélo", sub.IncentiveTitle)
	assert.Equal(t, "funder-1", sub.FunderID)
	assert.Empty(t, f.certifier.certified)
}

func TestCreateUnknownIncentiveIsNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.service.Create(context.Background(), "citizen-1", CreateInput{IncentiveID: "nope"})

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Status)
}

func TestCreateTimestampsWhenRequired(t *testing.T) {
	f := newFixture()
	f.incentives.rows["incentive-1"].IsCertifiedTimestampRequired = true

	sub := f.createDraft(t)

	assert.Equal(t, []string{sub.ID + ":" + models.StatusDraft}, f.certifier.certified)
}

func TestFinalizeManualMovesToProcessAndNotifies(t *testing.T) {
	f := newFixture()
	f.funders.rows["funder-1"].IsHris = true
	sub := f.createDraft(t)

	result, err := f.service.Finalize(context.Background(), sub.ID)

	require.NoError(t, err)
	assert.Equal(t, models.StatusToProcess, result.Status)

	stored, _ := f.subscriptions.GetByID(sub.ID)
	assert.Equal(t, models.StatusToProcess, stored.Status)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "bob@example.com", f.mailer.sent[0].To)
	assert.Equal(t, mail.TemplateRequestsToProcess, f.mailer.sent[0].Template)
	assert.Equal(t, "Bob", f.mailer.sent[0].Data["Username"])

	require.Len(t, f.queue.published, 1)
	assert.Equal(t, "Capgemini", f.queue.published[0].Enterprise)
	payload := f.queue.published[0].Payload.(IntegrationPayload)
	assert.Equal(t, sub.ID, payload.SubscriptionID)
	assert.Equal(t, models.StatusToProcess, payload.Status)
	assert.Equal(t, "short", payload.SpecificFields.JourneyType)
}

func TestFinalizeManualSkipsBusForNonHrisEnterprise(t *testing.T) {
	f := newFixture()
	sub := f.createDraft(t)

	_, err := f.service.Finalize(context.Background(), sub.ID)

	require.NoError(t, err)
	assert.Empty(t, f.queue.published)
}

func TestFinalizeManualSuppressesMailWhenNotificationsDisabled(t *testing.T) {
	f := newFixture()
	f.incentives.rows["incentive-1"].IsCitizenNotificationsDisabled = true
	sub := f.createDraft(t)

	_, err := f.service.Finalize(context.Background(), sub.ID)

	require.NoError(t, err)
	assert.Empty(t, f.mailer.sent)
}

func TestFinalizeNonDraftIsConflict(t *testing.T) {
	f := newFixture()
	sub := f.createDraft(t)
	_, err := f.service.Finalize(context.Background(), sub.ID)
	require.NoError(t, err)

	_, err = f.service.Finalize(context.Background(), sub.ID)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.Status)

	stored, _ := f.subscriptions.GetByID(sub.ID)
	assert.Equal(t, models.StatusToProcess, stored.Status, "a refused finalize must not mutate state")
}

func TestFinalizeAutomaticValidates(t *testing.T) {
	f := newFixture()
	f.incentives.rows["incentive-1"].SubscriptionCheckMode = models.CheckModeAutomatic
	f.checker.outcome = eligibility.Outcome{Eligible: true, AdditionalProperties: map[string]interface{}{"k": "v"}}
	sub := f.createDraft(t)

	result, err := f.service.Finalize(context.Background(), sub.ID)

	require.NoError(t, err)
	assert.Equal(t, models.StatusValidated, result.Status)

	stored, _ := f.subscriptions.GetByID(sub.ID)
	assert.Equal(t, models.StatusValidated, stored.Status)
	require.NotNil(t, stored.Validation)
	assert.Equal(t, models.PaymentModeNone, stored.Validation.Mode)
	assert.Equal(t, map[string]interface{}{"k": "v"}, stored.Validation.AdditionalProperties)
	assert.Nil(t, stored.Rejection)
}

func TestFinalizeAutomaticRejectsWithComments(t *testing.T) {
	f := newFixture()
	f.incentives.rows["incentive-1"].SubscriptionCheckMode = models.CheckModeAutomatic
	f.checker.outcome = eligibility.Outcome{
		Eligible:        false,
		RejectionReason: models.RejectionInvalidRPCCEERequest,
		Comments:        "HTTP 404 - Not Found",
	}
	sub := f.createDraft(t)

	result, err := f.service.Finalize(context.Background(), sub.ID)

	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, result.Status)
	assert.Equal(t, models.RejectionInvalidRPCCEERequest, result.RejectionReason)
	assert.Equal(t, "HTTP 404 - Not Found", result.Comments)

	stored, _ := f.subscriptions.GetByID(sub.ID)
	require.NotNil(t, stored.Rejection)
	assert.Equal(t, models.RejectionInvalidRPCCEERequest, stored.Rejection.Type)
	assert.Nil(t, stored.Validation)
	assert.Nil(t, stored.SpecificFields, "rejection scrubs the applicant's answers")
}

func TestFinalizeAutomaticTimestampsAfterTransition(t *testing.T) {
	f := newFixture()
	f.incentives.rows["incentive-1"].SubscriptionCheckMode = models.CheckModeAutomatic
	f.incentives.rows["incentive-1"].IsCertifiedTimestampRequired = true
	f.checker.outcome = eligibility.Outcome{Eligible: true}
	sub := f.createDraft(t)

	_, err := f.service.Finalize(context.Background(), sub.ID)

	require.NoError(t, err)
	assert.Equal(t, []string{sub.ID + ":" + models.StatusValidated}, f.certifier.certified,
		"the certified snapshot must carry the post-transition status")
}

func TestValidateTransitionsExactlyOnce(t *testing.T) {
	f := newFixture()
	sub := f.createDraft(t)
	_, err := f.service.Finalize(context.Background(), sub.ID)
	require.NoError(t, err)

	amount := 50.0
	payment := &models.SubscriptionValidation{Mode: models.PaymentModeUnique, Amount: &amount}
	require.NoError(t, f.service.Validate(context.Background(), sub.ID, payment))

	stored, _ := f.subscriptions.GetByID(sub.ID)
	assert.Equal(t, models.StatusValidated, stored.Status)
	require.NotNil(t, stored.Validation)
	assert.Nil(t, stored.Rejection)

	err = f.service.Validate(context.Background(), sub.ID, payment)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.Status)
}

func TestValidateSendsMailToCitizenAndEnterprise(t *testing.T) {
	f := newFixture()
	f.citizens.rows["citizen-1"].EnterpriseEmail = "bob@capgemini.com"
	sub := f.createDraft(t)
	_, err := f.service.Finalize(context.Background(), sub.ID)
	require.NoError(t, err)
	f.mailer.sent = nil

	require.NoError(t, f.service.Validate(context.Background(), sub.ID,
		&models.SubscriptionValidation{Mode: models.PaymentModeNone}))

	require.Len(t, f.mailer.sent, 2)
	assert.Equal(t, "bob@example.com", f.mailer.sent[0].To)
	assert.Equal(t, "bob@capgemini.com", f.mailer.sent[1].To)
	assert.Equal(t, mail.TemplateSubscriptionValidated, f.mailer.sent[0].Template)
}

func TestCheckPaymentTable(t *testing.T) {
	f := newFixture()
	amount := 25.0
	future := time.Now().AddDate(0, 3, 0).Format("2006-01-02")
	soon := time.Now().AddDate(0, 1, 0).Format("2006-01-02")

	tests := []struct {
		name       string
		payment    models.SubscriptionValidation
		wantStatus int
	}{
		{"none ok", models.SubscriptionValidation{Mode: models.PaymentModeNone}, 0},
		{"none with amount", models.SubscriptionValidation{Mode: models.PaymentModeNone, Amount: &amount}, 422},
		{"unique ok", models.SubscriptionValidation{Mode: models.PaymentModeUnique, Amount: &amount}, 0},
		{"unique without amount", models.SubscriptionValidation{Mode: models.PaymentModeUnique}, 422},
		{"multiple ok", models.SubscriptionValidation{
			Mode: models.PaymentModeMultiple, Amount: &amount,
			Frequency: models.PaymentFreqMonthly, LastPayment: future}, 0},
		{"multiple without frequency", models.SubscriptionValidation{
			Mode: models.PaymentModeMultiple, Amount: &amount, LastPayment: future}, 422},
		{"multiple too close", models.SubscriptionValidation{
			Mode: models.PaymentModeMultiple, Amount: &amount,
			Frequency: models.PaymentFreqMonthly, LastPayment: soon}, 400},
		{"unknown mode", models.SubscriptionValidation{Mode: "weekly"}, 422},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payment := tt.payment
			err := f.service.CheckPayment(&payment)
			if tt.wantStatus == 0 {
				assert.NoError(t, err)
				return
			}
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, appErr.Status)
		})
	}
}

func TestRejectScrubsAttachmentsAndNotifies(t *testing.T) {
	f := newFixture()
	sub := f.createDraft(t)
	require.NoError(t, f.service.AddAttachments(context.Background(), sub.ID,
		[]storage.File{{Name: "proof.pdf", Body: []byte("x"), MimeType: "application/pdf", ProofType: "proof"}}, ""))
	_, err := f.service.Finalize(context.Background(), sub.ID)
	require.NoError(t, err)
	f.mailer.sent = nil

	require.NoError(t, f.service.Reject(context.Background(), sub.ID,
		&models.SubscriptionRejection{Type: models.RejectionMissingProof}))

	stored, _ := f.subscriptions.GetByID(sub.ID)
	assert.Equal(t, models.StatusRejected, stored.Status)
	assert.Nil(t, stored.Attachments)
	assert.Equal(t, []string{sub.ID}, f.blobs.deleted)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, mail.TemplateSubscriptionRejected, f.mailer.sent[0].Template)
	assert.Equal(t, "Justificatif manquant", f.mailer.sent[0].Data["Motive"])
}

func TestRejectOtherRequiresText(t *testing.T) {
	f := newFixture()
	sub := f.createDraft(t)
	_, err := f.service.Finalize(context.Background(), sub.ID)
	require.NoError(t, err)

	err = f.service.Reject(context.Background(), sub.ID,
		&models.SubscriptionRejection{Type: models.RejectionOther})

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 422, appErr.Status)
}

func TestAddAttachmentsNoFilesNoMetadataIsNoop(t *testing.T) {
	f := newFixture()
	sub := f.createDraft(t)

	require.NoError(t, f.service.AddAttachments(context.Background(), sub.ID, nil, ""))

	stored, _ := f.subscriptions.GetByID(sub.ID)
	assert.Empty(t, stored.Attachments)
	assert.Empty(t, f.blobs.uploads)
}

func TestAddAttachmentsEmptyInvoicesStillConsumesMetadata(t *testing.T) {
	f := newFixture()
	sub := f.createDraft(t)
	f.metadata.rows["meta-1"] = &models.Metadata{ID: "meta-1", IncentiveID: "incentive-1", CitizenID: "citizen-1"}

	require.NoError(t, f.service.AddAttachments(context.Background(), sub.ID, nil, "meta-1"))

	assert.Equal(t, []string{"meta-1"}, f.metadata.deleted)
	assert.Empty(t, f.blobs.uploads)
	stored, _ := f.subscriptions.GetByID(sub.ID)
	assert.Empty(t, stored.Attachments)
}

func TestAddAttachmentsOrdersUploadsBeforeInvoices(t *testing.T) {
	f := newFixture()
	sub := f.createDraft(t)
	f.metadata.rows["meta-1"] = &models.Metadata{
		ID: "meta-1", IncentiveID: "incentive-1", CitizenID: "citizen-1",
		AttachmentMetadata: models.AttachmentMetadata{Invoices: []models.Invoice{{}}},
	}
	f.invoices.files = []storage.File{{Name: "invoice.pdf", Body: []byte("p"), MimeType: "application/pdf", ProofType: "invoice"}}

	uploaded := []storage.File{
		{Name: "ticket.png", Body: []byte("a"), MimeType: "image/png", ProofType: "proof"},
		{Name: "ticket.png", Body: []byte("b"), MimeType: "image/png", ProofType: "proof"},
	}
	require.NoError(t, f.service.AddAttachments(context.Background(), sub.ID, uploaded, "meta-1"))

	stored, _ := f.subscriptions.GetByID(sub.ID)
	require.Len(t, stored.Attachments, 3)
	assert.Equal(t, "ticket.png", stored.Attachments[0].OriginalName)
	assert.Equal(t, "ticket(1).png", stored.Attachments[1].OriginalName)
	assert.Equal(t, "invoice.pdf", stored.Attachments[2].OriginalName)
	assert.Equal(t, "invoice", stored.Attachments[2].ProofType)
	assert.Len(t, f.blobs.uploads[sub.ID], 3)
}

func TestAddAttachmentsEncryptsWhenFunderHasKey(t *testing.T) {
	f := newFixture()
	f.funders.rows["funder-1"].EncryptionKeyID = "key-1"
	f.funders.rows["funder-1"].EncryptionKeyVersion = 2
	f.funders.rows["funder-1"].EncryptionPublicKey = testPublicKeyPEM(t)
	sub := f.createDraft(t)
	body := []byte("clear text body")

	require.NoError(t, f.service.AddAttachments(context.Background(), sub.ID,
		[]storage.File{{Name: "proof.pdf", Body: body, MimeType: "application/pdf", ProofType: "proof"}}, ""))

	stored, _ := f.subscriptions.GetByID(sub.ID)
	assert.Equal(t, "key-1", stored.EncryptionKeyID)
	assert.Equal(t, 2, stored.EncryptionKeyVersion)
	assert.NotEmpty(t, stored.EncryptedAESKey)
	assert.NotEmpty(t, stored.EncryptedIV)
	require.Len(t, f.blobs.uploads[sub.ID], 1)
	assert.NotEqual(t, body, f.blobs.uploads[sub.ID][0].Body)
}

func TestAddAttachmentsOnRejectedIsConflict(t *testing.T) {
	f := newFixture()
	sub := f.createDraft(t)
	_, err := f.service.Finalize(context.Background(), sub.ID)
	require.NoError(t, err)
	require.NoError(t, f.service.Reject(context.Background(), sub.ID,
		&models.SubscriptionRejection{Type: models.RejectionMissingProof}))

	err = f.service.AddAttachments(context.Background(), sub.ID,
		[]storage.File{{Name: "late.pdf", Body: []byte("x"), MimeType: "application/pdf", ProofType: "proof"}}, "")

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.Status)
	assert.Equal(t, "subscriptions.error.bad.status", appErr.Code)
	// The scrub performed by the rejection must stand.
	stored, _ := f.subscriptions.GetByID(sub.ID)
	assert.Nil(t, stored.Attachments)
	assert.Empty(t, f.blobs.uploads[sub.ID])
}

func TestPatchSpecificFieldsMergesByKey(t *testing.T) {
	f := newFixture()
	sub := f.createDraft(t)

	err := f.service.PatchSpecificFields(context.Background(), sub.ID, map[string]interface{}{
		"Type de trajet":      []string{"Long"},
		"Numéro de téléphone": "0123456789",
	})

	require.NoError(t, err)
	stored, _ := f.subscriptions.GetByID(sub.ID)
	assert.Equal(t, []string{"Long"}, stored.SpecificFields["Type de trajet"])
	assert.Equal(t, "0123456789", stored.SpecificFields["Numéro de téléphone"])
}

func TestPatchSpecificFieldsTimestampsWhenRequired(t *testing.T) {
	f := newFixture()
	f.incentives.rows["incentive-1"].IsCertifiedTimestampRequired = true
	sub := f.createDraft(t)
	f.certifier.certified = nil

	err := f.service.PatchSpecificFields(context.Background(), sub.ID, map[string]interface{}{"a": "b"})

	require.NoError(t, err)
	assert.Len(t, f.certifier.certified, 1)
}

func TestPatchSpecificFieldsOnTerminalIsConflict(t *testing.T) {
	f := newFixture()
	sub := f.createDraft(t)
	_, err := f.service.Finalize(context.Background(), sub.ID)
	require.NoError(t, err)
	require.NoError(t, f.service.Reject(context.Background(), sub.ID,
		&models.SubscriptionRejection{Type: models.RejectionMissingProof}))

	err = f.service.PatchSpecificFields(context.Background(), sub.ID, map[string]interface{}{"a": "b"})

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.Status)
	stored, _ := f.subscriptions.GetByID(sub.ID)
	assert.Nil(t, stored.SpecificFields)
}

func TestDownloadAttachmentChecksIndex(t *testing.T) {
	f := newFixture()
	sub := f.createDraft(t)
	require.NoError(t, f.service.AddAttachments(context.Background(), sub.ID,
		[]storage.File{{Name: "proof.pdf", Body: []byte("x"), MimeType: "application/pdf", ProofType: "proof"}}, ""))
	f.blobs.downloads["proof.pdf"] = []byte("x")

	body, mimeType, err := f.service.DownloadAttachment(context.Background(), sub.ID, "proof.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), body)
	assert.Equal(t, "application/pdf", mimeType)

	_, _, err = f.service.DownloadAttachment(context.Background(), sub.ID, "other.pdf")
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Status)
}

func TestCreateAndPreviewMetadata(t *testing.T) {
	f := newFixture()
	metadata := &models.Metadata{
		IncentiveID: "incentive-1",
		AttachmentMetadata: models.AttachmentMetadata{Invoices: []models.Invoice{{
			Customer:    models.InvoiceCustomer{CustomerName: "NEYMAR", CustomerSurname: "Jean"},
			Transaction: models.InvoiceTransaction{PurchaseDate: time.Date(2021, 3, 3, 12, 0, 0, 0, time.UTC)},
			Products:    []models.InvoiceProduct{{ProductName: "Forfait Navigo Mois"}},
		}}},
	}

	url, err := f.service.CreateMetadata("citizen-1", metadata)
	require.NoError(t, err)
	assert.Contains(t, url, "incentiveId=incentive-1")
	assert.Contains(t, url, "metadataId="+metadata.ID)

	preview, err := f.service.GetMetadata(metadata.ID)
	require.NoError(t, err)
	assert.Equal(t, "citizen-1", preview.CitizenID)
	require.Len(t, preview.Attachments, 1)
	assert.Equal(t, "03-03-2021_Forfait_Navigo_Mois_Jean_NEYMAR.pdf", preview.Attachments[0]["fileName"])
}

// Package timestamping certifies subscription states through an RFC 3161
// timestamping authority.
package timestamping

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/digitorus/timestamp"
	"github.com/gofiber/fiber/v2/log"

	"github.com/moncompte-mobilite/mcm-api/app/models"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/env"
)

// Proof is one granted timestamp: the DER-encoded token and the authority's
// signing time.
type Proof struct {
	Token       []byte
	SigningTime time.Time
}

// TSAClient requests timestamp tokens over a message digest.
type TSAClient interface {
	Timestamp(ctx context.Context, data []byte) (Proof, error)
}

// Client is the HTTP TSA client.
type Client struct {
	httpClient *http.Client
	url        string
}

// NewClient builds a TSA client from the environment.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        env.GetEnv("TSA_URL", "https://freetsa.org/tsr"),
	}
}

// NewClientWith builds a client against an explicit endpoint, used by tests.
func NewClientWith(httpClient *http.Client, url string) *Client {
	return &Client{httpClient: httpClient, url: url}
}

// Timestamp asks the authority to sign the SHA-256 of data.
func (c *Client) Timestamp(ctx context.Context, data []byte) (Proof, error) {
	request, err := timestamp.CreateRequest(bytes.NewReader(data), &timestamp.RequestOptions{
		Hash:         crypto.SHA256,
		Certificates: true,
	})
	if err != nil {
		return Proof{}, fmt.Errorf("timestamping: create request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(request))
	if err != nil {
		return Proof{}, fmt.Errorf("timestamping: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/timestamp-query")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Proof{}, fmt.Errorf("timestamping: call authority: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Proof{}, fmt.Errorf("timestamping: authority answered %d", resp.StatusCode)
	}

	token, err := io.ReadAll(resp.Body)
	if err != nil {
		return Proof{}, fmt.Errorf("timestamping: read token: %w", err)
	}

	parsed, err := timestamp.ParseResponse(token)
	if err != nil {
		return Proof{}, fmt.Errorf("timestamping: parse token: %w", err)
	}

	return Proof{Token: token, SigningTime: parsed.Time}, nil
}

// Recorder stores the granted proofs.
type Recorder interface {
	Create(timestamp *models.SubscriptionTimestamp) error
}

// Service hashes subscription snapshots, gets them signed and appends the
// proof to the audit trail.
type Service struct {
	tsa        TSAClient
	timestamps Recorder
}

func NewService(tsa TSAClient, timestamps Recorder) *Service {
	return &Service{tsa: tsa, timestamps: timestamps}
}

// CertifySubscription timestamps the current subscription state. The
// snapshot is the subscription's JSON form; its SHA-256 goes to the
// authority.
func (s *Service) CertifySubscription(ctx context.Context, subscription *models.Subscription, request models.TimestampRequest) error {
	snapshot, err := json.Marshal(subscription)
	if err != nil {
		return fmt.Errorf("timestamping: marshal subscription: %w", err)
	}
	digest := sha256.Sum256(snapshot)

	proof, err := s.tsa.Timestamp(ctx, snapshot)
	if err != nil {
		return err
	}

	record := &models.SubscriptionTimestamp{
		SubscriptionID:     subscription.ID,
		TimestampedData:    string(snapshot),
		HashedSubscription: hex.EncodeToString(digest[:]),
		TimestampToken:     proof.Token,
		SigningTime:        proof.SigningTime,
		Request:            request,
	}
	if err := s.timestamps.Create(record); err != nil {
		return fmt.Errorf("timestamping: store proof: %w", err)
	}

	log.Infof("[Timestamping] Subscription %s certified at %s", subscription.ID, proof.SigningTime)
	return nil
}

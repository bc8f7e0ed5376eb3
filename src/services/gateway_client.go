// backend/src/services/gateway_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/username/crowdvest/backend/src/logger"
	"golang.org/x/net/publicsuffix"
)

// settlementGatewayImpl talks to the external settlement processor over
// HTTP/JSON. Submission failures and unreachable endpoints surface as errors;
// a "failed" transaction status is data, not an error.
type settlementGatewayImpl struct {
	httpClient http.Client
	baseURL    string
	apiKey     string
}

func NewSettlementGateway(baseURL, apiKey string) SettlementGateway {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	client := http.Client{
		Jar:     jar,
		Timeout: 20 * time.Second,
	}

	return &settlementGatewayImpl{
		httpClient: client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

func (g *settlementGatewayImpl) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	return req, nil
}

// decodeGatewayError extracts the {"error": "..."} payload the gateway sends
// on rejections, falling back to the HTTP status.
func decodeGatewayError(statusCode int, body []byte) error {
	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("settlement gateway: %s", apiErr.Error)
	}
	return fmt.Errorf("settlement gateway returned HTTP %d", statusCode)
}

func (g *settlementGatewayImpl) SubmitInvestment(ctx context.Context, submission SubmissionRequest) (*SubmissionResponse, error) {
	payload, err := json.Marshal(submission)
	if err != nil {
		return nil, fmt.Errorf("encoding submission: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPost, "/v1/transactions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("settlement gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		logger.L.Warn("Settlement submission rejected",
			"status", resp.StatusCode, "campaign", submission.CampaignSlug, "userID", submission.UserID)
		return nil, decodeGatewayError(resp.StatusCode, body)
	}

	var out SubmissionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding gateway response: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("settlement gateway response missing transaction id")
	}

	logger.L.Info("Settlement submission accepted",
		"transactionRef", out.ID, "status", out.Status, "campaign", submission.CampaignSlug)
	return &out, nil
}

func (g *settlementGatewayImpl) GetTransactionStatus(ctx context.Context, transactionRef string) (*TransactionStatus, error) {
	req, err := g.newRequest(ctx, http.MethodGet, "/v1/transactions/"+transactionRef, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("settlement gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, decodeGatewayError(resp.StatusCode, body)
	}

	var status TransactionStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decoding transaction status: %w", err)
	}
	return &status, nil
}

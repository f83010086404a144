package extraction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Client calls the external document-understanding collaborator. The raw
// failure is returned unclassified; the pipeline owns classification.
type Client interface {
	Extract(ctx context.Context, documentPayload string) (*RawResult, error)
}

// RawResult mirrors the collaborator's response fields before coercion.
// Everything arrives as strings; mapping normalizes them into draft values.
type RawResult struct {
	PolicyNumber  string `json:"policyNumber"`
	ClientName    string `json:"clientName"`
	VehicleNumber string `json:"vehicleNumber"`
	VehicleMake   string `json:"vehicleMake"`
	VehicleModel  string `json:"vehicleModel"`
	InsurerName   string `json:"insurerName"`
	ContactNumber string `json:"contactNumber"`
	NetPremium    string `json:"netPremium"`
	SumInsured    string `json:"sumInsured"`
	GrossPremium  string `json:"grossPremium"`
	InsuranceType string `json:"insuranceType"`
	ActiveDate    string `json:"activeDate"`
}

type extractRequest struct {
	DocumentPayload string `json:"documentPayload"`
}

type extractResponse struct {
	Success bool       `json:"success"`
	Data    *RawResult `json:"data,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// HTTPClient is the production extraction-service client.
type HTTPClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiToken string) *HTTPClient {
	return &HTTPClient{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Extract submits the base64 document payload and returns the raw fields the
// service found. A response with success=false is a *ServiceError carrying
// the collaborator's reported reason.
func (c *HTTPClient) Extract(ctx context.Context, documentPayload string) (*RawResult, error) {
	jsonData, err := json.Marshal(extractRequest{DocumentPayload: documentPayload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Reason: string(body)}
	}

	var result extractResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if !result.Success {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Reason: result.Error}
	}
	if result.Data == nil {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Reason: "no data extracted"}
	}

	return result.Data, nil
}

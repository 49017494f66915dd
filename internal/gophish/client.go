// Package gophish is a typed HTTP client for the GoPhish campaign
// management API. Read operations are idempotent and side-effect-free;
// snapshots it returns may be stale by the time the caller sees them.
package gophish

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bughra383/simulakra/internal/config"
	"github.com/bughra383/simulakra/internal/pkg/httpretry"
)

// Client is the GoPhish API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a new GoPhish API client
func NewClient(cfg config.GoPhishConfig) *Client {
	transport := http.DefaultTransport
	if !cfg.SSLVerification() {
		// Self-hosted GoPhish frequently runs on a self-signed cert.
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	timeout := cfg.Timeout()
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: trimTrailingSlash(cfg.BaseURL),
		apiKey:  cfg.APIKey,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout:   timeout,
			Transport: transport,
		}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// doRequest performs an authenticated request against /api/<endpoint>
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	reqURL := fmt.Sprintf("%s/api/%s", c.baseURL, endpoint)

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// ========== Resource Listings ==========

// GetSMTPProfiles retrieves all sending profiles
func (c *Client) GetSMTPProfiles(ctx context.Context) ([]SMTPProfile, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "smtp/", nil)
	if err != nil {
		return nil, err
	}
	var profiles []SMTPProfile
	if err := json.Unmarshal(respBody, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse smtp profiles: %w", err)
	}
	return profiles, nil
}

// GetTemplates retrieves all email templates
func (c *Client) GetTemplates(ctx context.Context) ([]Template, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "templates/", nil)
	if err != nil {
		return nil, err
	}
	var templates []Template
	if err := json.Unmarshal(respBody, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return templates, nil
}

// GetPages retrieves all landing pages
func (c *Client) GetPages(ctx context.Context) ([]Page, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "pages/", nil)
	if err != nil {
		return nil, err
	}
	var pages []Page
	if err := json.Unmarshal(respBody, &pages); err != nil {
		return nil, fmt.Errorf("failed to parse pages: %w", err)
	}
	return pages, nil
}

// ========== Groups ==========

// GetGroups retrieves all target groups
func (c *Client) GetGroups(ctx context.Context) ([]Group, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "groups/", nil)
	if err != nil {
		return nil, err
	}
	var groups []Group
	if err := json.Unmarshal(respBody, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse groups: %w", err)
	}
	return groups, nil
}

// CreateGroup creates a new target group
func (c *Client) CreateGroup(ctx context.Context, group Group) (*Group, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "groups/", group)
	if err != nil {
		return nil, err
	}
	var created Group
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("failed to parse created group: %w", err)
	}
	return &created, nil
}

// ========== Campaigns ==========

// GetCampaigns retrieves all campaigns
func (c *Client) GetCampaigns(ctx context.Context) ([]Campaign, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "campaigns/", nil)
	if err != nil {
		return nil, err
	}
	var campaigns []Campaign
	if err := json.Unmarshal(respBody, &campaigns); err != nil {
		return nil, fmt.Errorf("failed to parse campaigns: %w", err)
	}
	return campaigns, nil
}

// CreateCampaign creates and launches a campaign
func (c *Client) CreateCampaign(ctx context.Context, req CampaignRequest) (*Campaign, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "campaigns/", req)
	if err != nil {
		return nil, err
	}
	var created Campaign
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("failed to parse created campaign: %w", err)
	}
	return &created, nil
}

// GetCampaign retrieves the current snapshot of a campaign, including
// status, stats, groups, and per-target result records.
func (c *Client) GetCampaign(ctx context.Context, campaignID int64) (*Campaign, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("campaigns/%d", campaignID), nil)
	if err != nil {
		return nil, err
	}
	var campaign Campaign
	if err := json.Unmarshal(respBody, &campaign); err != nil {
		return nil, fmt.Errorf("failed to parse campaign: %w", err)
	}
	return &campaign, nil
}

// GetCampaignSummary retrieves a campaign's aggregate stats and timeline.
func (c *Client) GetCampaignSummary(ctx context.Context, campaignID int64) (*Summary, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("campaigns/%d/summary", campaignID), nil)
	if err != nil {
		return nil, err
	}
	var summary Summary
	if err := json.Unmarshal(respBody, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse campaign summary: %w", err)
	}
	return &summary, nil
}

// CompleteCampaign marks a campaign complete on the service side.
func (c *Client) CompleteCampaign(ctx context.Context, campaignID int64) error {
	_, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("campaigns/%d/complete", campaignID), nil)
	return err
}

// ========== Health Check ==========

// HealthCheck verifies connectivity and credentials with a cheap read.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.GetSMTPProfiles(ctx)
	return err
}

package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout    = 30 * time.Second
	accessTokenHeader = "X-Shopify-Access-Token"
	throttledCode     = "THROTTLED"
	maxErrorBodyBytes = 512
)

// ClientConfig describes how to reach the Admin GraphQL API.
type ClientConfig struct {
	ShopDomain  string
	APIVersion  string
	AccessToken string
	// Endpoint overrides the URL derived from ShopDomain and APIVersion.
	Endpoint   string
	HTTPClient *http.Client
}

// Client performs raw GraphQL requests against the Admin API
type Client struct {
	httpClient *http.Client
	endpoint   string
	token      string
}

// NewClient creates a new Shopify Admin API client
func NewClient(cfg ClientConfig) (*Client, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.ShopDomain == "" {
			return nil, fmt.Errorf("shop domain or endpoint is required")
		}
		domain := strings.TrimSuffix(strings.TrimPrefix(cfg.ShopDomain, "https://"), "/")
		endpoint = fmt.Sprintf("https://%s/admin/api/%s/graphql.json", domain, cfg.APIVersion)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		token:      cfg.AccessToken,
	}, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message    string `json:"message"`
		Extensions struct {
			Code string `json:"code"`
		} `json:"extensions"`
	} `json:"errors"`
}

// Do sends one GraphQL request and decodes the data member into out.
// It never retries; classification of the returned error is left to callers.
func (c *Client) Do(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(accessTokenHeader, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrInvalidToken
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return &ServerError{StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var gqlResp graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("failed to read response: %w", ctx.Err())
		}
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(gqlResp.Errors) > 0 {
		gqlErr := &GraphQLError{}
		for _, e := range gqlResp.Errors {
			if e.Extensions.Code == throttledCode {
				return ErrThrottled
			}
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
			gqlErr.Codes = append(gqlErr.Codes, e.Extensions.Code)
		}
		return gqlErr
	}

	if len(gqlResp.Data) == 0 || string(gqlResp.Data) == "null" {
		return fmt.Errorf("%w: empty data", ErrMalformedResponse)
	}
	if err := json.Unmarshal(gqlResp.Data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

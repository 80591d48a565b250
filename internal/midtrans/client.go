// Package midtrans is a thin client for the two Midtrans operations this
// backend needs: issuing a Snap payment token and querying transaction
// status.
package midtrans

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	snapSandboxBaseURL    = "https://app.sandbox.midtrans.com"
	snapProductionBaseURL = "https://app.midtrans.com"
	apiSandboxBaseURL     = "https://api.sandbox.midtrans.com"
	apiProductionBaseURL  = "https://api.midtrans.com"
)

// Config holds the gateway credentials and environment selection. SnapBaseURL
// and APIBaseURL override the environment-derived hosts; tests point them at
// a local server.
type Config struct {
	ServerKey   string
	ClientKey   string
	Production  bool
	SnapBaseURL string
	APIBaseURL  string
}

type Client interface {
	CreateTransaction(ctx context.Context, req SnapRequest) (string, error)
	TransactionStatus(ctx context.Context, orderTrxID string) (*TransactionStatusResponse, error)
}

type TransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type CustomerDetails struct {
	CustomerID int64  `json:"customer_id"`
	FirstName  string `json:"first_name"`
	Phone      string `json:"phone"`
}

type ItemDetail struct {
	ID       string `json:"id"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
}

type SnapRequest struct {
	TransactionDetails TransactionDetails `json:"transaction_details"`
	CustomerDetails    CustomerDetails    `json:"customer_details"`
	Items              []ItemDetail       `json:"item_details"`
}

type TransactionStatusResponse struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
}

// GatewayError reports an unreachable gateway or an unexpected response.
// Transient; handle-issuance calls may be retried.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("midtrans: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("midtrans: %s failed with status %d", e.Op, e.StatusCode)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

type HTTPClient struct {
	cfg         Config
	snapBaseURL string
	apiBaseURL  string
	httpClient  *http.Client
}

func NewClient(cfg Config) *HTTPClient {
	snapBase := cfg.SnapBaseURL
	if snapBase == "" {
		snapBase = snapSandboxBaseURL
		if cfg.Production {
			snapBase = snapProductionBaseURL
		}
	}
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = apiSandboxBaseURL
		if cfg.Production {
			apiBase = apiProductionBaseURL
		}
	}
	return &HTTPClient{
		cfg:         cfg,
		snapBaseURL: snapBase,
		apiBaseURL:  apiBase,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) CreateTransaction(ctx context.Context, snapReq SnapRequest) (string, error) {
	body, err := json.Marshal(snapReq)
	if err != nil {
		return "", &GatewayError{Op: "create transaction", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.snapBaseURL+"/snap/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return "", &GatewayError{Op: "create transaction", Err: err}
	}
	c.prepare(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &GatewayError{Op: "create transaction", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &GatewayError{Op: "create transaction", StatusCode: resp.StatusCode}
	}

	var snapResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snapResp); err != nil {
		return "", &GatewayError{Op: "create transaction", Err: err}
	}
	if snapResp.Token == "" {
		return "", &GatewayError{Op: "create transaction", Err: fmt.Errorf("response contained no token")}
	}
	return snapResp.Token, nil
}

func (c *HTTPClient) TransactionStatus(ctx context.Context, orderTrxID string) (*TransactionStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/v2/"+orderTrxID+"/status", nil)
	if err != nil {
		return nil, &GatewayError{Op: "transaction status", Err: err}
	}
	c.prepare(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Op: "transaction status", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &GatewayError{Op: "transaction status", StatusCode: resp.StatusCode}
	}

	var status TransactionStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, &GatewayError{Op: "transaction status", Err: err}
	}
	return &status, nil
}

// prepare sets the headers Midtrans expects: JSON both ways and HTTP basic
// auth with the server key as username and an empty password.
func (c *HTTPClient) prepare(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.ServerKey, "")
}

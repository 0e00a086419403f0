package surepet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/petsync/sureflap-sync/pkg/config"
	"github.com/petsync/sureflap-sync/pkg/model"
	"github.com/petsync/sureflap-sync/pkg/retry"
)

// DefaultHost is the Sure Petcare production API endpoint.
const DefaultHost = "https://app.api.surehub.io"

// ErrUnauthorized is returned when the session token is rejected.
// The orchestrator treats it as a session failure and re-authenticates.
var ErrUnauthorized = fmt.Errorf("surepet: unauthorized")

// Client talks to the Sure Petcare cloud REST API. It holds the session
// token obtained by Login; all other methods require a prior Login.
type Client struct {
	host     string
	username string
	password string
	deviceID string

	httpClient *http.Client
	retryCfg   retry.Config
	logger     *slog.Logger

	mu    sync.Mutex
	token string
}

// New creates a client from configuration. The request timeout covers
// the vendor's slow report endpoint; 120 s by default.
func New(cfg config.APIConfig, logger *slog.Logger) *Client {
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		host:       host,
		username:   cfg.Username,
		password:   cfg.Password,
		deviceID:   cfg.DeviceID,
		httpClient: &http.Client{Timeout: timeout},
		retryCfg:   retry.DefaultConfig(),
		logger:     logger,
	}
}

// Login authenticates against the vendor and stores the session token.
// Never retried internally; the orchestrator owns the reconnect backoff.
func (c *Client) Login(ctx context.Context) error {
	body := map[string]string{
		"email_address": c.username,
		"password":      c.password,
		"device_id":     c.deviceID,
	}

	var result struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}

	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &result, false); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	if result.Data.Token == "" {
		return fmt.Errorf("logging in: empty token in response")
	}

	c.mu.Lock()
	c.token = result.Data.Token
	c.mu.Unlock()

	return nil
}

// TestLogin validates credentials with a throwaway session and reports
// the outcome as a structured response rather than an error.
func TestLogin(ctx context.Context, req model.TestLoginRequest, logger *slog.Logger) model.TestLoginResponse {
	c := New(config.APIConfig{
		Host:     req.Host,
		Username: req.Username,
		Password: req.Password,
		Timeout:  30 * time.Second,
	}, logger)

	if err := c.Login(ctx); err != nil {
		return model.TestLoginResponse{Success: false, Error: err.Error()}
	}
	return model.TestLoginResponse{Success: true}
}

// Households returns all households visible to the account.
func (c *Client) Households(ctx context.Context) ([]model.Household, error) {
	var result struct {
		Data []model.Household `json:"data"`
	}
	if err := c.get(ctx, "/api/household", &result); err != nil {
		return nil, fmt.Errorf("requesting households: %w", err)
	}
	return result.Data, nil
}

// DevicesForHousehold returns all devices of one household, including
// status, control and tag sub-resources.
func (c *Client) DevicesForHousehold(ctx context.Context, householdID int64) ([]model.Device, error) {
	path := fmt.Sprintf("/api/household/%d/device?with[]=children&with[]=status&with[]=control&with[]=tags", householdID)

	var result struct {
		Data []wireDevice `json:"data"`
	}
	if err := c.get(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("requesting devices for household %d: %w", householdID, err)
	}

	devices := make([]model.Device, 0, len(result.Data))
	for _, wd := range result.Data {
		devices = append(devices, wd.toModel())
	}
	return devices, nil
}

// Pets returns all pets of the account with tag and position data.
func (c *Client) Pets(ctx context.Context) ([]model.Pet, error) {
	var result struct {
		Data []model.Pet `json:"data"`
	}
	if err := c.get(ctx, "/api/pet?with[]=position&with[]=tag", &result); err != nil {
		return nil, fmt.Errorf("requesting pets: %w", err)
	}
	return result.Data, nil
}

// HistoryForHousehold returns the household's event timeline page.
func (c *Client) HistoryForHousehold(ctx context.Context, householdID int64) ([]model.HistoryEvent, error) {
	path := fmt.Sprintf("/api/timeline/household/%d", householdID)

	var result struct {
		Data []model.HistoryEvent `json:"data"`
	}
	if err := c.get(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("requesting history for household %d: %w", householdID, err)
	}
	return result.Data, nil
}

// ReportForPet returns the trailing 7-day aggregate report for one pet.
func (c *Client) ReportForPet(ctx context.Context, householdID, petID int64) (*model.Report, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)
	path := fmt.Sprintf("/api/report/household/%d/pet/%d/aggregate?from=%s&to=%s",
		householdID, petID, from.Format(time.RFC3339), to.Format(time.RFC3339))

	var result struct {
		Data model.Report `json:"data"`
	}
	if err := c.get(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("requesting report for pet %d: %w", petID, err)
	}
	report := result.Data
	report.PetID = petID
	return &report, nil
}

// get performs an authenticated GET with transient-failure retries.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return retry.Do(ctx, c.retryCfg, func() error {
		return c.do(ctx, http.MethodGet, path, nil, out, true)
	})
}

// do performs one HTTP round trip. Writes go through this directly,
// without the retry wrapper.
func (c *Client) do(ctx context.Context, method, path string, body, out any, auth bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		c.mu.Lock()
		token := c.token
		c.mu.Unlock()
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 400:
		// Read a little of the body for diagnostics; vendor errors are JSON.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		err := fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(snippet))
		if retry.RetriableStatus(resp.StatusCode) {
			return retry.Transient(err)
		}
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

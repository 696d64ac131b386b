package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/oncall/internal/notify"
)

const defaultBaseURL = "https://api.twilio.com"

// Client places outbound calls through the Twilio REST API. It is a plain
// injected client; no process-global SDK state.
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
	accountSID string
	authToken  string
}

// NewClient creates a Twilio client for the given account credentials
func NewClient(accountSID, authToken string, logger *zap.Logger) *Client {
	return &Client{
		logger:     logger.Named("twilio"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		accountSID: accountSID,
		authToken:  authToken,
	}
}

// callResponse is the slice of Twilio's call resource we care about
type callResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// PlaceCall implements notify.CallPlacer. The instruction becomes either the
// Url parameter (hosted callback the provider fetches) or the inline Twiml
// parameter.
func (c *Client) PlaceCall(ctx context.Context, from, to string, instruction notify.CallInstruction) (string, error) {
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)

	if callbackURL, ok := instruction.HostedURL(); ok {
		form.Set("Url", callbackURL)
		form.Set("Method", "POST")
	} else if script, ok := instruction.Script(); ok {
		form.Set("Twiml", script)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build call request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to place call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read call response: %w", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("call request rejected: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var call callResponse
	if err := json.Unmarshal(body, &call); err != nil {
		return "", fmt.Errorf("failed to decode call response: %w", err)
	}

	c.logger.Debug("Outbound call created",
		zap.String("sid", call.SID),
		zap.String("status", call.Status),
		zap.String("to", to))

	return call.SID, nil
}

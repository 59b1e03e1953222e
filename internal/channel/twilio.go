package channel

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	beaconerrors "beacon/internal/errors"
	"beacon/internal/logging"
)

// TwilioConfig configures the Twilio-dialect REST client.
type TwilioConfig struct {
	BaseURL    string // override for tests; empty uses the public API
	AccountSID string
	AuthToken  string
	FromNumber string
	Timeout    time.Duration
}

const twilioDefaultBaseURL = "https://api.twilio.com"

// twilioClient speaks the Twilio 2010-04-01 REST dialect for both calls and
// messages: form-encoded POST, basic auth, JSON response carrying a sid.
type twilioClient struct {
	cfg        TwilioConfig
	httpClient *http.Client
	logger     logging.Logger
}

func newTwilioClient(cfg TwilioConfig, logger logging.Logger) *twilioClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioDefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &twilioClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.OrNop(logger),
	}
}

// NewTwilioCaller builds a VoiceCaller on the Twilio REST dialect.
func NewTwilioCaller(cfg TwilioConfig, logger logging.Logger) VoiceCaller {
	return &twilioCaller{twilioClient: newTwilioClient(cfg, logger)}
}

// NewTwilioMessenger builds a Messenger on the Twilio REST dialect.
func NewTwilioMessenger(cfg TwilioConfig, logger logging.Logger) Messenger {
	return &twilioMessenger{twilioClient: newTwilioClient(cfg, logger)}
}

type twilioCaller struct {
	*twilioClient
}

func (c *twilioCaller) Name() string { return "twilio-voice" }

func (c *twilioCaller) Call(ctx context.Context, req CallRequest) (string, error) {
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", c.cfg.FromNumber)
	form.Set("Twiml", buildTwiML(req))
	return c.post(ctx, "Calls.json", form)
}

type twilioMessenger struct {
	*twilioClient
}

func (m *twilioMessenger) Name() string { return "twilio-sms" }

func (m *twilioMessenger) Send(ctx context.Context, req SMSRequest) (string, error) {
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", m.cfg.FromNumber)
	form.Set("Body", req.Body)
	return m.post(ctx, "Messages.json", form)
}

func (c *twilioClient) post(ctx context.Context, resource string, form url.Values) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.AccountSID, resource)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", beaconerrors.NewTransientError(fmt.Errorf("twilio: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", beaconerrors.NewTransientError(fmt.Errorf("twilio: read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := fmt.Errorf("twilio: api error status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		return "", beaconerrors.FromHTTPStatus(resp.StatusCode, apiErr)
	}

	var parsed struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("twilio: decode response: %w", err)
	}
	if parsed.SID == "" {
		return "", fmt.Errorf("twilio: response missing sid")
	}
	c.logger.Debug("twilio %s accepted, sid=%s", resource, parsed.SID)
	return parsed.SID, nil
}

// buildTwiML renders the call instruction: play pre-synthesized audio when a
// URL is present, otherwise fall back to provider-side speech.
func buildTwiML(req CallRequest) string {
	var sb strings.Builder
	sb.WriteString("<Response>")
	if req.AudioURL != "" {
		sb.WriteString("<Play>")
		_ = xml.EscapeText(&sb, []byte(req.AudioURL))
		sb.WriteString("</Play>")
	} else {
		sb.WriteString("<Say>")
		_ = xml.EscapeText(&sb, []byte(req.Text))
		sb.WriteString("</Say>")
	}
	sb.WriteString("</Response>")
	return sb.String()
}

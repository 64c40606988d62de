package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/shelf/internal/domain"
)

const (
	DefaultDeviceCodeURL = "https://oauth2.googleapis.com/device/code"
	DefaultTokenURL      = "https://oauth2.googleapis.com/token"

	// driveScope limits access to files the app created
	driveScope = "https://www.googleapis.com/auth/drive.file"
)

// ErrCodeExpired indicates the device code expired before the user approved it
var ErrCodeExpired = errors.New("sign-in code expired")

// DeviceCode is what the user needs to approve the sign-in on another device
type DeviceCode struct {
	UserCode        string
	VerificationURL string
	deviceCode      string
	interval        time.Duration
	expiresAt       time.Time
}

// AuthClient runs the OAuth device authorization flow
type AuthClient struct {
	clientID     string
	clientSecret string
	codeURL      string
	tokenURL     string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewAuthClient creates a device-flow client for the given OAuth client
func NewAuthClient(clientID, clientSecret string, logger *slog.Logger) *AuthClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		codeURL:      DefaultDeviceCodeURL,
		tokenURL:     DefaultTokenURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (a *AuthClient) postForm(ctx context.Context, reqURL string, data url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(data.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Error("auth request failed", "url", reqURL, "error", err)
		return 0, nil, domain.ErrOffline
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// RequestCode starts a sign-in and returns the code to show the user
func (a *AuthClient) RequestCode(ctx context.Context) (DeviceCode, error) {
	data := url.Values{}
	data.Set("client_id", a.clientID)
	data.Set("scope", driveScope)

	a.logger.Debug("requesting device code", "url", a.codeURL)

	status, body, err := a.postForm(ctx, a.codeURL, data)
	if err != nil {
		return DeviceCode{}, err
	}
	if status != http.StatusOK {
		a.logger.Error("device code request error", "status", status, "body", string(body))
		return DeviceCode{}, fmt.Errorf("unexpected status code: %d", status)
	}

	var resp DeviceCodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return DeviceCode{}, fmt.Errorf("failed to parse device code response: %w", err)
	}

	interval := time.Duration(resp.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return DeviceCode{
		UserCode:        resp.UserCode,
		VerificationURL: resp.VerificationURL,
		deviceCode:      resp.DeviceCode,
		interval:        interval,
		expiresAt:       time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

// CheckCode polls once. It returns an empty token while approval is pending.
func (a *AuthClient) CheckCode(ctx context.Context, code DeviceCode) (token string, slowDown bool, err error) {
	data := url.Values{}
	data.Set("client_id", a.clientID)
	data.Set("client_secret", a.clientSecret)
	data.Set("device_code", code.deviceCode)
	data.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")

	_, body, err := a.postForm(ctx, a.tokenURL, data)
	if err != nil {
		return "", false, err
	}

	var resp TokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false, fmt.Errorf("failed to parse token response: %w", err)
	}

	switch resp.Error {
	case "":
		if resp.AccessToken == "" {
			return "", false, fmt.Errorf("token response carried no access token")
		}
		a.logger.Info("sign-in approved")
		return resp.AccessToken, false, nil
	case "authorization_pending":
		return "", false, nil
	case "slow_down":
		return "", true, nil
	case "access_denied":
		return "", false, domain.ErrUserCancelled
	case "expired_token":
		return "", false, ErrCodeExpired
	default:
		return "", false, fmt.Errorf("sign-in failed: %s", resp.Error)
	}
}

// WaitForToken polls until the user approves, denies, or the code expires
func (a *AuthClient) WaitForToken(ctx context.Context, code DeviceCode) (string, error) {
	interval := code.interval
	for time.Now().Before(code.expiresAt) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
			token, slowDown, err := a.CheckCode(ctx, code)
			if err != nil {
				if errors.Is(err, ErrCodeExpired) || errors.Is(err, domain.ErrUserCancelled) {
					return "", err
				}
				a.logger.Warn("token check error, retrying", "error", err)
				continue
			}
			if token != "" {
				return token, nil
			}
			if slowDown {
				interval += 5 * time.Second
			}
		}
	}
	return "", ErrCodeExpired
}

// DeviceFlow is a domain.TokenSource that shows the code through show and waits for approval
type DeviceFlow struct {
	auth *AuthClient
	show func(DeviceCode)
}

func NewDeviceFlow(auth *AuthClient, show func(DeviceCode)) *DeviceFlow {
	return &DeviceFlow{auth: auth, show: show}
}

func (f *DeviceFlow) Token(ctx context.Context) (string, error) {
	if f.auth.clientID == "" {
		return "", fmt.Errorf("remote.client_id is not configured")
	}
	code, err := f.auth.RequestCode(ctx)
	if err != nil {
		return "", err
	}
	if f.show != nil {
		f.show(code)
	}
	return f.auth.WaitForToken(ctx, code)
}

package linky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jgoulah/linkyscraper/internal/config"
	"github.com/jgoulah/linkyscraper/internal/logger"
)

const (
	loadCurveResource = "consumption_load_curve"
	dailyResource     = "daily_consumption"

	httpTimeout        = 30 * time.Second
	tokenRefreshBuffer = 5 * time.Minute
	userAgent          = "linkyscraper/1.0"
)

// IntervalReading is one raw sample as returned by the provider
type IntervalReading struct {
	Value          string `json:"value"`
	Date           string `json:"date"`
	IntervalLength string `json:"interval_length,omitempty"`
	MeasureType    string `json:"measure_type,omitempty"`
}

// ReadingType describes the unit and aggregation of a MeterReading
type ReadingType struct {
	Unit            string `json:"unit"`
	MeasurementKind string `json:"measurement_kind"`
	Aggregate       string `json:"aggregate"`
}

// MeterReading is the payload of a metering data response
type MeterReading struct {
	UsagePointID    string            `json:"usage_point_id"`
	Start           string            `json:"start"`
	End             string            `json:"end"`
	ReadingType     ReadingType       `json:"reading_type"`
	IntervalReading []IntervalReading `json:"interval_reading"`
}

// SessionConfig holds what HTTPSession needs to talk to the provider
type SessionConfig struct {
	BaseURL      string
	Username     string
	Password     string
	UsagePointID string
	AuthToken    string
	Cookies      []config.Cookie
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
}

// HTTPSession is an authenticated client for the metering data API
type HTTPSession struct {
	baseURL      string
	username     string
	password     string
	usagePointID string
	cookies      []config.Cookie
	client       *http.Client
	logger       *logger.Logger
	now          func() time.Time

	token       string
	tokenExpiry time.Time
}

// NewSession creates a session. No request is made until the first call.
func NewSession(cfg SessionConfig, log *logger.Logger) *HTTPSession {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}
	s := &HTTPSession{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		username:     cfg.Username,
		password:     cfg.Password,
		usagePointID: cfg.UsagePointID,
		cookies:      cfg.Cookies,
		client:       client,
		logger:       log.WithComponent("session"),
		now:          time.Now,
	}
	if cfg.AuthToken != "" {
		s.setToken(cfg.AuthToken, 0)
	}
	return s
}

// Token returns the bearer token in use and its expiry (zero if unknown)
func (s *HTTPSession) Token() (string, time.Time) {
	return s.token, s.tokenExpiry
}

// GetLoadCurve fetches half-hourly load curve readings for [from, to)
func (s *HTTPSession) GetLoadCurve(ctx context.Context, from, to string) (*MeterReading, error) {
	return s.getMeterReading(ctx, loadCurveResource, from, to)
}

// GetDailyConsumption fetches daily consumption readings for [from, to)
func (s *HTTPSession) GetDailyConsumption(ctx context.Context, from, to string) (*MeterReading, error) {
	return s.getMeterReading(ctx, dailyResource, from, to)
}

// Login exchanges the configured credentials for a bearer token
func (s *HTTPSession) Login(ctx context.Context) error {
	if !s.canLogin() {
		return &AuthError{Message: "no username/password configured"}
	}

	body, err := json.Marshal(map[string]string{
		"username": s.username,
		"password": s.password,
	})
	if err != nil {
		return fmt.Errorf("encoding login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return &AuthError{Message: "login request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &AuthError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("login returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(respBody, &tokenResp); err != nil {
		return &AuthError{Message: "decoding login response", Err: err}
	}
	if tokenResp.AccessToken == "" {
		return &AuthError{StatusCode: resp.StatusCode, Message: "login response contained no access token"}
	}

	s.setToken(tokenResp.AccessToken, time.Duration(tokenResp.ExpiresIn)*time.Second)
	s.logger.Debugw("logged in", "expires", s.tokenExpiry)
	return nil
}

func (s *HTTPSession) canLogin() bool {
	return s.username != "" && s.password != ""
}

// setToken stores a token, preferring the JWT exp claim over expiresIn
func (s *HTTPSession) setToken(token string, expiresIn time.Duration) {
	s.token = token
	s.tokenExpiry = TokenExpiry(token)
	if s.tokenExpiry.IsZero() && expiresIn > 0 {
		s.tokenExpiry = s.now().Add(expiresIn)
	}
}

func (s *HTTPSession) ensureToken(ctx context.Context) error {
	if s.token != "" {
		if s.tokenExpiry.IsZero() || s.now().Add(tokenRefreshBuffer).Before(s.tokenExpiry) {
			return nil
		}
		if !s.canLogin() {
			// Nothing to refresh with; let the API decide
			s.logger.Warnw("auth token is about to expire and no credentials are configured", "expires", s.tokenExpiry)
			return nil
		}
	}
	if !s.canLogin() {
		return &AuthError{Message: "no auth token or username/password configured"}
	}
	return s.Login(ctx)
}

func (s *HTTPSession) getMeterReading(ctx context.Context, resource, from, to string) (*MeterReading, error) {
	if err := s.ensureToken(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("usage_point_id", s.usagePointID)
	params.Set("start", from)
	params.Set("end", to)
	endpoint := fmt.Sprintf("%s/metering_data/%s?%s", s.baseURL, resource, params.Encode())

	status, body, err := s.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	// Token rejected: log in again and replay once
	if status == http.StatusUnauthorized && s.canLogin() {
		s.logger.Debugw("token rejected, logging in again", "resource", resource)
		if err := s.Login(ctx); err != nil {
			return nil, err
		}
		status, body, err = s.get(ctx, endpoint)
		if err != nil {
			return nil, err
		}
	}

	if status != http.StatusOK {
		return nil, parseAPIError(status, resource, body)
	}

	var envelope struct {
		MeterReading *MeterReading `json:"meter_reading"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", resource, err)
	}
	if envelope.MeterReading == nil {
		return nil, fmt.Errorf("decoding %s response: missing meter_reading", resource)
	}

	return envelope.MeterReading, nil
}

func (s *HTTPSession) get(ctx context.Context, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+s.token)
	for _, c := range s.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	start := s.now()
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response body: %w", err)
	}

	s.logger.Debugw("API request",
		"path", req.URL.Path,
		"status_code", resp.StatusCode,
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)
	return resp.StatusCode, body, nil
}

// parseAPIError reads {"error","error_description"}, also accepting the
// error object nested under "error".
func parseAPIError(status int, resource string, body []byte) error {
	apiErr := &APIError{StatusCode: status, Endpoint: resource}

	type errorBody struct {
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}

	var outer errorBody
	if err := json.Unmarshal(body, &outer); err != nil {
		apiErr.Description = strings.TrimSpace(string(body))
		return apiErr
	}
	apiErr.Description = outer.ErrorDescription

	var code string
	if err := json.Unmarshal(outer.Error, &code); err == nil {
		apiErr.Code = code
		return apiErr
	}

	var inner errorBody
	if err := json.Unmarshal(outer.Error, &inner); err == nil {
		_ = json.Unmarshal(inner.Error, &apiErr.Code)
		if inner.ErrorDescription != "" {
			apiErr.Description = inner.ErrorDescription
		}
	}
	return apiErr
}

// TokenExpiry reads the exp claim of a JWT without verifying it.
// Opaque tokens return the zero time.
func TokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Package apiclient is the REST client for the campus auth API. It
// implements verification.Backend and verification.ProfileBackend.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"campusauth/internal/verification"
)

const defaultTimeout = 20 * time.Second

// APIError is a non-2xx answer from the API. Message is the server's
// human-readable detail.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// Detail makes APIError a verification.Rejection.
func (e *APIError) Detail() string { return e.Message }

// ServerError is a 5xx answer from the API or a proxy in front of it. It
// carries no verdict, so callers treat it like a network failure.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

var ErrNotAuthenticated = errors.New("apiclient: no access token, verify first")

// Tokens are the credentials handed out after a successful verification.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu     sync.Mutex
	tokens Tokens
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpClient = h } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.logger = l } }

// New returns a client for the API rooted at baseURL, e.g.
// "http://localhost:8080/api/v1".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.Named("apiclient")
	return c
}

func (c *Client) Tokens() Tokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

func (c *Client) SetTokens(t Tokens) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = t
}

type errorBody struct {
	ErrorCode string `json:"error_code"`
	Detail    string `json:"detail"`
	Message   string `json:"message"`
}

// do sends in as JSON and decodes a 2xx answer into out. Any other status
// becomes an *APIError; network failures are returned wrapped.
func (c *Client) do(ctx context.Context, method, path string, auth bool, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		tok := c.Tokens().AccessToken
		if tok == "" {
			return ErrNotAuthenticated
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	c.logger.Debug("request done",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	e := &APIError{Status: status}
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		e.Code = eb.ErrorCode
		e.Message = eb.Detail
		if e.Message == "" {
			e.Message = eb.Message
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	if status >= http.StatusInternalServerError {
		return &ServerError{Status: status, Message: e.Message}
	}
	return e
}

type codeRequest struct {
	Email   string `json:"email"`
	DevMode bool   `json:"dev_mode,omitempty"`
}

type codeResponse struct {
	Message   string `json:"message"`
	Email     string `json:"email"`
	AttemptID string `json:"attempt_id"`
	DevCode   string `json:"dev_code,omitempty"`
}

func (r codeResponse) issued() verification.CodeIssued {
	return verification.CodeIssued{Message: r.Message, AttemptID: r.AttemptID, DevCode: r.DevCode}
}

type verifyResponse struct {
	Tokens
	RequiresNameVerification bool `json:"requires_name_verification"`
}

func (c *Client) issue(ctx context.Context, path, email string, dev bool) (verification.CodeIssued, error) {
	var out codeResponse
	if err := c.do(ctx, http.MethodPost, path, false, codeRequest{Email: email, DevMode: dev}, &out); err != nil {
		return verification.CodeIssued{}, err
	}
	return out.issued(), nil
}

func (c *Client) RequestSignupCode(ctx context.Context, email string, dev bool) (verification.CodeIssued, error) {
	return c.issue(ctx, "/auth/signup", email, dev)
}

func (c *Client) RequestLoginCode(ctx context.Context, email string, dev bool) (verification.CodeIssued, error) {
	return c.issue(ctx, "/auth/login", email, dev)
}

func (c *Client) ResendCode(ctx context.Context, email string, dev bool) (verification.CodeIssued, error) {
	return c.issue(ctx, "/auth/resend-otp", email, dev)
}

func (c *Client) verified(ctx context.Context, path string, in any) (verification.Verified, error) {
	var out verifyResponse
	if err := c.do(ctx, http.MethodPost, path, false, in, &out); err != nil {
		return verification.Verified{}, err
	}
	c.SetTokens(out.Tokens)
	return verification.Verified{RequiresNameVerification: out.RequiresNameVerification}, nil
}

func (c *Client) VerifyCode(ctx context.Context, email, code string, dev bool) (verification.Verified, error) {
	return c.verified(ctx, "/auth/verify-otp", struct {
		Email   string `json:"email"`
		Code    string `json:"code"`
		DevMode bool   `json:"dev_mode,omitempty"`
	}{email, code, dev})
}

func (c *Client) VerifyToken(ctx context.Context, token string) (verification.Verified, error) {
	return c.verified(ctx, "/auth/verify-email", struct {
		Token string `json:"token"`
	}{token})
}

// Refresh rotates the stored refresh token.
func (c *Client) Refresh(ctx context.Context) error {
	rt := c.Tokens().RefreshToken
	if rt == "" {
		return ErrNotAuthenticated
	}
	var out Tokens
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", false, struct {
		RefreshToken string `json:"refresh_token"`
	}{rt}, &out); err != nil {
		return err
	}
	c.SetTokens(out)
	return nil
}

// Profile is the signed-in user as returned by GET /auth/me.
type Profile struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	Name          string   `json:"name"`
	NameVerified  bool     `json:"name_verified"`
	EmailVerified bool     `json:"email_verified"`
	Program       string   `json:"program,omitempty"`
	Bio           string   `json:"bio,omitempty"`
	AvatarURL     string   `json:"avatar_url,omitempty"`
	CampusDays    []string `json:"campus_days,omitempty"`
	Interests     []string `json:"interests,omitempty"`
}

func (c *Client) Me(ctx context.Context) (Profile, error) {
	var p Profile
	err := c.do(ctx, http.MethodGet, "/auth/me", true, nil, &p)
	return p, err
}

func (c *Client) VerifyName(ctx context.Context, name string) (verification.NameCheck, error) {
	var out struct {
		Success          bool   `json:"success"`
		AutoVerified     bool   `json:"auto_verified"`
		RequiresIDUpload bool   `json:"requires_id_upload"`
		Message          string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/verify-name", true, struct {
		Name string `json:"name"`
	}{name}, &out); err != nil {
		return verification.NameCheck{}, err
	}
	return verification.NameCheck{
		AutoVerified:   out.AutoVerified,
		RequiresUpload: out.RequiresIDUpload,
		Message:        out.Message,
	}, nil
}

func (c *Client) GetUploadDestination(ctx context.Context, fileName, mimeType string) (verification.UploadDestination, error) {
	var out struct {
		UploadURL string `json:"upload_url"`
		FileKey   string `json:"file_key"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/upload-id", true, struct {
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
	}{fileName, mimeType}, &out); err != nil {
		return verification.UploadDestination{}, err
	}
	return verification.UploadDestination{UploadURL: out.UploadURL, FileRef: out.FileKey}, nil
}

// Upload PUTs data to the pre-signed destination. The content type must
// match the one the destination was signed for.
func (c *Client) Upload(ctx context.Context, dest verification.UploadDestination, mimeType string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, dest.UploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	req.ContentLength = int64(len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		c.logger.Warn("storage unavailable", zap.Int("status", resp.StatusCode))
		return &ServerError{Status: resp.StatusCode, Message: "Storage is unavailable"}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("upload rejected by storage", zap.Int("status", resp.StatusCode))
		return &APIError{Status: resp.StatusCode, Code: "UPLOAD_FAILED", Message: "Failed to upload file"}
	}
	return nil
}

func (c *Client) VerifyID(ctx context.Context, fileRef, name string) (verification.IDVerdict, error) {
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/verify-id", true, struct {
		FileKey string `json:"file_key"`
		Name    string `json:"name"`
	}{fileRef, name}, &out); err != nil {
		return verification.IDVerdict{}, err
	}
	return verification.IDVerdict{Verified: out.Success, Message: out.Message}, nil
}

var (
	_ verification.Backend        = (*Client)(nil)
	_ verification.ProfileBackend = (*Client)(nil)
	_ verification.Rejection      = (*APIError)(nil)
)

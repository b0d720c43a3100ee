package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"campusauth/internal/platform/events"
	phttp "campusauth/internal/platform/http"
	"campusauth/internal/platform/security"
	"campusauth/internal/platform/storage"
	"campusauth/internal/policy"
)

type sentMail struct{ to, code, token string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) SendVerification(_ context.Context, to, code, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, code, token})
	return nil
}

func (f *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no mail sent")
	return f.sent[len(f.sent)-1]
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func (s *fakeStore) PresignUpload(_ context.Context, userID, fileName, _ string) (string, string, time.Duration, error) {
	key := storage.IDKey(userID, fileName)
	return "https://bucket.example/" + key + "?sig=x", key, 300 * time.Second, nil
}

func (s *fakeStore) Download(_ context.Context, key string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, "", errors.New("no such key")
	}
	return data, "image/png", nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeStore) put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
}

type fakeReader struct {
	name string
	err  error
}

func (r fakeReader) ReadName(context.Context, []byte, string) (string, error) { return r.name, r.err }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type env struct {
	app    *fiber.App
	repos  Repos
	jwt    *security.JWTManager
	mailer *fakeMailer
	store  *fakeStore
	reader *fakeReader
	events *recordingPublisher
}

func newEnv(t *testing.T, tweak ...func(*Options)) *env {
	t.Helper()
	return newEnvCooldown(t, time.Minute, tweak...)
}

func newEnvCooldown(t *testing.T, cooldown time.Duration, tweak ...func(*Options)) *env {
	t.Helper()
	e := &env{
		repos:  MemoryRepos(cooldown),
		jwt:    security.NewJWTManager("test-secret", 15*time.Minute, 24*time.Hour),
		mailer: &fakeMailer{},
		store:  &fakeStore{objects: map[string][]byte{}},
		reader: &fakeReader{},
		events: &recordingPublisher{},
	}
	opts := Options{
		JWT:          e.jwt,
		Domains:      policy.NewAllowList(),
		AllowDevMode: true,
		Mailer:       e.mailer,
		Storage:      e.store,
		Vision:       e.reader,
		Events:       e.events,
	}
	for _, fn := range tweak {
		fn(&opts)
	}
	e.app = phttp.NewServer(phttp.Options{AppName: "test"}, NewModule(e.repos, opts))
	return e
}

type result struct {
	status int
	header map[string]string
	body   map[string]any
}

func (r result) str(key string) string {
	s, _ := r.body[key].(string)
	return s
}

func (e *env) do(t *testing.T, method, path string, body any, token string) result {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, "/api/v1/auth"+path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := result{status: resp.StatusCode, header: map[string]string{}}
	for k := range resp.Header {
		out.header[k] = resp.Header.Get(k)
	}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out.body), string(raw))
	}
	return out
}

func (e *env) post(t *testing.T, path string, body any) result {
	t.Helper()
	return e.do(t, fiber.MethodPost, path, body, "")
}

// signIn runs the dev-mode login and code verification for email and
// returns the access and refresh tokens.
func (e *env) signIn(t *testing.T, email string) (access, refresh string) {
	t.Helper()
	res := e.post(t, "/login", map[string]any{"email": email, "dev_mode": true})
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	res = e.post(t, "/verify-otp", map[string]any{"email": email, "code": res.str("dev_code")})
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	return res.str("access_token"), res.str("refresh_token")
}

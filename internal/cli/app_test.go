package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusauth/internal/apiclient"
	"campusauth/internal/verification"
)

// syncBuffer is written by timer goroutines as well as the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	issue       func(email string) (verification.CodeIssued, error)
	verifyCode  func(code string) (verification.Verified, error)
	verifyToken func(n int) (verification.Verified, error)
	verifyName  func(name string) (verification.NameCheck, error)
	verifyID    func(ref, name string) (verification.IDVerdict, error)
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.calls[name]
}

func (f *fakeBackend) calledTimes(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) RequestSignupCode(_ context.Context, email string, _ bool) (verification.CodeIssued, error) {
	f.count("signup")
	return f.issue(email)
}

func (f *fakeBackend) RequestLoginCode(_ context.Context, email string, _ bool) (verification.CodeIssued, error) {
	f.count("login")
	return f.issue(email)
}

func (f *fakeBackend) ResendCode(_ context.Context, email string, _ bool) (verification.CodeIssued, error) {
	f.count("resend")
	return f.issue(email)
}

func (f *fakeBackend) VerifyCode(_ context.Context, _, code string, _ bool) (verification.Verified, error) {
	f.count("code")
	return f.verifyCode(code)
}

func (f *fakeBackend) VerifyToken(context.Context, string) (verification.Verified, error) {
	return f.verifyToken(f.count("token"))
}

func (f *fakeBackend) VerifyName(_ context.Context, name string) (verification.NameCheck, error) {
	f.count("name")
	return f.verifyName(name)
}

func (f *fakeBackend) GetUploadDestination(_ context.Context, fileName, _ string) (verification.UploadDestination, error) {
	n := f.count("destination")
	return verification.UploadDestination{UploadURL: "https://bucket.example/" + fileName, FileRef: "student-ids/u1/" + string(rune('0'+n))}, nil
}

func (f *fakeBackend) Upload(context.Context, verification.UploadDestination, string, []byte) error {
	f.count("upload")
	return nil
}

func (f *fakeBackend) VerifyID(_ context.Context, ref, name string) (verification.IDVerdict, error) {
	f.count("id")
	return f.verifyID(ref, name)
}

func devBackend(verified verification.Verified) *fakeBackend {
	return &fakeBackend{
		calls: map[string]int{},
		issue: func(email string) (verification.CodeIssued, error) {
			return verification.CodeIssued{Message: "[DEV MODE] Your verification code is: 123456", DevCode: "123456"}, nil
		},
		verifyCode: func(code string) (verification.Verified, error) {
			if code != "123456" {
				return verification.Verified{}, &apiclient.APIError{Status: 400, Code: "INVALID_CODE", Message: "Invalid verification code"}
			}
			return verified, nil
		},
	}
}

func run(t *testing.T, be *fakeBackend, input string, fn func(*App) error, opts ...verification.Option) (string, error) {
	t.Helper()
	out := &syncBuffer{}
	app := NewApp(be, strings.NewReader(input), out, nil, append([]verification.Option{verification.WithDevMode(true)}, opts...)...)
	err := fn(app)
	return out.String(), err
}

func TestRunCodeAutoSubmits(t *testing.T) {
	be := devBackend(verification.Verified{})
	out, err := run(t, be, "12 34\n56\n", func(a *App) error {
		return a.RunCode(context.Background(), verification.FlowLogin, "a@my.yorku.ca")
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Dev code: 123456")
	assert.Contains(t, out, "code [1234__]")
	assert.Contains(t, out, "You're signed in.")
	assert.Equal(t, 1, be.calledTimes("code"))
	assert.Equal(t, 1, be.calledTimes("login"))
}

func TestRunCodeAsksAgainForOffCampusEmail(t *testing.T) {
	be := devBackend(verification.Verified{})
	out, err := run(t, be, "bob@gmail.com\na@yorku.ca\n123456\n", func(a *App) error {
		return a.RunCode(context.Background(), verification.FlowSignup, "")
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Must use a campus email")
	assert.Equal(t, 1, be.calledTimes("signup"))
}

func TestRunCodeWrongCodeCanBeRetyped(t *testing.T) {
	be := devBackend(verification.Verified{})
	out, err := run(t, be, "000000\n12<<123456\n", func(a *App) error {
		return a.RunCode(context.Background(), verification.FlowLogin, "a@yorku.ca")
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Invalid verification code")
	assert.Equal(t, 2, be.calledTimes("code"))
}

func TestRunCodeResendWaitsForCooldown(t *testing.T) {
	be := devBackend(verification.Verified{})
	out, err := run(t, be, "r\nx\nq\n", func(a *App) error {
		return a.RunCode(context.Background(), verification.FlowLogin, "a@yorku.ca")
	})
	assert.ErrorIs(t, err, ErrAbandoned)
	assert.Contains(t, out, "before requesting a new code")
	assert.Contains(t, out, "Only digits are allowed")
	assert.Contains(t, out, "Campus email (blank to quit)", "q goes back to email entry")
	assert.Zero(t, be.calledTimes("resend"))
	assert.Zero(t, be.calledTimes("code"))
}

func TestRunCodeHandsOffToProfileSetup(t *testing.T) {
	be := devBackend(verification.Verified{RequiresNameVerification: true})
	be.verifyName = func(name string) (verification.NameCheck, error) {
		return verification.NameCheck{RequiresUpload: true, Message: "First name not found in email. ID verification required."}, nil
	}
	be.verifyID = func(ref, name string) (verification.IDVerdict, error) {
		if ref == "student-ids/u1/1" {
			return verification.IDVerdict{Message: "Name on ID (Jane Smith) doesn't match the name you entered"}, nil
		}
		return verification.IDVerdict{Verified: true, Message: "Name verified successfully"}, nil
	}

	dir := t.TempDir()
	png := filepath.Join(dir, "card.png")
	require.NoError(t, os.WriteFile(png, append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...), 0o600))
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("just some text"), 0o600))

	input := strings.Join([]string{"123456", "", "Priya Patel", notes, png, png}, "\n") + "\n"
	out, err := run(t, be, input, func(a *App) error {
		return a.RunCode(context.Background(), verification.FlowLogin, "jdoe99@my.yorku.ca")
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Let's confirm your name.")
	assert.Contains(t, out, "Name is required")
	assert.Contains(t, out, "Please upload an image file")
	assert.Contains(t, out, "doesn't match the name you entered Try another photo.")
	assert.Contains(t, out, "Name verified.")
	assert.Equal(t, 2, be.calledTimes("upload"), "the text file never left the machine")
	assert.Equal(t, 1, be.calledTimes("name"))
}

func TestRunLinkRetryAfterTimeout(t *testing.T) {
	be := devBackend(verification.Verified{})
	release := make(chan struct{})
	be.verifyToken = func(n int) (verification.Verified, error) {
		if n == 1 {
			<-release
		}
		return verification.Verified{}, nil
	}
	defer close(release)

	out, err := run(t, be, "r\n", func(a *App) error {
		return a.RunLink(context.Background(), "tok")
	}, verification.WithTokenTimeout(20*time.Millisecond))
	require.NoError(t, err)
	assert.Contains(t, out, "Verification is taking longer than expected.")
	assert.Contains(t, out, "You're signed in.")
	assert.Equal(t, 2, be.calledTimes("token"))
}

func TestRunLinkQuitAfterFailure(t *testing.T) {
	be := devBackend(verification.Verified{})
	be.verifyToken = func(int) (verification.Verified, error) {
		return verification.Verified{}, &apiclient.APIError{Status: 400, Code: "TOKEN_USED", Message: "This verification link has already been used"}
	}

	out, err := run(t, be, "q\n", func(a *App) error {
		return a.RunLink(context.Background(), "tok")
	})
	assert.ErrorIs(t, err, ErrAbandoned)
	assert.Contains(t, out, "This verification link has already been used")
	assert.Equal(t, 1, be.calledTimes("token"))
}

func TestRunLinkGatewayErrorCountsAsTimeout(t *testing.T) {
	be := devBackend(verification.Verified{})
	be.verifyToken = func(n int) (verification.Verified, error) {
		if n == 1 {
			return verification.Verified{}, &apiclient.ServerError{Status: 502, Message: "Bad Gateway"}
		}
		return verification.Verified{}, nil
	}

	out, err := run(t, be, "r\n", func(a *App) error {
		return a.RunLink(context.Background(), "tok")
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Taking longer than expected.")
	assert.Contains(t, out, "You're signed in.")
	assert.Equal(t, 2, be.calledTimes("token"))
}

func TestLoadIDFile(t *testing.T) {
	dir := t.TempDir()

	png := filepath.Join(dir, "card")
	require.NoError(t, os.WriteFile(png, append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...), 0o600))
	f, err := LoadIDFile(png)
	require.NoError(t, err)
	assert.Equal(t, "image/png", f.MimeType)
	assert.Equal(t, "card", f.Name)

	txt := filepath.Join(dir, "card.png")
	require.NoError(t, os.WriteFile(txt, []byte("not an image"), 0o600))
	_, err = LoadIDFile(txt)
	assert.True(t, verification.IsKind(err, verification.KindValidation), "type comes from the content")

	big := filepath.Join(dir, "big.png")
	fh, err := os.Create(big)
	require.NoError(t, err)
	_, err = fh.Write([]byte("\x89PNG\r\n\x1a\n"))
	require.NoError(t, err)
	require.NoError(t, fh.Truncate(11<<20))
	require.NoError(t, fh.Close())
	_, err = LoadIDFile(big)
	assert.True(t, verification.IsKind(err, verification.KindValidation))

	_, err = LoadIDFile(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestRootCommandLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, true, body["dev_mode"])
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok", "attempt_id": "a1", "dev_code": "654321"})
	})
	mux.HandleFunc("/api/v1/auth/verify-otp", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "acc", "refresh_token": "ref", "token_type": "bearer", "expires_in": 900,
			"requires_name_verification": false,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := &syncBuffer{}
	cmd := NewRootCommand(strings.NewReader("654321\n"), out)
	cmd.SetArgs([]string{"login", "--email", "a@yorku.ca", "--dev", "--api", srv.URL + "/api/v1"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "Dev code: 654321")
	assert.Contains(t, out.String(), "You're signed in.")
}

func TestRootCommandQuitIsClean(t *testing.T) {
	cmd := NewRootCommand(strings.NewReader(""), &syncBuffer{})
	cmd.SetArgs([]string{"signup", "--api", "http://127.0.0.1:1"})
	assert.NoError(t, cmd.ExecuteContext(context.Background()))
}

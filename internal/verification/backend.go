package verification

import "context"

// Flow selects which issuance call starts a session.
type Flow int

const (
	FlowLogin Flow = iota
	FlowSignup
)

// CodeIssued is the backend's answer to a code (re)issuance.
type CodeIssued struct {
	Message   string
	AttemptID string
	// DevCode is only populated by a backend running with dev mode on.
	DevCode string
}

// Verified is the account state returned by a successful code or token check.
type Verified struct {
	RequiresNameVerification bool
}

// Backend is the auth service as seen by a Session.
type Backend interface {
	RequestSignupCode(ctx context.Context, identifier string, devMode bool) (CodeIssued, error)
	RequestLoginCode(ctx context.Context, identifier string, devMode bool) (CodeIssued, error)
	VerifyCode(ctx context.Context, identifier, code string, devMode bool) (Verified, error)
	ResendCode(ctx context.Context, identifier string, devMode bool) (CodeIssued, error)
	VerifyToken(ctx context.Context, token string) (Verified, error)
}

type NameCheck struct {
	AutoVerified   bool
	RequiresUpload bool
	Message        string
}

// UploadDestination is a write-once, pre-authorized location for an ID image.
type UploadDestination struct {
	UploadURL string
	FileRef   string
}

type IDVerdict struct {
	Verified bool
	Message  string
}

// ProfileBackend is the name and identity verification service as seen by a
// ProfileSetup.
type ProfileBackend interface {
	VerifyName(ctx context.Context, claimedName string) (NameCheck, error)
	GetUploadDestination(ctx context.Context, fileName, mimeType string) (UploadDestination, error)
	Upload(ctx context.Context, dest UploadDestination, mimeType string, data []byte) error
	VerifyID(ctx context.Context, fileRef, claimedName string) (IDVerdict, error)
}

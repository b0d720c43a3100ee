package verification

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// MaxImageBytes is the largest ID image accepted for upload.
const MaxImageBytes = 10 << 20

type Method int

const (
	MethodUndecided Method = iota
	MethodAutoMatchedToEmail
	MethodRequiresIDUpload
)

func (m Method) String() string {
	switch m {
	case MethodAutoMatchedToEmail:
		return "auto_matched_to_email"
	case MethodRequiresIDUpload:
		return "requires_id_upload"
	default:
		return "undecided"
	}
}

type VerdictStatus int

const (
	VerdictUnverified VerdictStatus = iota
	VerdictVerified
	VerdictRejected
)

func (v VerdictStatus) String() string {
	switch v {
	case VerdictVerified:
		return "verified"
	case VerdictRejected:
		return "rejected"
	default:
		return "unverified"
	}
}

// Verdict is the outcome of name verification. Reason is set for VerdictRejected.
type Verdict struct {
	Status VerdictStatus
	Reason string
}

// File is an ID image picked by the user.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// ProfileState is a copy of a ProfileSetup's observable state.
type ProfileState struct {
	ClaimedName      string
	Method           Method
	UploadedImageRef string
	Verdict          Verdict
	Message          string
	Err              *Error
}

// ValidateImage checks an ID file before anything is sent over the network.
func ValidateImage(mimeType string, size int) error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/") {
		return validationError("file", "Please upload an image file")
	}
	if size <= 0 {
		return validationError("file", "File is empty")
	}
	if size > MaxImageBytes {
		return validationError("file", fmt.Sprintf("File too large (max %d MB)", MaxImageBytes>>20))
	}
	return nil
}

// ProfileSetup collects and verifies the user's real name after a session
// verified with RequiresNameVerification.
type ProfileSetup struct {
	mu      sync.Mutex
	backend ProfileBackend
	log     *zap.Logger
	state   ProfileState
	busy    bool
}

func NewProfileSetup(backend ProfileBackend, log *zap.Logger) *ProfileSetup {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileSetup{backend: backend, log: log.With(zap.String("component", "profile"))}
}

func (p *ProfileSetup) State() ProfileState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *ProfileSetup) begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy {
		return ErrBusy
	}
	if p.state.Verdict.Status == VerdictVerified {
		return ErrWrongPhase
	}
	p.busy = true
	p.state.Err = nil
	return nil
}

func (p *ProfileSetup) failLocked(e *Error) error {
	p.busy = false
	p.state.Err = e
	return e
}

// SubmitName sends the claimed name for matching against the account email.
// A match verifies the profile; otherwise an ID upload is required.
func (p *ProfileSetup) SubmitName(ctx context.Context, name string) error {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.state.Err = validationError("name", "Name is required")
		return p.state.Err
	}
	if err := p.begin(); err != nil {
		return err
	}

	res, err := p.backend.VerifyName(ctx, name)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		return p.failLocked(classify(err))
	}
	p.busy = false
	p.state.ClaimedName = name
	p.state.Message = res.Message
	switch {
	case res.AutoVerified:
		p.state.Method = MethodAutoMatchedToEmail
		p.state.Verdict = Verdict{Status: VerdictVerified}
	default:
		p.state.Method = MethodRequiresIDUpload
		p.state.Verdict = Verdict{Status: VerdictUnverified}
	}
	p.log.Debug("name checked", zap.Stringer("method", p.state.Method))
	return nil
}

// UploadID validates f locally, uploads it to a fresh pre-authorized
// destination and asks for a verdict. After a rejection the name is kept and
// UploadID may be called again.
func (p *ProfileSetup) UploadID(ctx context.Context, f File) error {
	p.mu.Lock()
	if p.state.Method != MethodRequiresIDUpload {
		p.mu.Unlock()
		return ErrWrongPhase
	}
	if err := ValidateImage(f.MimeType, len(f.Data)); err != nil {
		p.state.Err = err.(*Error)
		p.mu.Unlock()
		return err
	}
	name := p.state.ClaimedName
	p.mu.Unlock()

	if err := p.begin(); err != nil {
		return err
	}

	dest, err := p.backend.GetUploadDestination(ctx, f.Name, f.MimeType)
	if err == nil {
		err = p.backend.Upload(ctx, dest, f.MimeType, f.Data)
	}
	if err != nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.failLocked(classify(err))
	}

	p.mu.Lock()
	p.state.UploadedImageRef = dest.FileRef
	p.mu.Unlock()

	verdict, err := p.backend.VerifyID(ctx, dest.FileRef, name)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		return p.failLocked(classify(err))
	}
	p.busy = false
	p.state.Message = verdict.Message
	if verdict.Verified {
		p.state.Verdict = Verdict{Status: VerdictVerified}
	} else {
		p.state.Verdict = Verdict{Status: VerdictRejected, Reason: verdict.Message}
	}
	p.log.Debug("id checked", zap.Stringer("verdict", p.state.Verdict.Status))
	return nil
}

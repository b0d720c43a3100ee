// Package verification drives a user from an email address to an
// authenticated account: code issuance, resend cooldown, auto-submitted code
// entry and the magic-link path with its verification deadline.
package verification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"campusauth/internal/policy"
)

const (
	CodeLength          = 6
	DefaultCooldown     = 60
	DefaultTokenTimeout = 15 * time.Second
)

type Phase int

const (
	PhaseAwaitingIdentifier Phase = iota
	PhaseAwaitingCode
	PhaseVerifying
	PhaseTimedOut
	PhaseVerified
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingIdentifier:
		return "awaiting_identifier"
	case PhaseAwaitingCode:
		return "awaiting_code"
	case PhaseVerifying:
		return "verifying"
	case PhaseTimedOut:
		return "timed_out"
	case PhaseVerified:
		return "verified"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Handoff names where control goes once a session is verified.
type Handoff int

const (
	HandoffNone Handoff = iota
	HandoffProfileSetup
	HandoffAuthenticated
)

// Snapshot is a consistent copy of a Session's observable state.
type Snapshot struct {
	Identifier               string
	Phase                    Phase
	AttemptToken             string
	CooldownRemaining        int
	Code                     string
	Cursor                   int
	DevCode                  string
	RequiresNameVerification bool
	ViaToken                 bool
	Err                      *Error
}

func (s Snapshot) Handoff() Handoff {
	if s.Phase != PhaseVerified {
		return HandoffNone
	}
	if s.RequiresNameVerification {
		return HandoffProfileSetup
	}
	return HandoffAuthenticated
}

type Option func(*Session)

func WithClock(c Clock) Option { return func(s *Session) { s.clock = c } }

// WithDevMode asks the backend to return codes in its responses instead of
// mailing them, and makes the session surface them.
func WithDevMode(on bool) Option { return func(s *Session) { s.devMode = on } }

func WithFlow(f Flow) Option { return func(s *Session) { s.flow = f } }

func WithAllowList(a policy.AllowList) Option { return func(s *Session) { s.allow = a } }

func WithCooldown(seconds int) Option {
	return func(s *Session) {
		if seconds > 0 {
			s.cooldownSeconds = seconds
		}
	}
}

func WithTokenTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.tokenTimeout = d
		}
	}
}

// WithObserver registers fn to receive a Snapshot after every state change.
// fn may be called from timer and network goroutines and must not call back
// into the Session synchronously.
func WithObserver(fn func(Snapshot)) Option { return func(s *Session) { s.observer = fn } }

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// Session is one run of the email verification flow. It is safe for
// concurrent use; backend calls are made without holding its lock.
type Session struct {
	mu       sync.Mutex
	backend  Backend
	clock    Clock
	log      *zap.Logger
	observer func(Snapshot)
	allow    policy.AllowList

	flow            Flow
	devMode         bool
	cooldownSeconds int
	tokenTimeout    time.Duration

	identifier   string
	phase        Phase
	attemptToken string
	input        *CodeInput
	devCode      string
	requiresName bool
	lastErr      *Error

	cooldown      int
	cooldownTimer Timer
	cooldownGen   uint64

	token    string
	viaToken bool
	deadline Timer

	// attempt identifies the verification call in flight; epoch changes
	// whenever the session is abandoned.
	attempt uint64
	epoch   uint64
	busy    bool
	closed  bool

	inflight sync.WaitGroup
}

func New(backend Backend, opts ...Option) *Session {
	s := &Session{
		backend:         backend,
		clock:           RealClock(),
		log:             zap.NewNop(),
		allow:           policy.NewAllowList(),
		cooldownSeconds: DefaultCooldown,
		tokenTimeout:    DefaultTokenTimeout,
		input:           NewCodeInput(CodeLength),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(zap.String("component", "verification"))
	return s
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Identifier:               s.identifier,
		Phase:                    s.phase,
		AttemptToken:             s.attemptToken,
		CooldownRemaining:        s.cooldown,
		Code:                     s.input.Value(),
		Cursor:                   s.input.Cursor(),
		DevCode:                  s.devCode,
		RequiresNameVerification: s.requiresName,
		ViaToken:                 s.viaToken,
		Err:                      s.lastErr,
	}
}

// unlockAndNotify releases the lock and hands the new state to the observer.
func (s *Session) unlockAndNotify() {
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if s.observer != nil {
		s.observer(snap)
	}
}

func (s *Session) fail(e *Error) error {
	s.lastErr = e
	s.unlockAndNotify()
	return e
}

// SubmitIdentifier validates the email against the allow-list and asks the
// backend to issue a code. On success the session waits for the code with
// the resend cooldown armed.
func (s *Session) SubmitIdentifier(ctx context.Context, identifier string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.phase != PhaseAwaitingIdentifier {
		s.mu.Unlock()
		return ErrWrongPhase
	}
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	id := policy.Normalize(identifier)
	if !s.allow.Allows(id) {
		return s.fail(validationError("email", s.allow.Hint()))
	}
	s.busy = true
	s.lastErr = nil
	flow, dev, epoch := s.flow, s.devMode, s.epoch
	s.unlockAndNotify()

	var (
		res CodeIssued
		err error
	)
	if flow == FlowSignup {
		res, err = s.backend.RequestSignupCode(ctx, id, dev)
	} else {
		res, err = s.backend.RequestLoginCode(ctx, id, dev)
	}

	s.mu.Lock()
	s.busy = false
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if epoch != s.epoch {
		s.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		s.log.Debug("code request failed", zap.String("email", id), zap.Error(err))
		return s.fail(classify(err))
	}
	s.identifier = id
	s.phase = PhaseAwaitingCode
	s.issuedLocked(res)
	s.log.Debug("code issued", zap.String("email", id), zap.String("attempt", s.attemptToken))
	s.unlockAndNotify()
	return nil
}

func (s *Session) issuedLocked(res CodeIssued) {
	s.attemptToken = res.AttemptID
	if s.attemptToken == "" {
		s.attemptToken = uuid.NewString()
	}
	s.devCode = ""
	if s.devMode {
		s.devCode = extractDevCode(res)
	}
	s.input.Clear()
	s.armCooldownLocked()
}

// TypeDigit enters d at the cursor. Completing the code submits it.
func (s *Session) TypeDigit(ctx context.Context, d rune) error {
	return s.edit(ctx, func(in *CodeInput) error {
		if !in.Type(d) {
			return validationError("code", "Only digits are allowed")
		}
		return nil
	})
}

// PasteCode types every digit of code starting at the cursor.
func (s *Session) PasteCode(ctx context.Context, code string) error {
	return s.edit(ctx, func(in *CodeInput) error {
		if in.Paste(code) == 0 {
			return validationError("code", "Only digits are allowed")
		}
		return nil
	})
}

func (s *Session) Backspace() error {
	return s.edit(context.Background(), func(in *CodeInput) error { in.Backspace(); return nil })
}

func (s *Session) MoveLeft() error {
	return s.edit(context.Background(), func(in *CodeInput) error { in.Left(); return nil })
}

func (s *Session) MoveRight() error {
	return s.edit(context.Background(), func(in *CodeInput) error { in.Right(); return nil })
}

func (s *Session) edit(ctx context.Context, fn func(*CodeInput) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.phase != PhaseAwaitingCode {
		s.mu.Unlock()
		return ErrWrongPhase
	}
	if err := fn(s.input); err != nil {
		s.mu.Unlock()
		return err
	}
	fire := s.input.TakeCompletion()
	s.unlockAndNotify()
	if fire {
		return s.SubmitCode(ctx)
	}
	return nil
}

// SubmitCode verifies the entered code. Codes of the wrong length are
// rejected without contacting the backend. A rejected code is cleared and
// the session goes back to waiting for a code.
func (s *Session) SubmitCode(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.phase != PhaseAwaitingCode {
		s.mu.Unlock()
		return ErrWrongPhase
	}
	code := s.input.Value()
	if len(code) != CodeLength || !s.input.Complete() {
		return s.fail(validationError("code", fmt.Sprintf("Enter all %d digits", CodeLength)))
	}
	s.phase = PhaseVerifying
	s.lastErr = nil
	s.attempt++
	seq := s.attempt
	id, dev := s.identifier, s.devMode
	s.unlockAndNotify()

	res, err := s.backend.VerifyCode(ctx, id, code, dev)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if seq != s.attempt || s.phase != PhaseVerifying {
		s.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		s.log.Debug("code rejected", zap.String("email", id), zap.Error(err))
		s.input.Clear()
		s.phase = PhaseAwaitingCode
		return s.fail(classify(err))
	}
	s.verifiedLocked(res)
	s.unlockAndNotify()
	return nil
}

// Resend asks for a fresh code. It does nothing while the cooldown runs.
func (s *Session) Resend(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.phase != PhaseAwaitingCode {
		s.mu.Unlock()
		return ErrWrongPhase
	}
	if s.cooldown > 0 {
		s.mu.Unlock()
		return ErrCooldownActive
	}
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.busy = true
	s.lastErr = nil
	id, dev, epoch := s.identifier, s.devMode, s.epoch
	s.unlockAndNotify()

	res, err := s.backend.ResendCode(ctx, id, dev)

	s.mu.Lock()
	s.busy = false
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if epoch != s.epoch {
		s.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		if s.phase == PhaseAwaitingCode {
			s.input.Clear()
		}
		return s.fail(classify(err))
	}
	if s.phase != PhaseAwaitingCode {
		// verified while the resend was in flight
		s.mu.Unlock()
		return ErrStale
	}
	s.issuedLocked(res)
	s.unlockAndNotify()
	return nil
}

// VerifyLink starts the magic-link path: the token is verified in the
// background under a deadline. The outcome arrives through the observer.
func (s *Session) VerifyLink(token string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.phase != PhaseAwaitingIdentifier {
		s.mu.Unlock()
		return ErrWrongPhase
	}
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return s.fail(validationError("token", "Verification link is missing its token"))
	}
	s.token = token
	s.viaToken = true
	s.startTokenAttemptLocked()
	s.unlockAndNotify()
	return nil
}

// Retry re-issues the token verification after a failure or timeout.
func (s *Session) Retry() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.viaToken || (s.phase != PhaseFailed && s.phase != PhaseTimedOut) {
		s.mu.Unlock()
		return ErrWrongPhase
	}
	s.startTokenAttemptLocked()
	s.unlockAndNotify()
	return nil
}

func (s *Session) startTokenAttemptLocked() {
	s.attempt++
	seq := s.attempt
	s.phase = PhaseVerifying
	s.lastErr = nil
	s.stopDeadlineLocked()
	s.deadline = s.clock.AfterFunc(s.tokenTimeout, func() { s.onDeadline(seq) })

	token := s.token
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		res, err := s.backend.VerifyToken(context.Background(), token)
		s.onTokenResult(seq, res, err)
	}()
}

func (s *Session) onTokenResult(seq uint64, res Verified, err error) {
	s.mu.Lock()
	if s.closed || seq != s.attempt || s.phase != PhaseVerifying {
		s.log.Debug("discarding late token verification result", zap.Uint64("attempt", seq), zap.Error(err))
		s.mu.Unlock()
		return
	}
	s.stopDeadlineLocked()
	if err != nil {
		e := classify(err)
		if e.Kind == KindTransport {
			s.phase = PhaseTimedOut
		} else {
			s.phase = PhaseFailed
		}
		s.lastErr = e
		s.unlockAndNotify()
		return
	}
	s.verifiedLocked(res)
	s.unlockAndNotify()
}

func (s *Session) onDeadline(seq uint64) {
	s.mu.Lock()
	if s.closed || seq != s.attempt || s.phase != PhaseVerifying {
		s.mu.Unlock()
		return
	}
	s.deadline = nil
	s.phase = PhaseTimedOut
	s.lastErr = &Error{Kind: KindTransport, Message: "Verification is taking longer than expected."}
	s.log.Debug("token verification deadline passed", zap.Uint64("attempt", seq))
	s.unlockAndNotify()
}

func (s *Session) verifiedLocked(res Verified) {
	s.phase = PhaseVerified
	s.requiresName = res.RequiresNameVerification
	s.lastErr = nil
	s.stopCooldownLocked()
	s.cooldown = 0
	s.stopDeadlineLocked()
	s.log.Debug("verified", zap.String("email", s.identifier), zap.Bool("requires_name_verification", s.requiresName))
}

// Abandon discards the flow and returns to identifier entry. Results of
// calls still in flight are ignored.
func (s *Session) Abandon() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopCooldownLocked()
	s.stopDeadlineLocked()
	s.attempt++
	s.epoch++
	s.identifier = ""
	s.phase = PhaseAwaitingIdentifier
	s.attemptToken = ""
	s.cooldown = 0
	s.input.Clear()
	s.devCode = ""
	s.requiresName = false
	s.token = ""
	s.viaToken = false
	s.lastErr = nil
	s.busy = false
	s.unlockAndNotify()
}

// Close cancels both timers. A closed session ignores every later event.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopCooldownLocked()
	s.stopDeadlineLocked()
}

func (s *Session) armCooldownLocked() {
	s.stopCooldownLocked()
	s.cooldown = s.cooldownSeconds
	gen := s.cooldownGen
	s.scheduleTickLocked(gen)
}

func (s *Session) scheduleTickLocked(gen uint64) {
	s.cooldownTimer = s.clock.AfterFunc(time.Second, func() { s.tick(gen) })
}

func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.cooldownGen || s.cooldown == 0 {
		s.mu.Unlock()
		return
	}
	s.cooldown--
	if s.cooldown > 0 {
		s.scheduleTickLocked(gen)
	} else {
		s.cooldownTimer = nil
	}
	s.unlockAndNotify()
}

// stopCooldownLocked cancels the pending tick and invalidates any tick
// that already fired but has not taken the lock yet.
func (s *Session) stopCooldownLocked() {
	if s.cooldownTimer != nil {
		s.cooldownTimer.Stop()
		s.cooldownTimer = nil
	}
	s.cooldownGen++
}

func (s *Session) stopDeadlineLocked() {
	if s.deadline != nil {
		s.deadline.Stop()
		s.deadline = nil
	}
}

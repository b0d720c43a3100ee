// Package cli is the terminal front end for the verification flows.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"campusauth/internal/verification"
)

// ErrAbandoned is returned when the user quits a flow before it completes.
var ErrAbandoned = errors.New("verification abandoned")

// Backend is everything the terminal flows talk to.
type Backend interface {
	verification.Backend
	verification.ProfileBackend
}

// App runs the verification and profile flows over a line-oriented
// terminal.
type App struct {
	backend Backend
	in      *bufio.Scanner
	log     *zap.Logger
	opts    []verification.Option
	load    func(path string) (verification.File, error)

	mu  sync.Mutex
	out io.Writer
}

func NewApp(backend Backend, in io.Reader, out io.Writer, log *zap.Logger, opts ...verification.Option) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{
		backend: backend,
		in:      bufio.NewScanner(in),
		out:     out,
		log:     log,
		opts:    opts,
		load:    LoadIDFile,
	}
}

func (a *App) printf(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

// ask prints prompt and returns the next input line. ok is false at EOF.
func (a *App) ask(prompt string) (string, bool) {
	a.printf("%s", prompt)
	if !a.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(a.in.Text()), true
}

func describe(err error) string {
	var ve *verification.Error
	switch {
	case errors.As(err, &ve):
		return ve.Message
	case errors.Is(err, verification.ErrCooldownActive):
		return "Please wait before requesting a new code"
	default:
		return err.Error()
	}
}

// watcher is a Session observer. It announces the end of the resend
// cooldown and wakes anyone waiting for the phase to change.
type watcher struct {
	app     *App
	changed chan struct{}

	mu       sync.Mutex
	cooldown int
}

func newWatcher(a *App) *watcher {
	return &watcher{app: a, changed: make(chan struct{}, 1)}
}

func (w *watcher) observe(s verification.Snapshot) {
	w.mu.Lock()
	ended := w.cooldown > 0 && s.CooldownRemaining == 0 && s.Phase == verification.PhaseAwaitingCode
	w.cooldown = s.CooldownRemaining
	w.mu.Unlock()
	if ended {
		w.app.printf("\nYou can request a new code now (r).\n")
	}
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

// RunCode runs the identifier and code entry flow. email may be empty, in
// which case it is asked for.
func (a *App) RunCode(ctx context.Context, flow verification.Flow, email string) error {
	w := newWatcher(a)
	opts := append(append([]verification.Option{}, a.opts...),
		verification.WithFlow(flow),
		verification.WithObserver(w.observe),
		verification.WithLogger(a.log),
	)
	sess := verification.New(a.backend, opts...)
	defer sess.Close()

	for {
		if email == "" {
			line, ok := a.ask("Campus email (blank to quit): ")
			if !ok || line == "" {
				return ErrAbandoned
			}
			email = line
		}
		if err := sess.SubmitIdentifier(ctx, email); err != nil {
			a.printf("%s\n", describe(err))
			email = ""
			continue
		}

		snap := sess.Snapshot()
		a.printf("Code sent to %s.\n", snap.Identifier)
		if snap.DevCode != "" {
			a.printf("Dev code: %s\n", snap.DevCode)
		}

		done, err := a.enterCode(ctx, sess)
		if err != nil {
			return err
		}
		if done {
			return a.finish(ctx, sess.Snapshot())
		}
		email = ""
	}
}

// enterCode reads code input until the session is verified (true) or the
// user abandons it (false).
func (a *App) enterCode(ctx context.Context, sess *verification.Session) (bool, error) {
	a.printf("Type the digits of the code. '<' deletes, 'r' resends, 'q' starts over.\n")
	for {
		snap := sess.Snapshot()
		if snap.Phase == verification.PhaseVerified {
			return true, nil
		}
		line, ok := a.ask(prompt(snap))
		if !ok {
			sess.Abandon()
			return false, ErrAbandoned
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		switch line {
		case "q":
			sess.Abandon()
			return false, nil
		case "r":
			if err := sess.Resend(ctx); err != nil {
				if errors.Is(err, verification.ErrCooldownActive) {
					a.printf("Please wait %ds before requesting a new code.\n", sess.Snapshot().CooldownRemaining)
				} else {
					a.printf("%s\n", describe(err))
				}
				continue
			}
			snap = sess.Snapshot()
			a.printf("New code sent.\n")
			if snap.DevCode != "" {
				a.printf("Dev code: %s\n", snap.DevCode)
			}
			continue
		}

		for _, r := range line {
			var err error
			switch {
			case r == ' ' || r == '-':
				continue
			case r == '<':
				err = sess.Backspace()
			default:
				err = sess.TypeDigit(ctx, r)
			}
			if err != nil {
				a.printf("%s\n", describe(err))
				break
			}
			if sess.Snapshot().Phase != verification.PhaseAwaitingCode {
				break
			}
		}
	}
}

func prompt(s verification.Snapshot) string {
	cells := []rune(strings.Repeat("_", verification.CodeLength))
	copy(cells, []rune(s.Code))
	if s.CooldownRemaining > 0 {
		return fmt.Sprintf("code [%s] (resend in %ds) > ", string(cells), s.CooldownRemaining)
	}
	return fmt.Sprintf("code [%s] > ", string(cells))
}

// RunLink verifies a magic-link token, offering retry after a failure or
// timeout.
func (a *App) RunLink(ctx context.Context, token string) error {
	w := newWatcher(a)
	opts := append(append([]verification.Option{}, a.opts...),
		verification.WithObserver(w.observe),
		verification.WithLogger(a.log),
	)
	sess := verification.New(a.backend, opts...)
	defer sess.Close()

	if err := sess.VerifyLink(token); err != nil {
		a.printf("%s\n", describe(err))
		return err
	}
	for {
		a.printf("Verifying link...\n")
		snap, err := a.settle(ctx, sess, w)
		if err != nil {
			return err
		}
		if snap.Phase == verification.PhaseVerified {
			return a.finish(ctx, snap)
		}

		if snap.Err != nil {
			a.printf("%s\n", snap.Err.Message)
		}
		line, ok := a.ask("[r]etry or [q]uit? ")
		if !ok || line == "q" {
			sess.Abandon()
			return ErrAbandoned
		}
		if err := sess.Retry(); err != nil {
			a.printf("%s\n", describe(err))
			return err
		}
	}
}

// settle waits until the session leaves the verifying phase.
func (a *App) settle(ctx context.Context, sess *verification.Session, w *watcher) (verification.Snapshot, error) {
	for {
		snap := sess.Snapshot()
		if snap.Phase != verification.PhaseVerifying {
			return snap, nil
		}
		select {
		case <-w.changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

func (a *App) finish(ctx context.Context, snap verification.Snapshot) error {
	switch snap.Handoff() {
	case verification.HandoffProfileSetup:
		a.printf("Email verified. Let's confirm your name.\n")
		return a.RunProfile(ctx)
	default:
		a.printf("Email verified. You're signed in.\n")
		return nil
	}
}

// RunProfile collects the user's name and, when the email does not vouch
// for it, an ID photo.
func (a *App) RunProfile(ctx context.Context) error {
	ps := verification.NewProfileSetup(a.backend, a.log)

	for ps.State().Method == verification.MethodUndecided {
		name, ok := a.ask("Full name: ")
		if !ok {
			return ErrAbandoned
		}
		if err := ps.SubmitName(ctx, name); err != nil {
			a.printf("%s\n", describe(err))
		}
	}
	st := ps.State()
	if st.Message != "" {
		a.printf("%s\n", st.Message)
	}

	for st.Verdict.Status != verification.VerdictVerified {
		path, ok := a.ask("Path to a photo of your student ID (blank to quit): ")
		if !ok || path == "" {
			return ErrAbandoned
		}
		f, err := a.load(path)
		if err != nil {
			a.printf("%s\n", describe(err))
			continue
		}
		if err := ps.UploadID(ctx, f); err != nil {
			a.printf("%s\n", describe(err))
			continue
		}
		st = ps.State()
		if st.Verdict.Status == verification.VerdictRejected {
			a.printf("%s Try another photo.\n", st.Verdict.Reason)
		}
	}
	a.printf("Name verified.\n")
	return nil
}

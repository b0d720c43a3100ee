package verification

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// fakeClock fires timers synchronously from Advance, in deadline order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	seq     int
	f       func()
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 9, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{c: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// Advance moves time forward by d, running every timer that comes due,
// including timers scheduled by callbacks along the way.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	end := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		next := c.nextDueLocked(end)
		if next == nil {
			c.now = end
			c.mu.Unlock()
			return
		}
		next.stopped = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

func (c *fakeClock) nextDueLocked(end time.Time) *fakeTimer {
	var live []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	c.timers = live
	sort.Slice(live, func(i, j int) bool {
		if live[i].at.Equal(live[j].at) {
			return live[i].seq < live[j].seq
		}
		return live[i].at.Before(live[j].at)
	})
	if len(live) == 0 || live[0].at.After(end) {
		return nil
	}
	return live[0]
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type rejection struct{ detail string }

func (r rejection) Error() string  { return "rejected: " + r.detail }
func (r rejection) Detail() string { return r.detail }

var errNetwork = errors.New("dial tcp: connection refused")

type call struct {
	Op         string
	Identifier string
	Code       string
	Token      string
	DevMode    bool
}

// fakeBackend records calls and answers from its fields. When tokenGates is
// set, the nth VerifyToken call blocks until a result is sent on tokenGates[n].
type fakeBackend struct {
	mu    sync.Mutex
	calls []call

	issue     CodeIssued
	issueErr  error
	verify    Verified
	verifyErr error
	resend    CodeIssued
	resendErr error

	tokenGates []chan tokenResult
	tokenCalls int
	token      Verified
	tokenErr   error
}

type tokenResult struct {
	res Verified
	err error
}

func gates(n int) []chan tokenResult {
	out := make([]chan tokenResult, n)
	for i := range out {
		out[i] = make(chan tokenResult, 1)
	}
	return out
}

func (f *fakeBackend) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeBackend) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeBackend) count(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *fakeBackend) RequestSignupCode(_ context.Context, id string, dev bool) (CodeIssued, error) {
	f.record(call{Op: "signup", Identifier: id, DevMode: dev})
	return f.issue, f.issueErr
}

func (f *fakeBackend) RequestLoginCode(_ context.Context, id string, dev bool) (CodeIssued, error) {
	f.record(call{Op: "login", Identifier: id, DevMode: dev})
	return f.issue, f.issueErr
}

func (f *fakeBackend) VerifyCode(_ context.Context, id, code string, dev bool) (Verified, error) {
	f.record(call{Op: "verify", Identifier: id, Code: code, DevMode: dev})
	return f.verify, f.verifyErr
}

func (f *fakeBackend) ResendCode(_ context.Context, id string, dev bool) (CodeIssued, error) {
	f.record(call{Op: "resend", Identifier: id, DevMode: dev})
	return f.resend, f.resendErr
}

func (f *fakeBackend) VerifyToken(_ context.Context, token string) (Verified, error) {
	f.record(call{Op: "token", Token: token})
	f.mu.Lock()
	n := f.tokenCalls
	f.tokenCalls++
	var gate chan tokenResult
	if n < len(f.tokenGates) {
		gate = f.tokenGates[n]
	}
	f.mu.Unlock()
	if gate != nil {
		r := <-gate
		return r.res, r.err
	}
	return f.token, f.tokenErr
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Phase
	for _, s := range r.snaps {
		if len(out) == 0 || out[len(out)-1] != s.Phase {
			out = append(out, s.Phase)
		}
	}
	return out
}

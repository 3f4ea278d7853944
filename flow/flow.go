// Package flow drives one client's authentication attempts from challenge
// request to session, across all wallet providers.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/inconshreveable/log15"
	"github.com/layer-3/xrpauth/core"
	"github.com/layer-3/xrpauth/watcher"
)

var (
	ErrInvalidState   = errors.New("operation not allowed in current state")
	ErrSuperseded     = errors.New("attempt superseded")
	ErrChannelTimeout = errors.New("timed out waiting for signature")
)

// State of a Flow
type State int

const (
	Idle State = iota
	Requesting
	AwaitingSignature
	Verifying
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case AwaitingSignature:
		return "awaiting-signature"
	case Verifying:
		return "verifying"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Backend is the authentication service a Flow talks to, either in process
// or over HTTP
type Backend interface {
	IssueChallenge(ctx context.Context, provider core.Provider, claim core.AccountClaim) (core.Challenge, error)
	Authenticate(ctx context.Context, resp core.SignedResponse) (core.Session, error)
	FetchPayload(ctx context.Context, id string) (*core.PayloadDetails, error)
	ValidateSession(ctx context.Context, token string) (string, error)
}

// Snapshot is a copy of the flow state
type Snapshot struct {
	State     State
	Attempt   string
	Provider  core.Provider
	Challenge core.Challenge
	Payload   *core.PayloadStatus
	Session   *core.Session
	Retrieved bool // session was restored from a stored credential
	Reason    string
	Category  core.Category
}

// Flow is the per-client authentication state machine. It is safe for
// concurrent use.
type Flow struct {
	backend        Backend
	watcher        *watcher.Watcher
	log            log.Logger
	channelTimeout time.Duration

	mu        sync.Mutex
	state     State
	attempt   string
	provider  core.Provider
	challenge core.Challenge
	watch     *watcher.Watch
	session   *core.Session
	retrieved bool
	reason    string
	category  core.Category
	changed   chan struct{}
}

// Option configures a Flow
type Option func(*Flow)

// WithChannelTimeout fails out-of-band attempts not signed within d
func WithChannelTimeout(d time.Duration) Option {
	return func(f *Flow) {
		f.channelTimeout = d
	}
}

// WithLogger sets the flow logger
func WithLogger(logger log.Logger) Option {
	return func(f *Flow) {
		f.log = logger
	}
}

// New creates an idle flow
func New(backend Backend, opts ...Option) *Flow {
	f := &Flow{
		backend: backend,
		log:     log.New("module", "flow"),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.watcher = watcher.New(backend, f.log)
	return f
}

// Request starts a new attempt with provider, abandoning any previous one.
// For ProviderXumm the status channel is opened before Request returns.
func (f *Flow) Request(ctx context.Context, provider core.Provider, claim core.AccountClaim) (core.Challenge, error) {
	f.mu.Lock()
	old := f.resetLocked()
	attempt := uuid.New().String()
	f.attempt = attempt
	f.state = Requesting
	f.provider = provider
	f.notifyLocked()
	f.mu.Unlock()

	if old != nil {
		old.Close()
	}

	challenge, err := f.backend.IssueChallenge(ctx, provider, claim)
	if err != nil {
		f.fail(attempt, nil, err)
		return nil, err
	}

	var watch *watcher.Watch
	if payload, ok := challenge.(*core.PayloadChallenge); ok {
		watch, err = f.watcher.Watch(ctx, payload)
		if err != nil {
			f.fail(attempt, nil, err)
			return nil, err
		}
	}

	f.mu.Lock()
	if f.attempt != attempt {
		f.mu.Unlock()
		if watch != nil {
			watch.Close()
		}
		return nil, ErrSuperseded
	}
	f.state = AwaitingSignature
	f.challenge = challenge
	f.watch = watch
	f.notifyLocked()
	f.mu.Unlock()

	f.log.Debug("Challenge issued", "attempt", attempt, "provider", provider)
	if watch != nil {
		go f.follow(attempt, watch)
	}

	return challenge, nil
}

// Submit verifies a signature obtained by the caller for the current attempt
func (f *Flow) Submit(ctx context.Context, resp core.SignedResponse) (core.Session, error) {
	f.mu.Lock()
	if f.state != AwaitingSignature {
		state := f.state
		f.mu.Unlock()
		return core.Session{}, fmt.Errorf("%w: %s", ErrInvalidState, state)
	}
	if resp.Provider() != f.provider {
		f.mu.Unlock()
		return core.Session{}, fmt.Errorf("%w: expected %s, got %s", core.ErrProviderMismatch, f.provider, resp.Provider())
	}
	// Submit claims the attempt; a live channel no longer decides it
	attempt := f.attempt
	claimed := f.watch
	f.watch = nil
	f.state = Verifying
	f.notifyLocked()
	f.mu.Unlock()

	if claimed != nil {
		claimed.Close()
	}

	session, err := f.backend.Authenticate(ctx, resp)
	if err != nil {
		f.fail(attempt, nil, err)
		return core.Session{}, err
	}
	if !f.succeed(attempt, nil, session) {
		return core.Session{}, ErrSuperseded
	}

	return session, nil
}

// Restore adopts a stored session credential. A credential that does not
// validate is dropped without error and the flow stays idle.
func (f *Flow) Restore(ctx context.Context, token string) error {
	if f.Snapshot().State != Idle {
		return fmt.Errorf("%w: restore", ErrInvalidState)
	}
	if token == "" {
		return nil
	}

	address, err := f.backend.ValidateSession(ctx, token)
	if err != nil {
		switch core.CategoryOf(err) {
		case core.CategoryAuth, core.CategoryValidation:
			f.log.Debug("Dropping stored credential", "err", err)
			return nil
		default:
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Idle {
		return ErrSuperseded
	}
	f.attempt = uuid.New().String()
	f.state = Authenticated
	f.session = &core.Session{Address: address, Token: token}
	f.retrieved = true
	f.notifyLocked()

	return nil
}

// Disconnect returns the flow to Idle, closing any open channel and
// discarding any credential
func (f *Flow) Disconnect() {
	f.mu.Lock()
	old := f.resetLocked()
	f.notifyLocked()
	f.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Snapshot returns the current state
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Changed is closed at the next state change
func (f *Flow) Changed() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed
}

// Wait blocks until the flow is Authenticated, Failed or Idle
func (f *Flow) Wait(ctx context.Context) (Snapshot, error) {
	for {
		f.mu.Lock()
		snap := f.snapshotLocked()
		changed := f.changed
		f.mu.Unlock()

		switch snap.State {
		case Authenticated, Failed, Idle:
			return snap, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

func (f *Flow) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     f.state,
		Attempt:   f.attempt,
		Provider:  f.provider,
		Challenge: f.challenge,
		Retrieved: f.retrieved,
		Reason:    f.reason,
		Category:  f.category,
	}
	if f.watch != nil {
		status := f.watch.Status()
		snap.Payload = &status
	}
	if f.session != nil {
		session := *f.session
		snap.Session = &session
	}
	return snap
}

// follow turns the watch result into the attempt's terminal state
func (f *Flow) follow(attempt string, watch *watcher.Watch) {
	var timeout <-chan time.Time
	if f.channelTimeout > 0 {
		timer := time.NewTimer(f.channelTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-watch.Signed():
		f.mu.Lock()
		if f.attempt == attempt && f.watch == watch && f.state == AwaitingSignature {
			f.state = Verifying
			f.notifyLocked()
		}
		f.mu.Unlock()
	case <-watch.Done():
	case <-timeout:
		f.fail(attempt, watch, ErrChannelTimeout)
		return
	}

	session, err := watch.Result()
	switch {
	case err == nil:
		f.succeed(attempt, watch, session)
	case errors.Is(err, watcher.ErrWatchClosed):
	case errors.Is(err, watcher.ErrChannelClosed):
		f.release(attempt, watch)
	default:
		f.fail(attempt, watch, err)
	}
}

// release forgets a channel the remote side closed, keeping the attempt open
func (f *Flow) release(attempt string, watch *watcher.Watch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempt != attempt || f.watch != watch {
		return
	}
	f.log.Info("Status channel closed before signing", "attempt", attempt)
	f.watch = nil
	if f.state == Verifying {
		f.state = AwaitingSignature
	}
	f.notifyLocked()
}

// settleableLocked reports whether a result for attempt may still decide it.
// A non-nil watch must still own the attempt.
func (f *Flow) settleableLocked(attempt string, watch *watcher.Watch) bool {
	if f.attempt != attempt {
		return false
	}
	if watch != nil && f.watch != watch {
		return false
	}
	switch f.state {
	case Requesting, AwaitingSignature, Verifying:
		return true
	default:
		return false
	}
}

func (f *Flow) succeed(attempt string, watch *watcher.Watch, session core.Session) bool {
	f.mu.Lock()
	if !f.settleableLocked(attempt, watch) {
		f.mu.Unlock()
		return false
	}
	old := f.watch
	f.watch = nil
	f.state = Authenticated
	f.session = &session
	f.notifyLocked()
	f.mu.Unlock()

	if old != nil {
		old.Close()
	}
	f.log.Info("Authenticated", "attempt", attempt, "address", session.Address)
	return true
}

func (f *Flow) fail(attempt string, watch *watcher.Watch, err error) {
	f.mu.Lock()
	if !f.settleableLocked(attempt, watch) {
		f.mu.Unlock()
		return
	}
	old := f.watch
	f.watch = nil
	f.state = Failed
	f.reason = err.Error()
	f.category = core.CategoryOf(err)
	f.notifyLocked()
	f.mu.Unlock()

	if old != nil {
		old.Close()
	}
	f.log.Info("Authentication failed", "attempt", attempt, "err", err)
}

// resetLocked clears the flow to Idle and returns the watch the caller must
// close after unlocking
func (f *Flow) resetLocked() *watcher.Watch {
	old := f.watch
	f.state = Idle
	f.attempt = ""
	f.provider = ""
	f.challenge = nil
	f.watch = nil
	f.session = nil
	f.retrieved = false
	f.reason = ""
	f.category = core.CategoryUnknown
	return old
}

func (f *Flow) notifyLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

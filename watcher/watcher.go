// Package watcher follows the status channel of an out-of-band sign request
// and turns the first "signed" event into a session.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/inconshreveable/log15"
	"github.com/layer-3/xrpauth/core"
)

var (
	// ErrChannelClosed is the result when the remote side closes the channel
	// before reporting a signature
	ErrChannelClosed = errors.New("status channel closed before signing")

	// ErrWatchClosed is the result of a watch closed by its owner
	ErrWatchClosed = errors.New("watch closed")

	// ErrNoSignedBlob is returned when a signed payload carries no transaction
	ErrNoSignedBlob = errors.New("payload has no signed blob")
)

// Authenticator resolves a signed payload into a session
type Authenticator interface {
	FetchPayload(ctx context.Context, id string) (*core.PayloadDetails, error)
	Authenticate(ctx context.Context, resp core.SignedResponse) (core.Session, error)
}

// Event is one status message pushed on a payload channel
type Event struct {
	PayloadUUID      string `json:"payload_uuidv4"`
	Signed           *bool  `json:"signed"`
	Opened           bool   `json:"opened"`
	Expired          bool   `json:"expired"`
	ExpiresInSeconds *int   `json:"expires_in_seconds"`
	Message          string `json:"message"`
}

// Watcher opens payload status channels
type Watcher struct {
	auth   Authenticator
	dialer *websocket.Dialer
	log    log.Logger
}

// New creates a watcher resolving signed payloads through auth
func New(auth Authenticator, logger log.Logger) *Watcher {
	return &Watcher{
		auth: auth,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		log: logger,
	}
}

// Watch subscribes to the status channel of challenge. The returned Watch
// owns the connection until it produces a result or is closed.
func (w *Watcher) Watch(ctx context.Context, challenge *core.PayloadChallenge) (*Watch, error) {
	if challenge.ChannelURL == "" {
		return nil, fmt.Errorf("%w: channelURL", core.ErrMissingParameter)
	}

	conn, _, err := w.dialer.DialContext(ctx, challenge.ChannelURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open status channel: %v", core.ErrUpstreamUnavailable, err)
	}

	wctx, cancel := context.WithCancel(context.Background())
	watch := &Watch{
		conn:   conn,
		auth:   w.auth,
		log:    w.log.New("payload", challenge.PayloadID),
		ctx:    wctx,
		cancel: cancel,
		status: core.PayloadStatus{
			ID:         challenge.PayloadID,
			ChannelURL: challenge.ChannelURL,
			State:      core.PayloadCreated,
		},
		signed: make(chan struct{}),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go watch.run()

	return watch, nil
}

// Watch is a single subscription producing exactly one result
type Watch struct {
	conn   *websocket.Conn
	auth   Authenticator
	log    log.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	status  core.PayloadStatus
	closing bool

	once    sync.Once
	session core.Session
	err     error
	signed  chan struct{}
	done    chan struct{}
	exited  chan struct{}
}

// Signed is closed when the signature is announced and verification starts
func (w *Watch) Signed() <-chan struct{} {
	return w.signed
}

// Done is closed once the result is available
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Result waits for and returns the outcome of the watch
func (w *Watch) Result() (core.Session, error) {
	<-w.done
	return w.session, w.err
}

// Status returns the last known payload status
func (w *Watch) Status() core.PayloadStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Close tears the channel down and waits for the reader to exit. A watch
// without a result yet finishes with ErrWatchClosed.
func (w *Watch) Close() {
	w.mu.Lock()
	w.closing = true
	w.mu.Unlock()

	w.finish(core.Session{}, ErrWatchClosed)
	w.cancel()

	deadline := time.Now().Add(time.Second)
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = w.conn.Close()
	<-w.exited
}

func (w *Watch) isClosing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closing
}

func (w *Watch) finish(session core.Session, err error) {
	w.once.Do(func() {
		w.session = session
		w.err = err
		close(w.done)
	})
}

func (w *Watch) run() {
	defer close(w.exited)
	defer w.cancel()
	defer w.conn.Close()

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			switch {
			case w.isClosing():
				w.finish(core.Session{}, ErrWatchClosed)
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				w.log.Debug("Status channel closed by peer")
				w.finish(core.Session{}, ErrChannelClosed)
			default:
				w.log.Warn("Status channel failed", "err", err)
				w.finish(core.Session{}, fmt.Errorf("%w: status channel: %v", core.ErrUpstreamUnavailable, err))
			}
			return
		}
		if w.isClosing() {
			return
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			w.log.Debug("Ignoring unreadable status event", "err", err)
			continue
		}
		if !w.apply(event) {
			continue
		}
		close(w.signed)

		session, err := w.resolve()
		if err != nil {
			w.log.Info("Signed payload rejected", "err", err)
		}
		w.finish(session, err)
		return
	}
}

// apply folds a non-terminal event into the status and reports whether the
// event announces the signature
func (w *Watch) apply(event Event) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if event.PayloadUUID != "" && event.PayloadUUID != w.status.ID {
		return false
	}

	switch {
	case event.Signed != nil && *event.Signed:
		w.status.State = core.PayloadSigned
		return true
	case event.Expired:
		w.status.State = core.PayloadExpired
	case event.Opened:
		if w.status.State == core.PayloadCreated {
			w.status.State = core.PayloadPending
		}
	}
	w.log.Debug("Status event", "state", w.status.State, "message", event.Message)
	return false
}

func (w *Watch) resolve() (core.Session, error) {
	details, err := w.auth.FetchPayload(w.ctx, w.status.ID)
	if err != nil {
		return core.Session{}, fmt.Errorf("failed to fetch signed payload: %w", err)
	}
	if details.Response.Hex == "" {
		return core.Session{}, fmt.Errorf("%w: %w", core.ErrMissingParameter, ErrNoSignedBlob)
	}

	return w.auth.Authenticate(w.ctx, &core.PayloadResponse{SignedBlob: details.Response.Hex})
}

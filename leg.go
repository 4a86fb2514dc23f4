package transload

import (
	"context"
	"crypto/md5" //nolint:gosec // content hash, not a security boundary (spec §1: hash is computed, never checked)
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/bitrise-io/go-transload/internal/legbuffer"
	"github.com/bitrise-io/go-transload/internal/redact"
)

// State is a Leg's position in its state machine (spec §4.1).
type State int

const (
	StatePreparing State = iota
	StateActive
	StateStalled
	StateFinalizing
	StateDoneSuccess
	StateDoneError
)

func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StateActive:
		return "active"
	case StateStalled:
		return "stalled"
	case StateFinalizing:
		return "finalizing"
	case StateDoneSuccess:
		return "done(success)"
	case StateDoneError:
		return "done(error)"
	default:
		return "unknown"
	}
}

// Leg owns one upload destination's buffer, running hash, byte counter,
// idle timer, cancellation and outbound HTTP request (spec §2 C1, §4.1).
type Leg struct {
	index   uint
	config  UploadConfig
	logger  log.Logger
	client  *http.Client
	encoder multipartEncoder

	buffer *legbuffer.Buffer
	hash   hash.Hash

	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}

	onStuck   func(index uint)
	onUnstuck func(index uint)

	extraSecretHeaderNames []string

	stateMu         sync.Mutex
	state           State
	uploadedBytes   uint64
	declaredSize    uint64
	declaredSizeSet bool
	fileName        string
	md5             string
	settled         bool
	result          UploadResult

	idleTimer idleTimer
}

// idleTimer is the minimal timer surface Leg needs; kept as an interface so
// tests can substitute a fake clock instead of racing real 60s timers.
type idleTimer interface {
	Reset()
	Stop()
}

// NewLeg constructs a Leg for the given UploadConfig. No I/O happens here;
// state starts at Preparing (spec §4.1 prepare()).
func NewLeg(index uint, config UploadConfig, sessionAgent *http.Client, calculateMD5 bool, extraSecretHeaderNames []string, logger log.Logger) *Leg {
	client := config.Agent
	if client == nil {
		client = sessionAgent
	}
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithCancel(context.Background())

	l := &Leg{
		index:    index,
		config:   config,
		logger:   logger,
		client:   client,
		encoder:  stdMultipartEncoder{},
		buffer:   legbuffer.New(BufferCap),
		ctx:      ctx,
		cancel:   cancel,
		ready:    make(chan struct{}),
		fileName: config.FileName,
		state:    StatePreparing,

		extraSecretHeaderNames: extraSecretHeaderNames,
	}
	if calculateMD5 {
		l.hash = md5.New() //nolint:gosec
	}
	l.idleTimer = newRealIdleTimer(l.onIdleTimeout)
	l.buffer.SetOnDrain(l.onDrain)

	return l
}

// SetCallbacks wires the coordinator's stuck/unstuck signal handlers. Must
// be called before the leg starts accepting writes.
func (l *Leg) SetCallbacks(onStuck, onUnstuck func(index uint)) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	l.onStuck = onStuck
	l.onUnstuck = onUnstuck
}

// Index returns the leg's position in the input list.
func (l *Leg) Index() uint { return l.index }

func (l *Leg) state_() State {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.state
}

// IsAlive reports whether the leg can still accept writes or is still
// running its HTTP request (spec §4.2 allDead()).
func (l *Leg) IsAlive() bool {
	switch l.state_() {
	case StatePreparing, StateActive, StateStalled, StateFinalizing:
		return true
	default:
		return false
	}
}

// SetSize records the declared content length (source length + any random
// suffix) and transitions Preparing -> Active. Written at most once
// (invariant 3).
func (l *Leg) SetSize(contentLength uint64) {
	l.stateMu.Lock()
	if l.declaredSizeSet {
		l.stateMu.Unlock()
		return
	}
	l.declaredSize = contentLength + uint64(l.config.RandomBytesCount)
	l.declaredSizeSet = true
	if l.state == StatePreparing {
		l.state = StateActive
		l.idleTimer.Reset()
	}
	l.stateMu.Unlock()

	close(l.ready)
}

// SetFilename adopts name if this leg has no filename yet (invariant 4).
func (l *Leg) SetFilename(name string) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	if l.fileName == "" && name != "" {
		l.fileName = name
	}
}

// Write enqueues chunk into the leg's buffer, updates its byte counter and
// running hash, and reports whether the buffer is still within capacity
// (spec §4.1 write()). No-ops once the leg is no longer Active/Stalled.
func (l *Leg) Write(chunk []byte) bool {
	l.stateMu.Lock()

	if l.state != StateActive && l.state != StateStalled {
		l.stateMu.Unlock()
		return false
	}

	accepted := l.buffer.Write(chunk)
	l.uploadedBytes += uint64(len(chunk))
	if l.hash != nil {
		l.hash.Write(chunk) //nolint:errcheck // hash.Hash.Write never errors
	}

	var stuckCb func(uint)
	switch {
	case !accepted && l.state == StateActive:
		l.state = StateStalled
		l.idleTimer.Stop()
		stuckCb = l.onStuck
	case accepted && l.state == StateActive:
		l.idleTimer.Reset()
	}
	idx := l.index
	l.stateMu.Unlock()

	if stuckCb != nil {
		stuckCb(idx)
	}

	return accepted
}

// onDrain fires when the buffer empties out from a non-zero level
// (legbuffer.Buffer.SetOnDrain). Re-arms the idle timer and returns the leg
// to Active.
func (l *Leg) onDrain() {
	l.stateMu.Lock()
	if l.state != StateStalled {
		l.stateMu.Unlock()
		return
	}
	l.state = StateActive
	l.idleTimer.Reset()
	cb := l.onUnstuck
	idx := l.index
	l.stateMu.Unlock()

	if cb != nil {
		cb(idx)
	}
}

// onIdleTimeout fires 60s after the leg's last forward-progress event while
// Active. It is a no-op if the leg moved on (Stalled, Finalizing, Done) in
// the meantime.
func (l *Leg) onIdleTimeout() {
	l.stateMu.Lock()
	active := l.state == StateActive
	l.stateMu.Unlock()
	if !active {
		return
	}
	l.Abort(&legError{
		index: l.index,
		phase: legPhaseIdleTimeout,
		err:   fmt.Errorf("no forward progress in %s", IdleTimeout),
	})
}

// Finalize appends the random-byte suffix (if any), digests the hash, and
// marks the buffer's end of stream. The outbound HTTP body completes once
// the buffer drains (spec §4.1 finalize()).
func (l *Leg) Finalize() {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()

	if l.state != StateActive && l.state != StateStalled {
		return
	}

	if l.config.RandomBytesCount > 0 {
		suffix := make([]byte, l.config.RandomBytesCount)
		_, _ = rand.Read(suffix)
		l.buffer.Write(suffix)
		l.uploadedBytes += uint64(len(suffix))
		if l.hash != nil {
			l.hash.Write(suffix) //nolint:errcheck
		}
	}

	if l.hash != nil {
		l.md5 = hex.EncodeToString(l.hash.Sum(nil))
	}

	l.buffer.CloseClean()
	l.state = StateFinalizing
	l.idleTimer.Stop()
}

// Abort trips this leg's cancellation and settles it with err. Idempotent:
// only the first call has any effect (spec §7: exactly one terminal
// outcome per leg).
func (l *Leg) Abort(err error) {
	l.cancel()
	l.settleError(err)
}

func (l *Leg) settleError(err error) UploadResult {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()

	if l.settled {
		return l.result
	}
	l.settled = true
	l.state = StateDoneError
	l.idleTimer.Stop()
	l.buffer.Abort(err)

	l.result = UploadResult{
		UploadURL:        l.config.UploadURL,
		FileName:         l.fileName,
		Size:             l.declaredSize,
		UploadedBytes:    l.uploadedBytes,
		RandomBytesCount: l.config.RandomBytesCount,
		Error:            err.Error(),
	}
	return l.result
}

func (l *Leg) settleSuccess(response interface{}) UploadResult {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()

	if l.settled {
		return l.result
	}
	l.settled = true
	l.state = StateDoneSuccess
	l.idleTimer.Stop()

	l.result = UploadResult{
		UploadURL:        l.config.UploadURL,
		FileName:         l.fileName,
		Size:             l.declaredSize,
		UploadedBytes:    l.uploadedBytes,
		RandomBytesCount: l.config.RandomBytesCount,
		MD5:              l.md5,
		Response:         response,
	}
	return l.result
}

// Run performs the leg's HTTP request and blocks until it settles,
// returning the terminal UploadResult either way (spec §4.1 run()).
func (l *Leg) Run() UploadResult {
	select {
	case <-l.ready:
	case <-l.ctx.Done():
		return l.settleError(l.ctx.Err())
	}

	req, err := l.buildRequest()
	if err != nil {
		return l.settleError(fmt.Errorf("build request: %w", err))
	}

	l.logger.Debugf("leg %d: %s %s (declared size %d, headers %v)",
		l.index, req.Method, req.URL, req.ContentLength, redact.HeadersWithExtra(l.config.Headers, l.extraSecretHeaderNames))

	resp, err := l.client.Do(req)
	if err != nil {
		return l.settleError(&legError{index: l.index, phase: legPhaseHTTP, err: err})
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return l.settleError(fmt.Errorf("read response: %w", err))
	}

	// spec §9 open question: any resolved response (even non-2xx) is a
	// successful leg; the response body is recorded verbatim either way.
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err == nil {
		return l.settleSuccess(parsed)
	}
	return l.settleSuccess(string(body))
}

func (l *Leg) buildRequest() (*http.Request, error) {
	l.stateMu.Lock()
	method := l.config.Method
	fileName := l.fileName
	declaredSize := int64(l.declaredSize)
	l.stateMu.Unlock()

	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader = l.buffer
	var totalLength = declaredSize
	var contentType string

	if strings.EqualFold(method, http.MethodPut) {
		body = l.buffer
	} else {
		body, totalLength, contentType = l.encoder.Encode(fileName, l.buffer, declaredSize)
	}

	req, err := http.NewRequestWithContext(l.ctx, method, l.config.UploadURL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", DefaultUserAgent)
	for k, v := range l.config.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.ContentLength = totalLength

	return req, nil
}

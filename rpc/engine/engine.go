package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/sqc/lib/codec"
	"github.com/ValentinKolb/sqc/lib/sqerr"
	"github.com/ValentinKolb/sqc/lib/util"
	"github.com/ValentinKolb/sqc/rpc/common"
	"github.com/ValentinKolb/sqc/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("engine")

// BannerPrefix starts the first greeting line of every query endpoint.
const BannerPrefix = "TS3"

// --------------------------------------------------------------------------
// State
// --------------------------------------------------------------------------

// State is the connection state of an engine.
type State int32

const (
	StateNew        State = iota // created, Connect not called yet
	StateConnecting              // physical channel being established
	StateBanner                  // consuming the two line greeting
	StateReady                   // commands are sent
	StateClosed                  // terminal, every pending command was rejected
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateBanner:
		return "banner"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options tunes an engine.
type Options struct {
	// KeepAlive is the idle interval after which a keepalive line is sent. 0 disables it.
	KeepAlive time.Duration
	// FloodUnit is the length of one second of flood control delay. Tests shrink it.
	FloodUnit time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		KeepAlive: common.DefaultKeepAliveSecond * time.Second,
		FloodUnit: time.Second,
	}
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// entry is one command in the FIFO queue
type entry struct {
	line      string
	future    *Future
	records   []codec.Record
	submitted time.Time
	sent      bool // awaiting its terminator
	retries   int
}

// Engine runs the query protocol over one transport. It matches terminators
// to commands strictly in submission order, since the protocol carries no
// correlation id.
type Engine struct {
	transport transport.ILineTransport
	opts      Options

	mu           sync.Mutex
	state        State
	queue        []*entry
	bannerLines  int
	floodWaiting bool
	floodTimer   *time.Timer
	outgoing     string // claimed by sendHeadLocked, written by unlockAndSend
	keepAlive    *time.Timer
	resolved     uint64
	connectErr   error
	closeErr     error

	events   *util.Mailbox[Event]
	ready    chan struct{}
	closed   chan struct{}
	readyOne sync.Once
}

// New creates an engine on top of transport and registers itself as the
// transport's line and close handler.
func New(t transport.ILineTransport, opts Options) *Engine {
	if opts.FloodUnit <= 0 {
		opts.FloodUnit = time.Second
	}
	e := &Engine{
		transport: t,
		opts:      opts,
		events:    util.NewMailbox[Event](),
		ready:     make(chan struct{}),
		closed:    make(chan struct{}),
	}
	t.RegisterHandler(e.handleLine)
	t.RegisterCloseHandler(e.handleClose)
	return e
}

// --------------------------------------------------------------------------
// Public API
// --------------------------------------------------------------------------

// Connect establishes the transport and consumes the greeting. It returns once
// the engine is ready, or fails with ErrInvalidBanner, ErrConnectTimeout, a
// connection error or ctx's error. A failed connect leaves the engine closed.
func (e *Engine) Connect(ctx context.Context, config common.ClientConfig) error {
	e.mu.Lock()
	switch e.state {
	case StateNew:
		e.state = StateConnecting
	case StateClosed:
		e.mu.Unlock()
		return sqerr.ErrConnectionClosed
	default:
		e.mu.Unlock()
		return sqerr.ErrAlreadyConnected
	}
	e.mu.Unlock()

	timeout := config.Timeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	Logger.Infof("Connecting to %s via %s", config.Transport.Endpoint(), e.transport.GetName())
	if err := e.transport.Connect(ctx, config); err != nil {
		e.handleClose(err)
		return err
	}

	e.mu.Lock()
	if e.state == StateConnecting {
		e.state = StateBanner
	}
	e.mu.Unlock()

	select {
	case <-e.ready:
		Logger.Infof("Connection to %s ready", config.Transport.Endpoint())
		return nil
	case <-e.closed:
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.connectErr != nil {
			return e.connectErr
		}
		return fmt.Errorf("%w: closed during greeting: %v", sqerr.ErrConnectionClosed, e.closeErr)
	case <-timer.C:
		err := fmt.Errorf("%w: no greeting within %s", sqerr.ErrConnectTimeout, timeout)
		e.failConnect(err)
		return err
	case <-ctx.Done():
		e.failConnect(ctx.Err())
		return ctx.Err()
	}
}

// Submit appends a command to the queue and returns its future. The command
// is encoded once and becomes immutable. Commands submitted before the engine
// is ready are sent once the greeting is consumed. On a closed engine the
// future is rejected immediately.
func (e *Engine) Submit(cmd *codec.Command) *Future {
	line := cmd.Encode()
	f := newFuture(line)

	e.mu.Lock()
	if e.state == StateClosed {
		e.resolved++
		f.resolve(nil, sqerr.ErrConnectionClosed, e.resolved)
		e.mu.Unlock()
		return f
	}

	e.queue = append(e.queue, &entry{line: line, future: f, submitted: time.Now()})
	pendingTotal.Add(1)
	e.sendHeadLocked()
	e.unlockAndSend()
	return f
}

// Execute submits cmd and waits for its result.
func (e *Engine) Execute(ctx context.Context, cmd *codec.Command) ([]codec.Record, error) {
	return e.Submit(cmd).Wait(ctx)
}

// Events returns the event channel. It is closed after the CloseEvent.
func (e *Engine) Events() <-chan Event {
	return e.events.Recv()
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pending returns the number of queued commands (including the one in flight).
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Closed is closed once the engine reached StateClosed.
func (e *Engine) Closed() <-chan struct{} {
	return e.closed
}

// Err returns the fault that closed the engine, nil for a local close or while open.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeErr
}

// Close shuts the transport down. Every pending command is rejected with
// ErrConnectionClosed. Close is idempotent.
func (e *Engine) Close() error {
	err := e.transport.Close()
	e.handleClose(nil)
	return err
}

// --------------------------------------------------------------------------
// Line Handling (called from the transport's reader goroutine)
// --------------------------------------------------------------------------

func (e *Engine) handleLine(line string) {
	e.mu.Lock()

	switch e.state {
	case StateClosed:
		e.mu.Unlock()
		return
	case StateNew, StateConnecting, StateBanner:
		err := e.handleBannerLocked(line)
		e.unlockAndSend()
		if err != nil {
			e.failConnect(err)
		}
		return
	}
	defer e.unlockAndSend()

	head := e.headLocked()
	switch {
	case codec.IsErrorLine(line):
		e.handleTerminatorLocked(line)

	case head != nil && head.sent && !codec.IsNotifyLine(line):
		head.records = append(head.records, codec.DecodeLine(line)...)

	case codec.IsNotifyLine(line):
		e.handleNotifyLocked(line)

	default:
		unexpected.Inc()
		Logger.Warningf("Unexpected line: %s", line)
		e.events.Push(&ErrorEvent{Err: fmt.Errorf("%w: %q", sqerr.ErrUnexpectedLine, line)})
	}
}

// handleBannerLocked consumes the greeting. The first line must start with the
// banner prefix, the second line completes the greeting.
func (e *Engine) handleBannerLocked(line string) error {
	e.state = StateBanner
	e.bannerLines++

	if e.bannerLines == 1 {
		if !strings.HasPrefix(line, BannerPrefix) {
			return fmt.Errorf("%w: %q", sqerr.ErrInvalidBanner, line)
		}
		return nil
	}

	e.state = StateReady
	e.readyOne.Do(func() { close(e.ready) })
	e.armKeepAliveLocked()
	e.sendHeadLocked()
	return nil
}

// handleTerminatorLocked resolves, rejects or retries the head of the queue
func (e *Engine) handleTerminatorLocked(line string) {
	pe, err := codec.DecodeErrorLine(line)
	if err != nil {
		Logger.Warningf("Malformed terminator: %v", err)
		e.events.Push(&ErrorEvent{Err: err})
		return
	}

	head := e.headLocked()
	if head == nil || !head.sent {
		unexpected.Inc()
		Logger.Warningf("Terminator without pending command: %s", line)
		e.events.Push(&ErrorEvent{Err: fmt.Errorf("%w: terminator without pending command: %q", sqerr.ErrUnexpectedLine, line)})
		return
	}

	switch {
	case pe.IsOK():
		e.popLocked(head.records, nil)

	case pe.ID == sqerr.IDFloodControl:
		delay := e.floodDelay(pe)
		head.sent = false
		head.records = nil
		head.retries++
		e.floodWaiting = true
		floodRetries.Inc()
		Logger.Warningf("Flood control hit by %q (attempt %d), resending in %s", head.line, head.retries, delay)
		e.floodTimer = time.AfterFunc(delay, e.retryHead)

	default:
		observeProtocolError(pe.ID)
		Logger.Debugf("Command %q failed: %v", head.line, pe)
		e.popLocked(nil, pe)
	}
}

// handleNotifyLocked validates a notification and emits it
func (e *Engine) handleNotifyLocked(line string) {
	name, records := codec.DecodeNotifyLine(line)
	if err := validateNotification(name, records); err != nil {
		Logger.Warningf("Dropping notification: %v", err)
		e.events.Push(&ErrorEvent{Err: err})
		return
	}
	observeEvent(name)
	e.events.Push(&NotifyEvent{Name: name, Records: records})
}

// handleClose moves the engine to StateClosed and rejects every pending command
func (e *Engine) handleClose(err error) {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}

	e.state = StateClosed
	e.closeErr = err
	pending := e.queue
	e.queue = nil
	pendingTotal.Add(-int64(len(pending)))
	if e.floodTimer != nil {
		e.floodTimer.Stop()
	}
	if e.keepAlive != nil {
		e.keepAlive.Stop()
	}

	reason := sqerr.ErrConnectionClosed
	if err != nil {
		reason = fmt.Errorf("%w: %v", sqerr.ErrConnectionClosed, err)
		Logger.Errorf("Connection via %s lost: %v", e.transport.GetName(), err)
	} else {
		Logger.Infof("Connection via %s closed", e.transport.GetName())
	}
	for _, p := range pending {
		e.resolved++
		p.future.resolve(nil, reason, e.resolved)
	}
	e.mu.Unlock()

	e.events.Push(&CloseEvent{Err: err})
	e.events.Close()
	close(e.closed)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// failConnect records why connecting failed and closes the transport
func (e *Engine) failConnect(err error) {
	e.mu.Lock()
	if e.connectErr == nil && e.state != StateClosed {
		e.connectErr = err
	}
	e.mu.Unlock()
	Logger.Errorf("Connect failed: %v", err)
	_ = e.Close()
}

func (e *Engine) headLocked() *entry {
	if len(e.queue) == 0 {
		return nil
	}
	return e.queue[0]
}

// popLocked removes the head, settles its future and sends the next command
func (e *Engine) popLocked(records []codec.Record, err error) {
	head := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	pendingTotal.Add(-1)

	if records == nil && err == nil {
		records = []codec.Record{}
	}
	observeDuration(head.submitted)
	e.resolved++
	head.future.resolve(records, err, e.resolved)

	e.sendHeadLocked()
}

// sendHeadLocked marks the head of the queue as sent if the engine may send
// and leaves its line for unlockAndSend. Only one command is in flight, so at
// most one line is claimed at a time.
func (e *Engine) sendHeadLocked() {
	if e.state != StateReady || e.floodWaiting {
		return
	}
	head := e.headLocked()
	if head == nil || head.sent {
		return
	}

	head.sent = true
	e.outgoing = head.line
	e.armKeepAliveLocked()
}

// unlockAndSend releases e.mu and writes the line claimed while holding it.
// The write blocks up to the transport's deadline, so it never happens under
// the lock.
func (e *Engine) unlockAndSend() {
	line := e.outgoing
	e.outgoing = ""
	e.mu.Unlock()
	if line == "" {
		return
	}

	Logger.Debugf("-> %s", line)
	if err := e.transport.Send(line); err != nil {
		// the transport closes itself and the close handler rejects the queue
		Logger.Errorf("Failed to send %q: %v", line, err)
		return
	}
	commandsSent.Inc()
}

// retryHead resends the head after a flood control delay
func (e *Engine) retryHead() {
	e.mu.Lock()
	e.floodWaiting = false
	e.floodTimer = nil
	e.sendHeadLocked()
	e.unlockAndSend()
}

var delayPattern = regexp.MustCompile(`\d+`)

// floodDelay derives the retry delay from the terminator: the first integer
// of extra_msg (or msg) in seconds, at least one unit
func (e *Engine) floodDelay(pe *sqerr.ProtocolError) time.Duration {
	seconds := 1
	for _, text := range []string{pe.ExtraMessage, pe.Message} {
		if m := delayPattern.FindString(text); m != "" {
			if n, err := strconv.Atoi(m); err == nil && n > 0 {
				seconds = n
			}
			break
		}
	}
	return time.Duration(seconds) * e.opts.FloodUnit
}

// armKeepAliveLocked (re)starts the idle timer
func (e *Engine) armKeepAliveLocked() {
	if e.opts.KeepAlive <= 0 || e.state != StateReady {
		return
	}
	if e.keepAlive == nil {
		e.keepAlive = time.AfterFunc(e.opts.KeepAlive, e.onKeepAlive)
		return
	}
	e.keepAlive.Reset(e.opts.KeepAlive)
}

// onKeepAlive sends a keepalive if the engine is ready and idle
func (e *Engine) onKeepAlive() {
	e.mu.Lock()
	if e.state != StateReady {
		e.mu.Unlock()
		return
	}
	idle := len(e.queue) == 0
	e.keepAlive.Reset(e.opts.KeepAlive)
	e.mu.Unlock()

	if !idle {
		return
	}
	if err := e.transport.SendKeepAlive(); err != nil {
		Logger.Warningf("Keepalive failed: %v", err)
		return
	}
	keepAlives.Inc()
	Logger.Debugf("Keepalive sent")
}

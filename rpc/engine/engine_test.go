package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/sqc/lib/codec"
	"github.com/ValentinKolb/sqc/lib/sqerr"
	"github.com/ValentinKolb/sqc/rpc/common"
	"github.com/ValentinKolb/sqc/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Fake Transport
// --------------------------------------------------------------------------

// fakeTransport records sent lines and lets tests play the server
type fakeTransport struct {
	handler      transport.LineHandleFunc
	closeHandler transport.CloseHandleFunc
	greeting     []string
	connectErr   error

	mu         sync.Mutex
	sent       []string
	keepAlives int
	closed     bool
	closeOnce  sync.Once
	sentCh     chan string
	block      chan struct{} // when set, Send waits for it after recording the line
}

func newFakeTransport(greeting ...string) *fakeTransport {
	if greeting == nil {
		greeting = []string{"TS3", "Welcome to the TeamSpeak 3 ServerQuery interface"}
	}
	return &fakeTransport{greeting: greeting, sentCh: make(chan string, 100)}
}

func (f *fakeTransport) RegisterHandler(h transport.LineHandleFunc)      { f.handler = h }
func (f *fakeTransport) RegisterCloseHandler(h transport.CloseHandleFunc) { f.closeHandler = h }
func (f *fakeTransport) GetName() string                                  { return "fake" }

func (f *fakeTransport) Connect(context.Context, common.ClientConfig) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.feed(f.greeting...)
	return nil
}

func (f *fakeTransport) Send(line string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return sqerr.ErrConnectionClosed
	}
	f.sent = append(f.sent, line)
	block := f.block
	f.mu.Unlock()

	f.sentCh <- line
	if block != nil {
		<-block
	}
	return nil
}

func (f *fakeTransport) SendKeepAlive() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return sqerr.ErrConnectionClosed
	}
	f.keepAlives++
	return nil
}

func (f *fakeTransport) Close() error {
	f.drop(nil)
	return nil
}

// feed delivers lines as if they were received from the server
func (f *fakeTransport) feed(lines ...string) {
	for _, line := range lines {
		f.handler(line)
	}
}

// drop ends the channel with err
func (f *fakeTransport) drop(err error) {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		f.closeHandler(err)
	})
}

// stall makes every following Send hang until the returned func is called
func (f *fakeTransport) stall() (release func()) {
	block := make(chan struct{})
	f.mu.Lock()
	f.block = block
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.block = nil
			f.mu.Unlock()
			close(block)
		})
	}
}

func (f *fakeTransport) sentLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeTransport) keepAliveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keepAlives
}

// nextSent waits for the next line the engine sends
func (f *fakeTransport) nextSent(t *testing.T) string {
	t.Helper()
	select {
	case line := <-f.sentCh:
		return line
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for a sent line")
		return ""
	}
}

func (f *fakeTransport) assertNothingSent(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case line := <-f.sentCh:
		t.Fatalf("unexpected line sent: %q", line)
	case <-time.After(wait):
	}
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func testConfig() common.ClientConfig {
	config := common.DefaultClientConfig()
	config.TimeoutSecond = 1
	return config
}

func testOptions() Options {
	return Options{FloodUnit: 20 * time.Millisecond}
}

func connected(t *testing.T, opts Options) (*Engine, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	e := New(ft, opts)
	require.NoError(t, e.Connect(context.Background(), testConfig()))
	t.Cleanup(func() { e.Close() })
	return e, ft
}

func nextEvent(t *testing.T, e *Engine) Event {
	t.Helper()
	select {
	case ev, ok := <-e.Events():
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for an event")
		return nil
	}
}

func waitFuture(t *testing.T, f *Future) ([]codec.Record, error) {
	t.Helper()
	select {
	case <-f.Done():
		return f.Result()
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %q", f.Line())
		return nil, nil
	}
}

// --------------------------------------------------------------------------
// Connect
// --------------------------------------------------------------------------

func TestConnectConsumesGreeting(t *testing.T) {
	e, ft := connected(t, testOptions())

	assert.Equal(t, StateReady, e.State())
	assert.Empty(t, ft.sentLines())
	assert.ErrorIs(t, e.Connect(context.Background(), testConfig()), sqerr.ErrAlreadyConnected)
}

func TestConnectInvalidBanner(t *testing.T) {
	ft := newFakeTransport("SSH-2.0-OpenSSH", "something else")
	e := New(ft, testOptions())

	err := e.Connect(context.Background(), testConfig())
	assert.ErrorIs(t, err, sqerr.ErrInvalidBanner)
	assert.Equal(t, StateClosed, e.State())
}

func TestConnectTimeoutWithoutFullGreeting(t *testing.T) {
	ft := newFakeTransport("TS3")
	e := New(ft, testOptions())

	f := e.Submit(codec.NewCommand("whoami"))
	err := e.Connect(context.Background(), testConfig())
	assert.ErrorIs(t, err, sqerr.ErrConnectTimeout)
	assert.Equal(t, StateClosed, e.State())

	_, ferr := waitFuture(t, f)
	assert.ErrorIs(t, ferr, sqerr.ErrConnectionClosed)
}

func TestConnectTransportFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.connectErr = sqerr.NewConnectionError("connect", errors.New("connection refused"))
	e := New(ft, testOptions())

	err := e.Connect(context.Background(), testConfig())
	assert.True(t, sqerr.IsConnectionClosed(err))
	assert.Equal(t, StateClosed, e.State())
}

func TestSubmitBeforeReadyIsFlushed(t *testing.T) {
	ft := newFakeTransport()
	e := New(ft, testOptions())
	defer e.Close()

	f := e.Submit(codec.NewCommand("version"))
	ft.assertNothingSent(t, 10*time.Millisecond)

	require.NoError(t, e.Connect(context.Background(), testConfig()))
	assert.Equal(t, "version", ft.nextSent(t))

	ft.feed("version=3.13.7 build=1655727713 platform=Linux", "error id=0 msg=ok")
	records, err := waitFuture(t, f)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "3.13.7", records[0].Str("version"))
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

func TestEmptySuccessResolvesWithEmptyList(t *testing.T) {
	e, ft := connected(t, testOptions())

	f := e.Submit(codec.NewCommand("whoami"))
	assert.Equal(t, "whoami", ft.nextSent(t))

	ft.feed("error id=0 msg=ok")
	records, err := waitFuture(t, f)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Equal(t, 0, e.Pending())
}

func TestDataLinesAccumulate(t *testing.T) {
	e, ft := connected(t, testOptions())

	f := e.Submit(codec.NewCommand("clientlist"))
	ft.nextSent(t)

	ft.feed(
		`clid=1 cid=1 client_nickname=serveradmin\sfrom\s127.0.0.1 client_type=1|clid=2 cid=1 client_nickname=Alice client_type=0`,
		`clid=3 cid=2 client_nickname=Bob client_type=0`,
		"error id=0 msg=ok",
	)

	records, err := waitFuture(t, f)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "serveradmin from 127.0.0.1", records[0].Str("client_nickname"))
	clid, _ := records[2].Int("clid")
	assert.Equal(t, int64(3), clid)
}

func TestOnlyOneCommandInFlight(t *testing.T) {
	e, ft := connected(t, testOptions())

	a := e.Submit(codec.NewCommand("a"))
	b := e.Submit(codec.NewCommand("b"))
	assert.Equal(t, "a", ft.nextSent(t))
	ft.assertNothingSent(t, 20*time.Millisecond)
	assert.Equal(t, 2, e.Pending())

	ft.feed("error id=0 msg=ok")
	assert.Equal(t, "b", ft.nextSent(t))
	ft.feed("error id=0 msg=ok")

	_, err := waitFuture(t, a)
	assert.NoError(t, err)
	_, err = waitFuture(t, b)
	assert.NoError(t, err)
}

func TestProtocolErrorRejectsOnlyItsCommand(t *testing.T) {
	e, ft := connected(t, testOptions())

	a := e.Submit(codec.NewCommand("serveredit").Set("virtualserver_name", "x"))
	b := e.Submit(codec.NewCommand("whoami"))

	ft.nextSent(t)
	ft.feed(`error id=2568 msg=insufficient\sclient\spermissions failed_permid=4353`)
	ft.nextSent(t)
	ft.feed("virtualserver_id=1", "error id=0 msg=ok")

	_, err := waitFuture(t, a)
	pe, ok := sqerr.AsProtocolError(err)
	require.True(t, ok, "expected a ProtocolError, got %v", err)
	assert.Equal(t, sqerr.IDInsufficientPermissions, pe.ID)
	assert.Equal(t, "insufficient client permissions", pe.Message)
	require.NotNil(t, pe.FailedPermID)
	assert.Equal(t, int64(4353), *pe.FailedPermID)

	records, err := waitFuture(t, b)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestResultsResolveInSubmissionOrder(t *testing.T) {
	e, ft := connected(t, testOptions())

	const n = 10
	futures := make([]*Future, n)
	for i := 0; i < n; i++ {
		futures[i] = e.Submit(codec.NewCommand("echo").Set("i", i))
	}

	go func() {
		for i := 0; i < n; i++ {
			<-ft.sentCh
			ft.feed(
				"notifytextmessage targetmode=3 msg=interleaved invokerid=5",
				fmt.Sprintf("i=%d", i),
				"notifyclientmoved ctid=2 reasonid=0 clid=7",
				"error id=0 msg=ok",
			)
		}
	}()

	var lastSeq uint64
	for i, f := range futures {
		records, err := waitFuture(t, f)
		require.NoError(t, err)
		require.Len(t, records, 1, "notifications must not be accumulated as data")
		got, _ := records[0].Int("i")
		assert.Equal(t, int64(i), got)
		assert.Greater(t, f.seq, lastSeq)
		lastSeq = f.seq
	}

	for i := 0; i < 2*n; i++ {
		_, ok := nextEvent(t, e).(*NotifyEvent)
		assert.True(t, ok)
	}
}

func TestConcurrentExecuteMatchesResults(t *testing.T) {
	e, ft := connected(t, testOptions())

	const n = 20
	go func() {
		for i := 0; i < n; i++ {
			line := <-ft.sentCh
			// answer with the option the command carried
			ft.feed(line[len("echo "):], "error id=0 msg=ok")
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			records, err := e.Execute(ctx, codec.NewCommand("echo").Set("i", i))
			if assert.NoError(t, err) && assert.Len(t, records, 1) {
				got, _ := records[0].Int("i")
				assert.Equal(t, int64(i), got)
			}
		}(i)
	}
	wg.Wait()
}

func TestContextCancelAbandonsOnlyTheWait(t *testing.T) {
	e, ft := connected(t, testOptions())

	f := e.Submit(codec.NewCommand("whoami"))
	ft.nextSent(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, e.Pending())

	ft.feed("error id=0 msg=ok")
	_, err = waitFuture(t, f)
	assert.NoError(t, err)
}

// --------------------------------------------------------------------------
// Flood Control
// --------------------------------------------------------------------------

func TestFloodControlResendsOnce(t *testing.T) {
	e, ft := connected(t, testOptions())

	f := e.Submit(codec.NewCommand("clientlist").Flag("uid"))
	first := ft.nextSent(t)
	start := time.Now()

	ft.feed(`error id=524 msg=client\sis\sflooding extra_msg=please\swait\s1\sseconds`)

	// queued behind the retry, must not overtake it
	g := e.Submit(codec.NewCommand("whoami"))

	select {
	case <-f.Done():
		t.Fatalf("flood control must be invisible to the caller")
	case <-time.After(5 * time.Millisecond):
	}

	second := ft.nextSent(t)
	assert.Equal(t, first, second, "the failed line must be resent unchanged")
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ft.feed("clid=1", "error id=0 msg=ok")
	records, err := waitFuture(t, f)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	assert.Equal(t, "whoami", ft.nextSent(t))
	ft.feed("error id=0 msg=ok")
	_, err = waitFuture(t, g)
	require.NoError(t, err)

	assert.Equal(t, []string{"clientlist -uid", "clientlist -uid", "whoami"}, ft.sentLines())
}

func TestFloodDelay(t *testing.T) {
	e := New(newFakeTransport(), Options{FloodUnit: time.Second})

	tests := []struct {
		name     string
		pe       *sqerr.ProtocolError
		expected time.Duration
	}{
		{"extra message", &sqerr.ProtocolError{ID: 524, Message: "client is flooding", ExtraMessage: "please wait 3 seconds"}, 3 * time.Second},
		{"message only", &sqerr.ProtocolError{ID: 524, Message: "wait 2 seconds"}, 2 * time.Second},
		{"no number", &sqerr.ProtocolError{ID: 524, Message: "client is flooding"}, time.Second},
		{"zero", &sqerr.ProtocolError{ID: 524, Message: "client is flooding", ExtraMessage: "please wait 0 seconds"}, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, e.floodDelay(tt.pe))
		})
	}
}

// --------------------------------------------------------------------------
// Close
// --------------------------------------------------------------------------

func TestCloseRejectsAllPending(t *testing.T) {
	e, ft := connected(t, testOptions())

	a := e.Submit(codec.NewCommand("a"))
	b := e.Submit(codec.NewCommand("b"))
	ft.nextSent(t)

	require.NoError(t, e.Close())

	_, errA := waitFuture(t, a)
	_, errB := waitFuture(t, b)
	assert.ErrorIs(t, errA, sqerr.ErrConnectionClosed)
	assert.ErrorIs(t, errB, sqerr.ErrConnectionClosed)
	assert.Equal(t, 0, e.Pending())
	assert.Equal(t, StateClosed, e.State())
	assert.NoError(t, e.Err())

	_, err := waitFuture(t, e.Submit(codec.NewCommand("c")))
	assert.ErrorIs(t, err, sqerr.ErrConnectionClosed)

	ev := nextEvent(t, e)
	closeEv, ok := ev.(*CloseEvent)
	require.True(t, ok, "expected a close event, got %T", ev)
	assert.NoError(t, closeEv.Err)

	_, open := <-e.Events()
	assert.False(t, open, "event channel must be closed after the close event")
}

func TestRemoteDropRejectsWithCause(t *testing.T) {
	e, ft := connected(t, testOptions())

	f := e.Submit(codec.NewCommand("whoami"))
	ft.nextSent(t)

	cause := sqerr.NewConnectionError("connection lost", errors.New("EOF"))
	ft.drop(cause)

	_, err := waitFuture(t, f)
	assert.ErrorIs(t, err, sqerr.ErrConnectionClosed)
	assert.Equal(t, cause, e.Err())

	ev := nextEvent(t, e)
	closeEv, ok := ev.(*CloseEvent)
	require.True(t, ok)
	assert.Equal(t, cause, closeEv.Err)
}

func TestStalledWriteDoesNotBlockTheQueue(t *testing.T) {
	e, ft := connected(t, testOptions())
	release := ft.stall()
	t.Cleanup(release)

	first := make(chan *Future, 1)
	go func() { first <- e.Submit(codec.NewCommand("whoami")) }()
	assert.Equal(t, "whoami", ft.nextSent(t))

	// the write of whoami hangs, submitting and reading still make progress
	submitted := make(chan *Future, 1)
	go func() { submitted <- e.Submit(codec.NewCommand("version")) }()
	var second *Future
	select {
	case second = <-submitted:
	case <-time.After(time.Second):
		t.Fatalf("Submit blocked behind a stalled write")
	}
	assert.Equal(t, 2, e.Pending())

	received := make(chan struct{})
	go func() {
		ft.feed("notifytextmessage targetmode=3 msg=hi")
		close(received)
	}()
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatalf("line handling blocked behind a stalled write")
	}
	ev, ok := nextEvent(t, e).(*NotifyEvent)
	require.True(t, ok)
	assert.Equal(t, NotifyTextMessage, ev.Name)

	release()
	f := <-first
	ft.feed("virtualserver_status=unknown", "error id=0 msg=ok")
	records, err := waitFuture(t, f)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	assert.Equal(t, "version", ft.nextSent(t))
	ft.feed("error id=0 msg=ok")
	_, err = waitFuture(t, second)
	require.NoError(t, err)
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

func TestNotificationEvents(t *testing.T) {
	e, ft := connected(t, testOptions())

	ft.feed(`notifytextmessage targetmode=3 msg=hello\sworld invokerid=5 invokername=Alice`)
	ft.feed("notifycustomthing foo=bar")

	ev := nextEvent(t, e).(*NotifyEvent)
	assert.Equal(t, NotifyTextMessage, ev.Name)
	assert.Equal(t, "hello world", ev.First().Str("msg"))

	ev = nextEvent(t, e).(*NotifyEvent)
	assert.Equal(t, "customthing", ev.Name)
	assert.Equal(t, "bar", ev.First().Str("foo"))
}

func TestMalformedNotification(t *testing.T) {
	e, ft := connected(t, testOptions())

	ft.feed("notifyclientmoved ctid=5 reasonid=0")

	ev, ok := nextEvent(t, e).(*ErrorEvent)
	require.True(t, ok)
	var me *sqerr.MalformedEventError
	require.ErrorAs(t, ev.Err, &me)
	assert.Equal(t, "notifyclientmoved", me.Event)
	assert.Equal(t, []string{"clid"}, me.Missing)
}

func TestGroupedNotificationSharesFirstRecordFields(t *testing.T) {
	e, ft := connected(t, testOptions())

	ft.feed("notifyclientmoved ctid=5 reasonid=1 clid=3|clid=4")
	ev, ok := nextEvent(t, e).(*NotifyEvent)
	require.True(t, ok)
	require.Len(t, ev.Records, 2)
	assert.Equal(t, "3", ev.Records[0].Str("clid"))
	assert.Equal(t, "4", ev.Records[1].Str("clid"))

	// the identity key is still required on every record
	ft.feed("notifyclientmoved ctid=5 reasonid=1 clid=3|reasonid=1")
	errEv, ok := nextEvent(t, e).(*ErrorEvent)
	require.True(t, ok)
	var me *sqerr.MalformedEventError
	require.ErrorAs(t, errEv.Err, &me)
	assert.Equal(t, []string{"clid"}, me.Missing)
}

func TestUnknownNotificationsShareOneMetric(t *testing.T) {
	e, ft := connected(t, testOptions())
	assert.True(t, IsKnownNotification(NotifyClientMoved))
	assert.False(t, IsKnownNotification("customthing"))

	other := metrics.GetOrCreateCounter(`sqc_events_total{name="other"}`)
	before := other.Get()
	ft.feed("notifycustomthing foo=bar", "notifyanotherthing foo=baz")
	nextEvent(t, e)
	nextEvent(t, e)
	assert.Equal(t, before+2, other.Get())
}

func TestMalformedNotificationDoesNotTouchPendingCommand(t *testing.T) {
	e, ft := connected(t, testOptions())

	f := e.Submit(codec.NewCommand("whoami"))
	ft.nextSent(t)
	ft.feed("notifychanneledited reasonid=10", "client_id=1", "error id=0 msg=ok")

	records, err := waitFuture(t, f)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, ok := nextEvent(t, e).(*ErrorEvent)
	assert.True(t, ok)
}

func TestUnexpectedLines(t *testing.T) {
	e, ft := connected(t, testOptions())

	ft.feed("clid=1 cid=2")
	ev, ok := nextEvent(t, e).(*ErrorEvent)
	require.True(t, ok)
	assert.ErrorIs(t, ev.Err, sqerr.ErrUnexpectedLine)

	ft.feed("error id=0 msg=ok")
	ev, ok = nextEvent(t, e).(*ErrorEvent)
	require.True(t, ok)
	assert.ErrorIs(t, ev.Err, sqerr.ErrUnexpectedLine)
}

// --------------------------------------------------------------------------
// Keepalive
// --------------------------------------------------------------------------

func TestKeepAliveOnlyWhileIdle(t *testing.T) {
	e, ft := connected(t, Options{KeepAlive: 20 * time.Millisecond, FloodUnit: 20 * time.Millisecond})

	assert.Eventually(t, func() bool { return ft.keepAliveCount() >= 1 }, 2*time.Second, 5*time.Millisecond)

	f := e.Submit(codec.NewCommand("whoami"))
	ft.nextSent(t)
	before := ft.keepAliveCount()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, before, ft.keepAliveCount(), "no keepalive while a command is pending")

	ft.feed("error id=0 msg=ok")
	_, err := waitFuture(t, f)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return ft.keepAliveCount() > before }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, e.Close())
	after := ft.keepAliveCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, ft.keepAliveCount(), "no keepalive after close")
}

package vpn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/yllada/trusttunnel-desktop/common"
	"github.com/yllada/trusttunnel-desktop/engine"
	"github.com/yllada/trusttunnel-desktop/privilege"
)

// Monitor watches OS network changes for the lifetime of one engine handle.
type Monitor interface {
	Start() bool
	Stop()
}

// MonitorFactory creates the network monitor for a freshly created client.
type MonitorFactory func(client engine.Client) Monitor

// Options configures a Controller.
type Options struct {
	// Factory creates engine clients. Required.
	Factory engine.Factory
	// Monitor creates network monitors. Nil disables network monitoring.
	Monitor MonitorFactory
	// Privileged reports whether the process may connect.
	// Defaults to privilege.IsElevated.
	Privileged privilege.Checker
	// Scheduler arms retry timers. Defaults to runtime timers.
	Scheduler Scheduler
	// Logger defaults to the application logger.
	Logger common.Logger
	// ConnectTimeout bounds a single engine Connect call.
	ConnectTimeout time.Duration
	// InitialDelay and MaxDelay bound the reconnect backoff.
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Controller owns the lifecycle of a single logical VPN connection.
//
// Every field below the queue is owned by the control goroutine.
type Controller struct {
	queue     *taskQueue
	snapshot  atomic.Int32
	nextSubID atomic.Int64
	closeOnce sync.Once

	factory        engine.Factory
	monitorFactory MonitorFactory
	privileged     privilege.Checker
	scheduler      Scheduler
	logger         common.Logger
	connectTimeout time.Duration

	state SessionState
	subs  subscribers

	baseConfig    *engine.Config
	pendingConfig *engine.Config
	logLevel      string
	extraInclude  []string
	extraExclude  []string

	policy        *ReconnectPolicy
	autoReconnect bool
	stopRequested bool
	dnsFailures   int
	timer         Timer
	timerGen      uint64

	client    engine.Client
	monitor   Monitor
	sessionID string
}

// NewController creates a controller in StateDisconnected and starts its
// control goroutine. Auto-reconnect is enabled.
func NewController(opts Options) (*Controller, error) {
	if opts.Factory == nil {
		return nil, errors.New("vpn: engine factory is required")
	}

	c := &Controller{
		queue:          newTaskQueue(),
		factory:        opts.Factory,
		monitorFactory: opts.Monitor,
		privileged:     opts.Privileged,
		scheduler:      opts.Scheduler,
		logger:         opts.Logger,
		connectTimeout: opts.ConnectTimeout,
		autoReconnect:  true,
	}
	if c.monitorFactory == nil {
		c.monitorFactory = func(engine.Client) Monitor { return nopMonitor{} }
	}
	if c.privileged == nil {
		c.privileged = privilege.IsElevated
	}
	if c.scheduler == nil {
		c.scheduler = realScheduler{}
	}
	if c.logger == nil {
		c.logger = common.GetLogger().Named("vpn")
	}
	if c.connectTimeout <= 0 {
		c.connectTimeout = common.ConnectionTimeout
	}

	initial, ceiling := opts.InitialDelay, opts.MaxDelay
	if initial == 0 {
		initial = common.DefaultReconnectDelay
	}
	if ceiling == 0 {
		ceiling = common.DefaultMaxReconnectDelay
	}
	c.policy = NewReconnectPolicy(initial, ceiling)

	go c.queue.run()
	return c, nil
}

// Connect starts a connection attempt unless one is already active.
func (c *Controller) Connect() {
	c.post(c.connect)
}

// Disconnect tears the session down and cancels any pending retry.
// It is idempotent.
func (c *Controller) Disconnect() {
	c.post(c.disconnect)
}

// SetConfig hands cfg to the controller for the next attempt. cfg is copied;
// the caller keeps ownership of its value. An invalid cfg is reported both
// as the returned error and as an error event.
func (c *Controller) SetConfig(cfg *engine.Config) error {
	if err := cfg.Validate(); err != nil {
		c.post(func() { c.rejectConfig(err) })
		return err
	}
	own := cfg.Clone()
	c.post(func() { c.acceptConfig(own) })
	return nil
}

// LoadConfigFromFile parses the engine config at path and hands it to the
// controller. It blocks until the control goroutine has applied it, so it
// must not be called from an event handler.
func (c *Controller) LoadConfigFromFile(path string) bool {
	cfg, err := engine.LoadFile(path)

	result := make(chan bool, 1)
	posted := c.post(func() {
		if err != nil {
			c.rejectConfig(err)
			result <- false
			return
		}
		c.acceptConfig(cfg)
		if c.state == StateError {
			c.setState(StateDisconnected)
		}
		result <- true
	})
	if !posted {
		return false
	}
	return <-result
}

// SetAutoReconnect enables or disables automatic retries.
func (c *Controller) SetAutoReconnect(enabled bool) {
	c.post(func() { c.autoReconnect = enabled })
}

// SetReconnectBounds replaces the backoff floor and ceiling.
func (c *Controller) SetReconnectBounds(initial, ceiling time.Duration) {
	c.post(func() { c.policy.SetBounds(initial, ceiling) })
}

// SetLogLevel overrides the loglevel of every config handed to the engine.
// An empty level keeps the config's own value.
func (c *Controller) SetLogLevel(level string) {
	c.post(func() {
		c.logLevel = level
		c.derivePending()
	})
}

// SetRoutingRules sets the routes appended to tun listeners. They replace
// previously set rules and apply to the current and all later configs.
func (c *Controller) SetRoutingRules(include, exclude []string) {
	include = common.CloneStrings(include)
	exclude = common.CloneStrings(exclude)
	c.post(func() {
		c.extraInclude = include
		c.extraExclude = exclude
		c.derivePending()
	})
}

// State returns the current session state.
func (c *Controller) State() SessionState {
	return SessionState(c.snapshot.Load())
}

// IsConnected reports whether the session is established.
func (c *Controller) IsConnected() bool {
	return c.State() == StateConnected
}

// Subscribe registers fn for every subsequent event and returns a function
// that removes it. fn runs on the control goroutine and must not block.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	id := c.nextSubID.Add(1)
	c.post(func() { c.subs.add(id, fn) })
	return func() {
		c.post(func() { c.subs.remove(id) })
	}
}

// Close disconnects and stops the control goroutine. It waits for queued
// work to finish, so it must not be called from an event handler.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.post(c.disconnect)
		c.queue.close()
	})
	<-c.queue.done
}

func (c *Controller) post(fn func()) bool {
	return c.queue.post(fn)
}

// Control goroutine only below this point.

func (c *Controller) connect() {
	if c.state.Active() {
		c.logger.Debug("Connect ignored in state %s", c.state)
		return
	}
	c.stopRequested = false
	c.cancelTimer()
	c.dnsFailures = 0
	c.attempt(StateConnecting)
}

// attempt runs one connection attempt against the current handle, creating
// it from the pending config when absent. The controller enters state while
// the attempt is in progress.
func (c *Controller) attempt(state SessionState) {
	if c.stopRequested {
		return
	}
	c.setState(state)

	if !c.privileged() {
		c.fail(&Failure{Kind: FailurePrivilegeRequired, Fatal: true, Err: errors.New(privilege.Hint())})
		return
	}

	if c.client == nil {
		if c.pendingConfig == nil {
			c.fail(&Failure{Kind: FailureConfigMissing, Fatal: true})
			return
		}
		if !c.createHandle() {
			return
		}
	}

	if err := c.callEngine(c.client.SetSystemDNS); err != nil {
		c.dnsFailures++
		f := &Failure{Kind: FailureDNSSetup, Err: fmt.Errorf("set_system_dns() failed: %w", err)}
		if isPermissionFailure(err) || c.dnsFailures >= dnsFailureThreshold {
			f.Fatal = true
			c.fail(f)
			return
		}
		c.scheduleReconnect(f)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.connectTimeout)
	err := c.callEngine(func() error { return c.client.Connect(ctx, engine.AutoSetup) })
	cancel()
	if err != nil {
		if isListenerBindFailure(err) {
			c.fail(&Failure{Kind: FailureListenerBind, Fatal: true, Err: err})
			return
		}
		c.scheduleReconnect(&Failure{Kind: FailureConnect, Err: err})
		return
	}

	c.policy.Reset()
	c.dnsFailures = 0
	c.setState(StateConnected)
}

// createHandle consumes the pending config, creates the engine client and
// starts its monitor. It reports false after reporting a failure.
func (c *Controller) createHandle() bool {
	cfg := c.pendingConfig
	c.pendingConfig = nil
	c.baseConfig = nil

	session := uuid.NewString()
	client, err := c.factory(cfg, c.callbacks(session))
	if err != nil {
		c.fail(&Failure{Kind: FailureEngineStart, Fatal: true, Err: fmt.Errorf("failed to create engine: %w", err)})
		return false
	}
	c.client = client
	c.sessionID = session
	c.logger.Info("Created engine session %s (%s listener)", session, cfg.Listener.Kind())

	monitor := c.monitorFactory(client)
	if !monitor.Start() {
		c.callEngine(func() error { client.Disconnect(); return nil })
		c.client = nil
		c.fail(&Failure{Kind: FailureEngineStart, Fatal: true, Err: errors.New("failed to start network monitor")})
		c.sessionID = ""
		return false
	}
	c.monitor = monitor
	return true
}

// scheduleReconnect handles a transient failure.
func (c *Controller) scheduleReconnect(f *Failure) {
	if c.stopRequested || !c.autoReconnect {
		f.Fatal = true
		c.fail(f)
		return
	}

	c.setState(StateReconnecting)
	delay := c.policy.Next()
	c.logger.Warn("%s, retrying in %s", f, delay)
	c.emit(Event{Kind: EventError, Message: f.Error(), Err: f, RetryIn: delay})
	c.armTimer(delay)
}

// fail reports f. Fatal failures stop automatic retries until Connect.
func (c *Controller) fail(f *Failure) {
	if f.Fatal {
		c.logger.Error("%s: %s", f.Kind, f)
		c.stopRequested = true
		c.cancelTimer()
		c.setState(StateError)
	} else {
		c.logger.Warn("%s: %s", f.Kind, f)
	}
	c.emit(Event{Kind: EventError, Message: f.Error(), Err: f})
}

func (c *Controller) disconnect() {
	c.stopRequested = true
	c.cancelTimer()

	if c.state == StateDisconnected && c.client == nil {
		return
	}

	c.setState(StateDisconnecting)
	c.teardown()
	c.setState(StateDisconnected)
	c.emit(Event{Kind: EventDisconnected})
}

// teardown stops the monitor, then releases the engine handle.
func (c *Controller) teardown() {
	if c.monitor != nil {
		c.monitor.Stop()
		c.monitor = nil
	}
	if c.client != nil {
		client := c.client
		if err := c.callEngine(func() error { client.Disconnect(); return nil }); err != nil {
			c.logger.Warn("Engine disconnect failed: %v", err)
		}
		c.client = nil
		c.logger.Info("Released engine session %s", c.sessionID)
	}
	c.sessionID = ""
}

func (c *Controller) acceptConfig(cfg *engine.Config) {
	// A handle left behind by a fatal failure was built from the old config.
	if c.state == StateError && c.client != nil {
		c.teardown()
	}
	c.baseConfig = cfg
	c.derivePending()
	c.logger.Info("Config accepted for %s", cfg.Endpoint.Hostname)
}

func (c *Controller) rejectConfig(err error) {
	f := &Failure{Kind: FailureConfigInvalid, Err: err}
	// A running session keeps its state; the rejected config never reached it.
	if c.state.Active() {
		c.logger.Warn("Config rejected: %v", err)
		c.emit(Event{Kind: EventError, Message: f.Error(), Err: f})
		return
	}
	f.Fatal = true
	c.fail(f)
}

// derivePending rebuilds the config for the next attempt from the accepted
// one, so repeated calls never append the extra routes twice.
func (c *Controller) derivePending() {
	if c.baseConfig == nil {
		return
	}
	cfg := c.baseConfig.Clone()
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	switch l := cfg.Listener.(type) {
	case *engine.TunListener:
		l.IncludedRoutes = append(l.IncludedRoutes, c.extraInclude...)
		l.ExcludedRoutes = append(l.ExcludedRoutes, c.extraExclude...)
	case *engine.SocksListener:
		// Socks listeners have no route lists.
	}
	c.pendingConfig = cfg
}

func (c *Controller) armTimer(delay time.Duration) {
	c.cancelTimer()
	gen := c.timerGen
	c.timer = c.scheduler.AfterFunc(delay, func() {
		c.post(func() { c.onTimer(gen) })
	})
}

func (c *Controller) cancelTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Controller) onTimer(gen uint64) {
	if gen != c.timerGen || c.timer == nil {
		return
	}
	c.timer = nil
	c.attempt(StateReconnecting)
}

func (c *Controller) callbacks(session string) engine.Callbacks {
	return engine.Callbacks{
		OnStateChanged: func(ev engine.StateChangedEvent) {
			c.post(func() { c.onEngineState(session, ev) })
		},
		OnOutput: func(ev engine.OutputEvent) {
			c.post(func() {
				if session == c.sessionID {
					c.emit(Event{Kind: EventOutput, Bytes: ev.Bytes})
				}
			})
		},
		OnConnectionInfo: func(ev engine.ConnectionInfoEvent) {
			c.post(func() {
				if session == c.sessionID {
					c.emit(Event{Kind: EventConnectionInfo, Message: ev.String(), Flow: ev})
				}
			})
		},
		OnSocketProtect: func(ev *engine.SocketProtectEvent) {
			ev.Result = 0
		},
		OnVerifyCertificate: func(ev *engine.VerifyCertificateEvent) {
			ev.Result = 0
		},
	}
}

func (c *Controller) onEngineState(session string, ev engine.StateChangedEvent) {
	if session != c.sessionID {
		c.logger.Debug("Dropping %s from stale session %s", ev.State, session)
		return
	}
	if c.stopRequested {
		c.logger.Debug("Ignoring engine state %s after stop", ev.State)
		return
	}

	switch ev.State {
	case engine.StateConnected:
		c.cancelTimer()
		c.policy.Reset()
		c.dnsFailures = 0
		c.setState(StateConnected)
	case engine.StateConnecting, engine.StateRecovering:
		c.setState(StateReconnecting)
	case engine.StateWaitingForNetwork, engine.StateWaitingRecovery:
		c.scheduleReconnect(&Failure{Kind: FailureEngineState, Err: engineStateError("engine requested recovery", ev)})
	case engine.StateDisconnected:
		c.scheduleReconnect(&Failure{Kind: FailureEngineState, Err: engineStateError("engine disconnected", ev)})
	default:
		c.logger.Warn("Unknown engine state %d", int(ev.State))
	}
}

func engineStateError(reason string, ev engine.StateChangedEvent) error {
	if ev.Err != nil {
		return fmt.Errorf("%s: %w", reason, ev.Err)
	}
	return errors.New(reason)
}

// callEngine runs fn, turning a panic inside the engine into an error.
func (c *Controller) callEngine(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Engine call panicked: %v", r)
			err = fmt.Errorf("engine failure: %v", r)
		}
	}()
	return fn()
}

func (c *Controller) setState(s SessionState) {
	if c.state == s {
		return
	}
	old := c.state
	c.state = s
	c.snapshot.Store(int32(s))
	c.logger.Info("State %s -> %s", old, s)

	c.emit(Event{Kind: EventStateChanged})
	if s == StateConnected {
		c.emit(Event{Kind: EventConnected})
	}
}

func (c *Controller) emit(ev Event) {
	ev.State = c.state
	ev.SessionID = c.sessionID
	c.subs.publish(ev)
}

type nopMonitor struct{}

func (nopMonitor) Start() bool { return true }
func (nopMonitor) Stop()       {}

package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yllada/trusttunnel-desktop/common"
)

const (
	helperPrefix     = "[helper] "
	stopGracePeriod  = 5 * time.Second
	stderrTailLength = 8
)

// ProcessClient runs the tunnel helper binary and translates its line
// protocol into Callbacks:
//
//	[helper] state=<n>                 engine SessionState value
//	[helper] connected                 session is up
//	[helper] output=<bytes>            data-plane sample
//	[helper] conn <action> <domain> [<destination> [<protocol>]]
//
// Failures are read from stderr.
type ProcessClient struct {
	helperPath string
	cfg        *Config
	cb         Callbacks
	logger     *common.AppLogger

	mu        sync.Mutex
	run       *helperRun
	systemDNS bool
}

// helperRun is one execution of the helper process.
type helperRun struct {
	cmd        *exec.Cmd
	configFile string
	connected  chan struct{}
	exited     chan struct{}
	once       sync.Once

	mu          sync.Mutex
	established bool
	stopping    bool
	stderrTail  []string
	exitErr     error
}

// NewProcessFactory returns a Factory that runs helperPath.
// An empty helperPath looks the helper up in PATH.
func NewProcessFactory(helperPath string) Factory {
	return func(cfg *Config, cb Callbacks) (Client, error) {
		return NewProcessClient(helperPath, cfg, cb)
	}
}

// NewProcessClient creates a client for cfg. The helper is not started
// until Connect.
func NewProcessClient(helperPath string, cfg *Config, cb Callbacks) (*ProcessClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if helperPath == "" {
		helperPath = common.HelperBinaryName
	}
	resolved, err := exec.LookPath(helperPath)
	if err != nil {
		return nil, &Error{Code: CodeProcess, Message: fmt.Sprintf("tunnel helper not found: %v", err)}
	}

	return &ProcessClient{
		helperPath: resolved,
		cfg:        cfg,
		cb:         cb,
		logger:     common.GetLogger().Named("helper"),
	}, nil
}

// SetSystemDNS asks the helper to take over the system resolver on the
// next Connect. Socks listeners have nothing to redirect.
func (p *ProcessClient) SetSystemDNS() error {
	if _, ok := p.cfg.Listener.(*TunListener); !ok {
		return nil
	}
	p.mu.Lock()
	p.systemDNS = true
	p.mu.Unlock()
	return nil
}

// Connect starts the helper and waits for it to report the session as up.
// A running helper is stopped and started again.
func (p *ProcessClient) Connect(ctx context.Context, mode ConnectMode) error {
	p.stop()

	p.mu.Lock()
	cfg := p.cfg.Clone()
	if tun, ok := cfg.Listener.(*TunListener); ok && p.systemDNS {
		tun.ChangeSystemDNS = true
	}
	p.mu.Unlock()

	configFile, err := writeTempConfig(cfg)
	if err != nil {
		return &Error{Code: CodeProcess, Message: fmt.Sprintf("failed to write helper config: %v", err)}
	}

	level := cfg.LogLevel
	if level == "" {
		level = "info"
	}
	if mode != AutoSetup {
		p.logger.Warn("Helper always performs automatic setup, ignoring connect mode %d", mode)
	}
	cmd := exec.Command(p.helperPath, "--config", configFile, "--loglevel", level)

	run := &helperRun{
		cmd:        cmd,
		configFile: configFile,
		connected:  make(chan struct{}),
		exited:     make(chan struct{}),
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.Remove(configFile)
		return &Error{Code: CodeProcess, Message: err.Error()}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.Remove(configFile)
		return &Error{Code: CodeProcess, Message: err.Error()}
	}

	p.logger.Info("Starting %s --config %s --loglevel %s", p.helperPath, configFile, level)
	if err := cmd.Start(); err != nil {
		os.Remove(configFile)
		return &Error{Code: CodeProcess, Message: fmt.Sprintf("failed to start tunnel helper: %v", err)}
	}
	p.logger.Debug("Helper process started with PID %d", cmd.Process.Pid)

	p.mu.Lock()
	p.run = run
	p.mu.Unlock()

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		p.readStdout(run, stdout)
	}()
	go func() {
		defer readers.Done()
		p.readStderr(run, stderr)
	}()
	go func() {
		readers.Wait()
		err := cmd.Wait()
		p.handleExit(run, err)
	}()

	select {
	case <-run.connected:
		return nil
	case <-run.exited:
		return run.failure()
	case <-ctx.Done():
		p.stop()
		return &Error{Code: CodeConnect, Message: fmt.Sprintf("connect() failed: %v", ctx.Err())}
	}
}

// Disconnect stops the helper and removes its config file.
func (p *ProcessClient) Disconnect() {
	p.stop()
}

// RequestReconnect reports that the network changed underneath the session.
// It is called by the network monitor.
func (p *ProcessClient) RequestReconnect() {
	p.mu.Lock()
	run := p.run
	p.mu.Unlock()
	if run == nil {
		return
	}

	run.mu.Lock()
	active := run.established && !run.stopping
	run.mu.Unlock()
	if active && p.cb.OnStateChanged != nil {
		p.cb.OnStateChanged(StateChangedEvent{State: StateWaitingForNetwork})
	}
}

func (p *ProcessClient) stop() {
	p.mu.Lock()
	run := p.run
	p.run = nil
	p.mu.Unlock()
	if run == nil {
		return
	}

	run.mu.Lock()
	run.stopping = true
	run.mu.Unlock()

	if runtime.GOOS == "windows" {
		_ = run.cmd.Process.Kill()
	} else {
		_ = run.cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-run.exited:
	case <-time.After(stopGracePeriod):
		p.logger.Warn("Helper did not exit after %s, killing it", stopGracePeriod)
		_ = run.cmd.Process.Kill()
		<-run.exited
	}
}

func (p *ProcessClient) readStdout(run *helperRun, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		msg, ok := strings.CutPrefix(line, helperPrefix)
		if !ok {
			p.logger.Debug("%s", line)
			continue
		}
		p.handleLine(run, msg)
	}
}

func (p *ProcessClient) handleLine(run *helperRun, msg string) {
	switch {
	case msg == "connected":
		run.mu.Lock()
		run.established = true
		run.mu.Unlock()
		run.once.Do(func() { close(run.connected) })

	case strings.HasPrefix(msg, "state="):
		n, err := strconv.Atoi(strings.TrimPrefix(msg, "state="))
		if err != nil {
			p.logger.Warn("Malformed state line: %q", msg)
			return
		}
		run.mu.Lock()
		established := run.established
		run.mu.Unlock()
		// States reported during the handshake are covered by Connect's result.
		if !established {
			p.logger.Debug("Handshake state %s", SessionState(n))
			return
		}
		if p.cb.OnStateChanged != nil {
			p.cb.OnStateChanged(StateChangedEvent{State: SessionState(n)})
		}

	case strings.HasPrefix(msg, "output="):
		n, err := strconv.ParseInt(strings.TrimPrefix(msg, "output="), 10, 64)
		if err != nil {
			p.logger.Warn("Malformed output line: %q", msg)
			return
		}
		if p.cb.OnOutput != nil {
			p.cb.OnOutput(OutputEvent{Bytes: n})
		}

	case strings.HasPrefix(msg, "conn "):
		ev, ok := parseConnLine(strings.TrimPrefix(msg, "conn "))
		if !ok {
			p.logger.Warn("Malformed conn line: %q", msg)
			return
		}
		if p.cb.OnConnectionInfo != nil {
			p.cb.OnConnectionInfo(ev)
		}

	default:
		p.logger.Debug("%s", msg)
	}
}

func parseConnLine(s string) (ConnectionInfoEvent, bool) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return ConnectionInfoEvent{}, false
	}
	action, ok := ParseFlowAction(fields[0])
	if !ok {
		return ConnectionInfoEvent{}, false
	}
	ev := ConnectionInfoEvent{Action: action, Domain: fields[1]}
	if len(fields) > 2 {
		ev.Destination = fields[2]
	}
	if len(fields) > 3 {
		ev.Protocol = fields[3]
	}
	return ev, true
}

func (p *ProcessClient) readStderr(run *helperRun, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p.logger.Warn("%s", line)

		run.mu.Lock()
		run.stderrTail = append(run.stderrTail, line)
		if len(run.stderrTail) > stderrTailLength {
			run.stderrTail = run.stderrTail[1:]
		}
		run.mu.Unlock()
	}
}

func (p *ProcessClient) handleExit(run *helperRun, err error) {
	os.Remove(run.configFile)

	run.mu.Lock()
	run.exitErr = err
	unsolicited := run.established && !run.stopping
	run.mu.Unlock()
	close(run.exited)

	if err != nil {
		p.logger.Info("Helper exited: %v", err)
	} else {
		p.logger.Info("Helper exited")
	}

	if unsolicited && p.cb.OnStateChanged != nil {
		p.cb.OnStateChanged(StateChangedEvent{State: StateDisconnected, Err: run.failure()})
	}
}

// failure builds the typed error for a helper that exited.
func (run *helperRun) failure() *Error {
	run.mu.Lock()
	defer run.mu.Unlock()

	msg := strings.Join(run.stderrTail, "; ")
	if msg == "" && run.exitErr != nil {
		msg = fmt.Sprintf("tunnel helper exited: %v", run.exitErr)
	}
	if msg == "" {
		msg = "tunnel helper exited"
	}
	return &Error{Code: classifyHelperOutput(msg), Message: msg}
}

func classifyHelperOutput(msg string) ErrorCode {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "failed to create listener"),
		strings.Contains(lower, "address already in use"):
		return CodeListenerBind
	case strings.Contains(lower, "set_system_dns"):
		return CodeSystemDNS
	case strings.Contains(lower, "failed to start network monitor"),
		strings.Contains(lower, "failed parsing config"),
		strings.Contains(lower, "invalid trusttunnel config"):
		return CodeProcess
	default:
		return CodeConnect
	}
}

func writeTempConfig(cfg *Config) (string, error) {
	// CreateTemp opens the file with 0600 permissions.
	f, err := os.CreateTemp("", "trusttunnel-*.toml")
	if err != nil {
		return "", err
	}
	if err := cfg.Encode(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

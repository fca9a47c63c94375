package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yllada/trusttunnel-desktop/common"
	"github.com/yllada/trusttunnel-desktop/engine"
	"github.com/yllada/trusttunnel-desktop/keyring"
	"github.com/yllada/trusttunnel-desktop/metrics"
	"github.com/yllada/trusttunnel-desktop/netmon"
	"github.com/yllada/trusttunnel-desktop/notify"
	"github.com/yllada/trusttunnel-desktop/routing"
	"github.com/yllada/trusttunnel-desktop/vpn"
)

func (a *App) connectCommand() *cobra.Command {
	var noReconnect bool

	cmd := &cobra.Command{
		Use:   "connect [config.toml]",
		Short: "Connect and keep the session up until interrupted",
		Long: `Connect loads an engine config, starts the tunnel and supervises it,
reconnecting after transient failures until interrupted with Ctrl+C.

Without an argument the most recently used config is connected.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return a.runConnect(ctx, cmd.OutOrStdout(), path, !noReconnect)
		},
	}
	cmd.Flags().BoolVar(&noReconnect, "no-reconnect", false, "exit on the first failure instead of retrying")
	return cmd
}

// resolveConfigPath picks the config to connect: the argument, the last
// used config from settings, or the most recent saved entry.
func (a *App) resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if a.settings.LastConfig != "" {
		return a.settings.LastConfig, nil
	}

	s, err := a.openStore()
	if err != nil {
		return "", err
	}
	defer s.Close()

	saved, err := s.List()
	if err != nil {
		return "", err
	}
	if len(saved) == 0 {
		return "", fmt.Errorf("%w: pass a config file or add one with 'configs add'", common.ErrConfigMissing)
	}
	return saved[0].Path, nil
}

// fillPassword completes the endpoint password from the credential store.
func (a *App) fillPassword(cfg *engine.Config) {
	ep := &cfg.Endpoint
	if ep.Password != "" || ep.Username == "" {
		return
	}
	password, err := a.credentialStore().Get(keyring.Account(ep.Username, ep.Hostname))
	if err != nil {
		if !errors.Is(err, common.ErrCredentialsNotFound) {
			common.LogWarn("Cannot read stored password: %v", err)
		}
		return
	}
	ep.Password = password
}

// rememberConfig records path as the most recently used config.
func (a *App) rememberConfig(path string) {
	s, err := a.openStore()
	if err != nil {
		common.LogWarn("Saved configs unavailable: %v", err)
		return
	}
	defer s.Close()

	entry, err := s.Add(path, "")
	if err != nil {
		common.LogWarn("Cannot remember config %s: %v", path, err)
		return
	}
	if err := s.MarkUsed(entry.Path); err != nil {
		common.LogWarn("Cannot update config usage: %v", err)
	}

	a.settings.LastConfig = entry.Path
	if err := a.settings.Save(); err != nil {
		common.LogWarn("Cannot save settings: %v", err)
	}
}

func (a *App) runConnect(ctx context.Context, out io.Writer, path string, autoReconnect bool) error {
	path, err := a.resolveConfigPath(path)
	if err != nil {
		return err
	}

	cfg, err := engine.LoadFile(path)
	if err != nil {
		return err
	}
	a.fillPassword(cfg)

	policy, err := routing.FromSettings(a.settings)
	if err != nil {
		return err
	}
	include, exclude, err := policy.Prepare(ctx)
	if err != nil {
		return fmt.Errorf("routing update failed: %w", err)
	}

	ctrl, err := vpn.NewController(vpn.Options{
		Factory:      engine.NewProcessFactory(a.settings.Engine.HelperPath),
		Monitor:      networkMonitor,
		InitialDelay: a.settings.Reconnect.InitialDelay,
		MaxDelay:     a.settings.Reconnect.MaxDelay,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctrl.SetAutoReconnect(autoReconnect && a.settings.AutoReconnect)
	ctrl.SetLogLevel(a.settings.Engine.LogLevel)
	ctrl.SetRoutingRules(include, exclude)

	m := metrics.New()
	ctrl.Subscribe(m.Observe)
	if addr := a.settings.Metrics.Listen; addr != "" {
		srv, err := metrics.Serve(m, addr)
		if err != nil {
			return fmt.Errorf("cannot serve metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	desktop := notify.NewDesktop(nil)
	defer desktop.Close()
	announcer := notify.NewAnnouncer(desktop, notify.Preferences{
		OnStateChange: a.settings.Notifications.OnStateChange,
		OnlyErrors:    a.settings.Notifications.OnlyErrors,
	}, cfg.Endpoint.Hostname)
	ctrl.Subscribe(announcer.Handle)

	session := newSessionPrinter(out)
	ctrl.Subscribe(session.handle)

	if err := ctrl.SetConfig(cfg); err != nil {
		return err
	}
	a.rememberConfig(path)

	session.printf("Connecting to %s...\n", cfg.Endpoint.Hostname)
	ctrl.Connect()

	select {
	case <-ctx.Done():
		session.printf("Disconnecting...\n")
		ctrl.Close()
		session.summary()
		return nil
	case err := <-session.fatal:
		return err
	}
}

func networkMonitor(client engine.Client) vpn.Monitor {
	r, ok := client.(netmon.Reconnector)
	if !ok {
		r = netmon.ReconnectorFunc(func() {
			common.LogDebug("Engine client cannot reconnect on network change")
		})
	}
	return netmon.New(r, netmon.Options{})
}

// sessionPrinter reports controller events on the terminal. handle runs on
// the control goroutine, so it never blocks on anything but mu.
type sessionPrinter struct {
	fatal chan error

	mu          sync.Mutex
	out         io.Writer
	connectedAt time.Time
}

func newSessionPrinter(out io.Writer) *sessionPrinter {
	return &sessionPrinter{out: out, fatal: make(chan error, 1)}
}

// printf writes to the terminal, serialized with event output.
func (p *sessionPrinter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *sessionPrinter) handle(ev vpn.Event) {
	switch ev.Kind {
	case vpn.EventStateChanged:
		p.printf("State: %s\n", ev.State)
	case vpn.EventConnected:
		p.mu.Lock()
		p.connectedAt = time.Now()
		p.mu.Unlock()
		p.printf("✓ Connected (session %s)\n", ev.SessionID)
	case vpn.EventError:
		if !ev.Fatal() {
			if ev.RetryIn > 0 {
				p.printf("  Warning: %s, retrying in %v\n", ev.Message, ev.RetryIn)
			} else {
				p.printf("  Warning: %s\n", ev.Message)
			}
			return
		}
		select {
		case p.fatal <- ev.Err:
		default:
		}
	case vpn.EventConnectionInfo:
		common.LogDebug("Flow: %s", ev.Flow)
	}
}

func (p *sessionPrinter) summary() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connectedAt.IsZero() {
		fmt.Fprintf(p.out, "Session lasted %s\n", formatDuration(time.Since(p.connectedAt)))
	}
}

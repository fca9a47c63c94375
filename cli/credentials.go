package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yllada/trusttunnel-desktop/engine"
	"github.com/yllada/trusttunnel-desktop/keyring"
)

func (a *App) credentialsCommand() *cobra.Command {
	credCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage stored endpoint passwords",
		Long: `Passwords are stored per endpoint login (username@hostname) in the
system keyring, or in an encrypted file when no keyring is available.
'connect' uses them when the config file has no password.`,
	}

	credCmd.AddCommand(&cobra.Command{
		Use:   "set <config.toml>",
		Short: "Store the password for the config's endpoint login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := accountFor(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Password for %s: ", account)
			password, err := readPassword(cmd.InOrStdin())
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("cannot read password: %w", err)
			}
			if password == "" {
				return errors.New("password cannot be empty")
			}

			if err := a.credentialStore().Store(account, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Password stored for %s\n", account)
			return nil
		},
	})

	credCmd.AddCommand(&cobra.Command{
		Use:   "delete <config.toml>",
		Short: "Remove the stored password for the config's endpoint login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := accountFor(args[0])
			if err != nil {
				return err
			}
			if err := a.credentialStore().Delete(account); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Password removed for %s\n", account)
			return nil
		},
	})

	return credCmd
}

func accountFor(path string) (string, error) {
	cfg, err := engine.LoadFile(path)
	if err != nil {
		return "", err
	}
	if cfg.Endpoint.Username == "" {
		return "", fmt.Errorf("%s has no endpoint.username", path)
	}
	return keyring.Account(cfg.Endpoint.Username, cfg.Endpoint.Hostname), nil
}

// readPassword reads without echo from a terminal, or one line otherwise.
func readPassword(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		return string(b), err
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

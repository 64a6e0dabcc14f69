package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"privmsg/internal/app"
)

var (
	home       string
	user       string
	passphrase string
	keydirURL  string
	mixnetOn   bool
	jsonOut    bool

	wire *app.Wire
)

// Execute runs the CLI until it finishes or is interrupted.
func Execute() error {
	root := &cobra.Command{
		Use:           "privmsg",
		Short:         "End-to-end encrypted private messaging CLI",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			if home == "" {
				home = os.Getenv("PRIVMSG_HOME")
			}
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".privmsg")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			cfg, err := app.LoadConfig(home, os.Getenv)
			if err != nil {
				return err
			}
			if user != "" {
				cfg.User = user
			}
			if passphrase != "" {
				cfg.Passphrase = passphrase
			}
			if keydirURL != "" {
				cfg.KeydirURL = keydirURL
			}
			if cmd.Flags().Changed("mixnet") {
				cfg.Mixnet.Enabled = mixnetOn
			}

			wire, err = app.NewWire(cfg)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if wire == nil {
				return nil
			}
			return wire.Close()
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default $PRIVMSG_HOME or ~/.privmsg)")
	root.PersistentFlags().StringVarP(&user, "user", "u", "", "your user id")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the keyring")
	root.PersistentFlags().StringVar(&keydirURL, "keydir", "", "key directory base URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().BoolVar(&mixnetOn, "mixnet", false, "route messages through the mix network")
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "print machine-readable JSON")

	root.AddCommand(initCmd(), statusCmd(), sendCmd(), readCmd(), rotateCmd(), fingerprintCmd())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return root.ExecuteContext(ctx)
}

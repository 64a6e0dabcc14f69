package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"privmsg/internal/services/keystore"
)

func rotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Replace the key pair; retired pairs keep old messages readable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if wire.Config.Passphrase == "" {
				return fmt.Errorf("passphrase required (-p or PRIVMSG_PASSPHRASE)")
			}
			err := wire.Keys.RotateKeyPair(cmd.Context())
			if err != nil && !errors.Is(err, keystore.ErrNotPublished) {
				return err
			}
			fp, ferr := wire.Keys.Fingerprint()
			if ferr != nil {
				return ferr
			}
			text := fmt.Sprintf("Key pair rotated.\nFingerprint: %s", fp)
			if err != nil {
				text += "\nNew public key not published yet; it will be retried on the next run."
			}
			return emit(map[string]string{"fingerprint": fp.String()}, text)
		},
	}
}

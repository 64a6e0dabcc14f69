package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"privmsg/internal/services/keystore"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate an encryption key pair, store it and publish the public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if wire.Config.Passphrase == "" {
				return fmt.Errorf("passphrase required (-p or PRIVMSG_PASSPHRASE)")
			}
			keys := wire.Keys
			err := keys.GenerateAndStoreKeyPair(cmd.Context())
			published := true
			if errors.Is(err, keystore.ErrNotPublished) {
				published = false
			} else if err != nil {
				return err
			}
			fp, err := keys.Fingerprint()
			if err != nil {
				return err
			}
			out := struct {
				Fingerprint string `json:"fingerprint"`
				Published   bool   `json:"published"`
			}{fp.String(), published}
			text := fmt.Sprintf("Key pair ready.\nFingerprint: %s", fp)
			if !published {
				text += "\nPublic key not published yet; it will be retried on the next run."
			}
			return emit(out, text)
		},
	}
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the public key fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := wire.Keys.Fingerprint()
			if err != nil {
				return err
			}
			_, id, err := wire.Keys.PublicKey()
			if err != nil {
				return err
			}
			out := map[string]string{"fingerprint": fp.String(), "key_id": id.String()}
			return emit(out, fmt.Sprintf("Fingerprint: %s\nKey ID: %s", fp, id))
		},
	}
}

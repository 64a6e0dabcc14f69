package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Bring up private messaging and print the privacy level",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.Privacy.InitializePrivacy(cmd.Context()); err != nil {
				return err
			}
			st := wire.Privacy.PrivacyStatus()
			return emit(st, fmt.Sprintf("Privacy: %s (%s)", st.Level, st.Description))
		},
	}
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"privmsg/internal/domain"
)

// send <peer> <message>: encrypt and send a message to <peer>.
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if wire.Config.Passphrase == "" {
				return fmt.Errorf("passphrase required (-p or PRIVMSG_PASSPHRASE)")
			}
			ctx := cmd.Context()
			if err := wire.Privacy.InitializePrivacy(ctx); err != nil {
				return err
			}
			peer := domain.UserID(args[0])
			wire.Conversations.Open(peer)

			res, err := wire.Conversations.Send(ctx, peer, args[1])
			if err != nil {
				if jsonOut {
					_ = emit(res, "")
				}
				if res.Error != "" {
					return fmt.Errorf("message not sent: %s", res.Error)
				}
				return err
			}
			st := wire.Privacy.PrivacyStatus()
			return emit(res, fmt.Sprintf("sent %s (privacy: %s)", res.MessageID, st.Level))
		},
	}
}

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"privmsg/internal/domain"
)

// read <peer>: sync the mailbox and print the conversation with <peer>.
func readCmd() *cobra.Command {
	var markRead bool
	cmd := &cobra.Command{
		Use:   "read <peer>",
		Short: "Fetch queued messages and print the conversation with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if wire.Config.Passphrase == "" {
				return fmt.Errorf("passphrase required (-p or PRIVMSG_PASSPHRASE)")
			}
			ctx := cmd.Context()
			peer := domain.UserID(args[0])
			conv := wire.Conversations
			conv.Open(peer)

			if _, err := conv.Sync(ctx); err != nil {
				wire.Logger.Warn("mailbox sync failed", "err", err)
			}
			msgs, err := conv.History(ctx, peer)
			if err != nil {
				return err
			}
			if markRead {
				recs, err := wire.Messages.ListMessages(domain.ConversationFor(wire.Keys.User(), peer))
				if err != nil {
					return err
				}
				for _, rec := range recs {
					if rec.ReadAt == nil && rec.Recipient == wire.Keys.User() {
						if err := conv.MarkRead(ctx, rec); err != nil {
							return err
						}
					}
				}
			}

			var b strings.Builder
			for i, m := range msgs {
				if i > 0 {
					b.WriteByte('\n')
				}
				lock := " "
				if m.Encrypted {
					lock = "*"
				}
				fmt.Fprintf(&b, "%s [%s] %s: %s", lock, m.CreatedAt.Local().Format("2006-01-02 15:04"), m.Sender, m.Text)
			}
			if len(msgs) == 0 {
				b.WriteString("no messages")
			}
			return emit(msgs, b.String())
		},
	}
	cmd.Flags().BoolVar(&markRead, "mark-read", false, "mark received messages as read")
	return cmd
}

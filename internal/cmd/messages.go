package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/lostfound/internal/domain"
	"github.com/felixgeelhaar/lostfound/internal/errors"
)

func newMessagesCommand(app *App) *cobra.Command {
	messagesCmd := &cobra.Command{
		Use:     "messages",
		Aliases: []string{"msg"},
		Short:   "Talk to item owners and finders",
		Long: `Contact the owner of an item and follow up in conversation threads.
All messaging needs a signed-in user.

Subcommands:
  inbox    Show your conversations
  contact  Send the first message about an item
  reply    Answer in a conversation`,
	}

	messagesCmd.AddCommand(
		newInboxCommand(app),
		newContactCommand(app),
		newReplyCommand(app),
	)
	return messagesCmd
}

func newInboxCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "inbox",
		Short: "Show your conversations",
		Long: `Show your conversations, newest first, with unread counts.

Examples:
  lostfound messages inbox
  lostfound messages inbox -o json`,
		Args: cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, _ []string) error {
			inbox, err := app.gateway.Inbox(cmd.Context())
			if err != nil {
				return err
			}
			return app.render(inbox)
		}),
	}
}

func newContactCommand(app *App) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "contact <item-id>",
		Short: "Send the first message about an item",
		Long: `Send a message to the person who posted an item. They are notified by
email and can answer from their inbox.

Examples:
  lostfound messages contact 3f1c2a9e -m "I think this is my backpack"`,
		Args: cobra.ExactArgs(1),
	}
	cmd.RunE = app.runE(func(cmd *cobra.Command, args []string) error {
		var err error
		if message, err = app.require(message, "message", "Message", false); err != nil {
			return err
		}
		delivery, err := app.gateway.SendContact(cmd.Context(), domain.ContactRequest{
			ItemID:  args[0],
			Message: message,
		})
		if err != nil {
			return err
		}
		return app.render(delivery)
	})

	cmd.Flags().StringVarP(&message, "message", "m", "", "message text (prompted when omitted)")
	return cmd
}

func newReplyCommand(app *App) *cobra.Command {
	var (
		message   string
		itemID    string
		recipient string
	)

	cmd := &cobra.Command{
		Use:   "reply [thread-id]",
		Short: "Answer in a conversation",
		Long: `Answer in a conversation. Given a thread id from your inbox, the item
and the other participant are looked up for you; otherwise pass --item
and --to.

Examples:
  lostfound messages reply 3f1c2a9e#user-42 -m "Can we meet at the library?"
  lostfound messages reply --item 3f1c2a9e --to user-42 -m "Thanks!"`,
		Args: cobra.MaximumNArgs(1),
	}
	cmd.RunE = app.runE(func(cmd *cobra.Command, args []string) error {
		req := domain.ReplyRequest{ItemID: itemID, RecipientUserID: recipient}
		if len(args) == 1 {
			req.ThreadID = args[0]
		}
		if req.ItemID == "" || req.RecipientUserID == "" {
			if req.ThreadID == "" {
				return errors.Validation("reply needs a thread id, or --item and --to")
			}
			if err := app.fillFromThread(cmd.Context(), &req); err != nil {
				return err
			}
		}

		var err error
		if req.Message, err = app.require(message, "message", "Reply", false); err != nil {
			return err
		}
		delivery, err := app.gateway.Reply(cmd.Context(), req)
		if err != nil {
			return err
		}
		return app.render(delivery)
	})

	cmd.Flags().StringVarP(&message, "message", "m", "", "message text (prompted when omitted)")
	cmd.Flags().StringVar(&itemID, "item", "", "item the conversation is about")
	cmd.Flags().StringVar(&recipient, "to", "", "user id of the other participant")
	return cmd
}

// fillFromThread completes req from the inbox thread it names
func (a *App) fillFromThread(ctx context.Context, req *domain.ReplyRequest) error {
	inbox, err := a.gateway.Inbox(ctx)
	if err != nil {
		return err
	}
	for _, t := range inbox.Threads {
		if t.ThreadID != req.ThreadID {
			continue
		}
		if req.ItemID == "" {
			req.ItemID = t.ItemID
		}
		if req.RecipientUserID == "" {
			req.RecipientUserID = t.OtherUserID
		}
		return nil
	}
	return errors.New(errors.KindNotFound, errors.ErrCodeAPINotFound, "no conversation "+req.ThreadID+" in your inbox").
		WithSuggestion("Run 'lostfound messages inbox' to see your threads")
}

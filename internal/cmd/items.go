package cmd

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/lostfound/internal/domain"
	"github.com/felixgeelhaar/lostfound/internal/errors"
	"github.com/felixgeelhaar/lostfound/internal/gateway"
	"github.com/felixgeelhaar/lostfound/internal/ux"
)

func newItemsCommand(app *App) *cobra.Command {
	itemsCmd := &cobra.Command{
		Use:     "items",
		Aliases: []string{"item"},
		Short:   "Browse and publish lost and found items",
		Long: `Browse the public listing and manage your own items.

Listing is open to everyone. Posting, resolving and deleting need a
signed-in user.

Subcommands:
  list     Show a page of items
  post     Publish a lost or found item
  resolve  Mark one of your items as resolved
  reopen   Mark one of your items as unresolved
  delete   Delete one of your items`,
	}

	itemsCmd.AddCommand(
		newListItemsCommand(app),
		newPostItemCommand(app),
		newResolveItemCommand(app, true),
		newResolveItemCommand(app, false),
		newDeleteItemCommand(app),
	)
	return itemsCmd
}

func newListItemsCommand(app *App) *cobra.Command {
	var (
		limit    int
		status   string
		category string
		after    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show a page of items",
		Long: `Show a page of the public listing, newest first.

When more items are available the output ends with the --after value
that fetches the next page.

Examples:
  lostfound items list
  lostfound items list --status found --category electronics --limit 10
  lostfound items list --after '<key from the previous page>'`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = app.runE(func(cmd *cobra.Command, _ []string) error {
		filter := domain.ListFilter{
			Limit:    limit,
			Category: category,
			LastKey:  after,
		}
		if status != "" {
			s, err := domain.ParseItemStatus(status)
			if err != nil {
				return err
			}
			filter.Status = s
		}

		page, err := app.gateway.ListItems(cmd.Context(), filter)
		if err != nil {
			return err
		}
		return app.render(page)
	})

	cmd.Flags().IntVar(&limit, "limit", domain.DefaultListLimit, fmt.Sprintf("items per page (1-%d)", domain.MaxListLimit))
	cmd.Flags().StringVar(&status, "status", "", "only 'lost' or 'found' items")
	cmd.Flags().StringVar(&category, "category", "", "only items in this category")
	cmd.Flags().StringVar(&after, "after", "", "continue after this key from a previous page")
	return cmd
}

func newPostItemCommand(app *App) *cobra.Command {
	var (
		draft     domain.ItemDraft
		status    string
		imagePath string
	)

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Publish a lost or found item",
		Long: `Publish a lost or found item. Missing required fields are prompted for.

The date defaults to today and may not be in the future. An image can be
attached from a local file (JPEG, PNG, GIF or WebP up to the configured
size) or referenced by URL.

Examples:
  lostfound items post --title "Blue backpack" --status found \
    --location "Main library" --category bags \
    --description "Left near the entrance" --image ./backpack.jpg
  lostfound items post --title "Keys" --status lost --location "Gym" \
    --date 2026-03-01 --category keys --description "Three keys on a red ring"`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = app.runE(func(cmd *cobra.Command, _ []string) error {
		var err error
		if draft.Title, err = app.require(draft.Title, "title", "Title", false); err != nil {
			return err
		}
		if status, err = app.require(status, "status", "Lost or found?", false); err != nil {
			return err
		}
		if draft.Status, err = domain.ParseItemStatus(status); err != nil {
			return err
		}
		if draft.Location, err = app.require(draft.Location, "location", "Location", false); err != nil {
			return err
		}
		if draft.Category, err = app.require(draft.Category, "category", "Category", false); err != nil {
			return err
		}
		if draft.Description, err = app.require(draft.Description, "description", "Description", false); err != nil {
			return err
		}
		if draft.Date == "" {
			draft.Date = time.Now().Format(domain.DateLayout)
		}

		var image *gateway.Image
		if imagePath != "" {
			if image, err = app.gateway.AttachImage(imagePath); err != nil {
				return err
			}
		}

		created, err := app.gateway.CreateItem(cmd.Context(), draft, image)
		if err != nil {
			return err
		}
		return app.render(created)
	})

	flags := cmd.Flags()
	flags.StringVar(&draft.Title, "title", "", fmt.Sprintf("short title (%d-%d characters)", domain.MinTitleLength, domain.MaxTitleLength))
	flags.StringVar(&status, "status", "", "'lost' or 'found'")
	flags.StringVar(&draft.Location, "location", "", "where it was lost or found")
	flags.StringVar(&draft.Date, "date", "", "date as YYYY-MM-DD (default: today)")
	flags.StringVar(&draft.Category, "category", "", "category, e.g. keys, bags, electronics")
	flags.StringVar(&draft.Description, "description", "", fmt.Sprintf("description (up to %d characters)", domain.MaxDescriptionLength))
	flags.StringVar(&draft.Color, "color", "", "main color")
	flags.StringVar(&imagePath, "image", "", "attach an image file")
	flags.StringVar(&draft.ImageURL, "image-url", "", "reference an image that is already hosted")
	return cmd
}

func newResolveItemCommand(app *App, resolved bool) *cobra.Command {
	use, short, done := "resolve <id>", "Mark one of your items as resolved", "resolved"
	if !resolved {
		use, short, done = "reopen <id>", "Mark one of your items as unresolved", "reopened"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

Examples:
  lostfound items resolve 3f1c2a9e
  lostfound items reopen 3f1c2a9e`,
		Args: cobra.ExactArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			update, err := app.gateway.SetItemResolved(cmd.Context(), args[0], resolved)
			if err != nil {
				return err
			}
			app.logger.Info("item "+done, "item_id", update.ID)
			return app.render(update)
		}),
	}
}

func newDeleteItemCommand(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one of your items",
		Long: `Delete one of your items. You are asked to confirm unless --yes is given.

Examples:
  lostfound items delete 3f1c2a9e
  lostfound items delete 3f1c2a9e --yes`,
		Args: cobra.ExactArgs(1),
	}
	cmd.RunE = app.runE(func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if !yes {
			ok, err := app.prompter.Confirm(fmt.Sprintf("Delete item %s?", id), false)
			if err != nil {
				if stderrors.Is(err, ux.ErrNotInteractive) {
					return errors.Validation("deleting without a prompt needs --yes")
				}
				return err
			}
			if !ok {
				return app.notice("Nothing deleted")
			}
		}

		err := app.gateway.DeleteItem(cmd.Context(), id)
		app.recordDeletion(id, err)
		if err != nil {
			return err
		}
		return app.notice(fmt.Sprintf("Item %s deleted", id))
	})

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking")
	return cmd
}

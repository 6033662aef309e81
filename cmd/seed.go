package cmd

import (
	"context"
	"log/slog"

	"ticket-workflow/config"
	"ticket-workflow/internal/services"
	"ticket-workflow/internal/store/pbstore"
	"ticket-workflow/models"

	"github.com/pocketbase/pocketbase"
	"github.com/spf13/cobra"
)

func newSeedCommand(app *pocketbase.PocketBase, cfg *config.Config, store services.Store, workflow *services.WorkflowService) *cobra.Command {
	var reset bool

	command := &cobra.Command{
		Use:   "seed",
		Short: "Create the default VIP and Regular ticket types",
		Long:  "Create the default ticket types when none exist. With --reset, delete every order and queue entry and restore the defaults.",
		RunE: func(command *cobra.Command, args []string) error {
			ctx := command.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if cfg.StoreDriver == "pocketbase" {
				if err := pbstore.EnsureSchema(app); err != nil {
					return err
				}
			}

			if reset {
				types, err := workflow.ResetInventory(ctx, models.Admin("system:seed"))
				if err != nil {
					return err
				}
				slog.Info("inventory reset", "ticket_types", len(types))
				return nil
			}

			seeded, err := services.EnsureDefaults(ctx, store)
			if err != nil {
				return err
			}
			slog.Info("seed finished", "created", seeded)
			return nil
		},
	}
	command.Flags().BoolVar(&reset, "reset", false, "delete all orders and queue entries before seeding")
	return command
}

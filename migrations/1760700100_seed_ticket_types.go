package migrations

import (
	"context"

	"ticket-workflow/internal/services"
	"ticket-workflow/internal/store/pbstore"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		_, err := services.EnsureDefaults(context.Background(), pbstore.New(app))
		return err
	}, nil)
}

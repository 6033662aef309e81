package migrations

import (
	"ticket-workflow/internal/store/pbstore"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		return pbstore.EnsureSchema(app)
	}, func(app core.App) error {
		return pbstore.DropSchema(app)
	})
}

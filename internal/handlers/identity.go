package handlers

import (
	"ticket-workflow/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// Authenticator turns the PocketBase auth record into a workflow identity.
// Superusers and records of AdminCollection act as admins.
type Authenticator struct {
	AdminCollection string
}

func (a Authenticator) Identity(e *core.RequestEvent) (models.Identity, error) {
	if e.Auth == nil {
		return models.Identity{}, apis.NewUnauthorizedError("Unauthorized", nil)
	}
	if e.Auth.IsSuperuser() || (a.AdminCollection != "" && e.Auth.Collection().Name == a.AdminCollection) {
		return models.Admin(e.Auth.Id), nil
	}
	return models.Customer(e.Auth.Id), nil
}

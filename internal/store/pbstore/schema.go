package pbstore

import (
	"ticket-workflow/models"

	"github.com/pocketbase/pocketbase/core"
)

const (
	collectionTicketTypes  = "ticket_types"
	collectionOrders       = "orders"
	collectionOrderLines   = "order_lines"
	collectionQueueEntries = "queue_entries"
)

var orderStatuses = []string{
	string(models.OrderStatusPending),
	string(models.OrderStatusApproved),
	string(models.OrderStatusCompleted),
	string(models.OrderStatusRejected),
	string(models.OrderStatusCancelled),
}

// EnsureSchema creates the workflow collections that do not exist yet.
func EnsureSchema(app core.App) error {
	for _, build := range []func() *core.Collection{
		ticketTypesCollection,
		ordersCollection,
		orderLinesCollection,
		queueEntriesCollection,
	} {
		collection := build()
		if _, err := app.FindCollectionByNameOrId(collection.Name); err == nil {
			continue
		}
		if err := app.Save(collection); err != nil {
			return err
		}
	}
	return nil
}

// DropSchema deletes the workflow collections and their records.
func DropSchema(app core.App) error {
	for _, name := range []string{collectionQueueEntries, collectionOrderLines, collectionOrders, collectionTicketTypes} {
		collection, err := app.FindCollectionByNameOrId(name)
		if err != nil {
			continue
		}
		if err := app.Delete(collection); err != nil {
			return err
		}
	}
	return nil
}

func ticketTypesCollection() *core.Collection {
	c := core.NewBaseCollection(collectionTicketTypes)
	c.Fields.Add(
		&core.TextField{Name: "uid", Required: true, Max: 64},
		&core.SelectField{Name: "category", Required: true, MaxSelect: 1, Values: []string{string(models.CategoryVIP), string(models.CategoryRegular)}},
		&core.TextField{Name: "name", Max: 200},
		// decimal string, empty when no price is set
		&core.TextField{Name: "price", Max: 32},
		&core.NumberField{Name: "total", OnlyInt: true},
		&core.NumberField{Name: "available", OnlyInt: true},
		&core.NumberField{Name: "reserved", OnlyInt: true},
		&core.NumberField{Name: "sold", OnlyInt: true},
		&core.NumberField{Name: "version", OnlyInt: true},
		&core.DateField{Name: "updated_at"},
	)
	c.AddIndex("idx_ticket_types_uid", true, "uid", "")
	return c
}

func ordersCollection() *core.Collection {
	c := core.NewBaseCollection(collectionOrders)
	c.Fields.Add(
		&core.TextField{Name: "uid", Required: true, Max: 64},
		&core.TextField{Name: "reference", Max: 64},
		&core.TextField{Name: "user_id", Required: true, Max: 64},
		&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: orderStatuses},
		&core.TextField{Name: "admin_note"},
		&core.DateField{Name: "ordered_at", Required: true},
		&core.DateField{Name: "updated_at"},
		&core.DateField{Name: "approved_at"},
		&core.DateField{Name: "completed_at"},
		&core.DateField{Name: "cancelled_at"},
	)
	c.AddIndex("idx_orders_uid", true, "uid", "")
	c.AddIndex("idx_orders_user_status", false, "user_id, status", "")
	c.AddIndex("idx_orders_ordered_at", false, "ordered_at, uid", "")
	return c
}

func orderLinesCollection() *core.Collection {
	c := core.NewBaseCollection(collectionOrderLines)
	c.Fields.Add(
		&core.TextField{Name: "order_uid", Required: true, Max: 64},
		&core.TextField{Name: "ticket_type_uid", Required: true, Max: 64},
		&core.SelectField{Name: "category", Required: true, MaxSelect: 1, Values: []string{string(models.CategoryVIP), string(models.CategoryRegular)}},
		&core.NumberField{Name: "quantity", OnlyInt: true},
		&core.TextField{Name: "unit_price", Max: 32},
		&core.NumberField{Name: "position", OnlyInt: true},
	)
	c.AddIndex("idx_order_lines_order", false, "order_uid, position", "")
	return c
}

func queueEntriesCollection() *core.Collection {
	c := core.NewBaseCollection(collectionQueueEntries)
	c.Fields.Add(
		&core.TextField{Name: "uid", Required: true, Max: 64},
		&core.TextField{Name: "ticket_type_uid", Required: true, Max: 64},
		&core.TextField{Name: "user_id", Required: true, Max: 64},
		&core.NumberField{Name: "quantity", OnlyInt: true},
		&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{string(models.QueueStatusWaiting), string(models.QueueStatusFulfilled)}},
		&core.DateField{Name: "joined_at", Required: true},
		&core.DateField{Name: "fulfilled_at"},
	)
	c.AddIndex("idx_queue_entries_uid", true, "uid", "")
	c.AddIndex("idx_queue_entries_fifo", false, "ticket_type_uid, status, joined_at, uid", "")
	return c
}

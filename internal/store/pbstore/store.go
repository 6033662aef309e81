package pbstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ticket-workflow/internal/services"
	"ticket-workflow/internal/status"
	"ticket-workflow/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

// Store keeps the workflow in PocketBase collections. PocketBase runs
// transactions on its single writer connection, and ticket type writes are
// additionally guarded by their version column.
type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx services.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.app.RunInTransaction(func(txApp core.App) error {
		return fn(&tx{app: txApp})
	})
}

type tx struct {
	app core.App
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return status.NotFound(kind, id)
	}
	return fmt.Errorf("find %s %q: %w", kind, id, err)
}

func setTime(r *core.Record, field string, t *time.Time) {
	if t == nil || t.IsZero() {
		r.Set(field, "")
		return
	}
	r.Set(field, t.UTC())
}

func getTime(r *core.Record, field string) *time.Time {
	dt := r.GetDateTime(field)
	if dt.IsZero() {
		return nil
	}
	t := dt.Time()
	return &t
}

func formatPrice(p decimal.NullDecimal) string {
	if !p.Valid {
		return ""
	}
	return p.Decimal.String()
}

func parsePrice(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func dateString(t time.Time) string {
	dt, err := types.ParseDateTime(t.UTC())
	if err != nil {
		return ""
	}
	return dt.String()
}

// ticket types

func ticketTypeFromRecord(r *core.Record) (*models.TicketType, error) {
	price, err := parsePrice(r.GetString("price"))
	if err != nil {
		return nil, fmt.Errorf("ticket type %s price: %w", r.GetString("uid"), err)
	}
	t := &models.TicketType{
		ID:        r.GetString("uid"),
		Category:  models.Category(r.GetString("category")),
		Name:      r.GetString("name"),
		Price:     price,
		Total:     r.GetInt("total"),
		Available: r.GetInt("available"),
		Reserved:  r.GetInt("reserved"),
		Sold:      r.GetInt("sold"),
		Version:   r.GetInt("version"),
	}
	if updated := getTime(r, "updated_at"); updated != nil {
		t.UpdatedAt = *updated
	}
	return t, nil
}

func (t *tx) GetTicketType(id string) (*models.TicketType, error) {
	r, err := t.app.FindFirstRecordByData(collectionTicketTypes, "uid", id)
	if err != nil {
		return nil, notFound("ticket type", id, err)
	}
	return ticketTypeFromRecord(r)
}

func (t *tx) ListTicketTypes() ([]*models.TicketType, error) {
	var records []*core.Record
	if err := t.app.RecordQuery(collectionTicketTypes).OrderBy("uid ASC").All(&records); err != nil {
		return nil, fmt.Errorf("list ticket types: %w", err)
	}
	out := make([]*models.TicketType, 0, len(records))
	for _, r := range records {
		tt, err := ticketTypeFromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, tt)
	}
	return out, nil
}

func (t *tx) CreateTicketType(tt *models.TicketType) error {
	collection, err := t.app.FindCollectionByNameOrId(collectionTicketTypes)
	if err != nil {
		return err
	}
	r := core.NewRecord(collection)
	r.Set("uid", tt.ID)
	r.Set("category", string(tt.Category))
	r.Set("name", tt.Name)
	r.Set("price", formatPrice(tt.Price))
	r.Set("total", tt.Total)
	r.Set("available", tt.Available)
	r.Set("reserved", tt.Reserved)
	r.Set("sold", tt.Sold)
	r.Set("version", tt.Version)
	setTime(r, "updated_at", &tt.UpdatedAt)
	if err := t.app.Save(r); err != nil {
		return fmt.Errorf("create ticket type %s: %w", tt.ID, err)
	}
	return nil
}

// SaveTicketType is a guarded update: it matches only while the stored
// version is the one the row was read at.
func (t *tx) SaveTicketType(tt *models.TicketType) error {
	res, err := t.app.DB().NewQuery(`
		UPDATE {{ticket_types}}
		SET [[name]] = {:name}, [[price]] = {:price}, [[total]] = {:total},
			[[available]] = {:available}, [[reserved]] = {:reserved}, [[sold]] = {:sold},
			[[version]] = {:next}, [[updated_at]] = {:updated}
		WHERE [[uid]] = {:uid} AND [[version]] = {:version}`).
		Bind(dbx.Params{
			"uid":       tt.ID,
			"name":      tt.Name,
			"price":     formatPrice(tt.Price),
			"total":     tt.Total,
			"available": tt.Available,
			"reserved":  tt.Reserved,
			"sold":      tt.Sold,
			"version":   tt.Version,
			"next":      tt.Version + 1,
			"updated":   dateString(tt.UpdatedAt),
		}).Execute()
	if err != nil {
		return fmt.Errorf("save ticket type %s: %w", tt.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := t.GetTicketType(tt.ID); err != nil {
			return err
		}
		return fmt.Errorf("ticket type %s: %w", tt.ID, status.ErrConflict)
	}
	tt.Version++
	return nil
}

// orders

func orderFromRecord(r *core.Record) *models.Order {
	o := &models.Order{
		ID:          r.GetString("uid"),
		Reference:   r.GetString("reference"),
		UserID:      r.GetString("user_id"),
		Status:      models.OrderStatus(r.GetString("status")),
		AdminNote:   r.GetString("admin_note"),
		ApprovedAt:  getTime(r, "approved_at"),
		CompletedAt: getTime(r, "completed_at"),
		CancelledAt: getTime(r, "cancelled_at"),
	}
	if at := getTime(r, "ordered_at"); at != nil {
		o.OrderedAt = *at
	}
	if at := getTime(r, "updated_at"); at != nil {
		o.UpdatedAt = *at
	}
	return o
}

func setOrderFields(r *core.Record, o *models.Order) {
	r.Set("uid", o.ID)
	r.Set("reference", o.Reference)
	r.Set("user_id", o.UserID)
	r.Set("status", string(o.Status))
	r.Set("admin_note", o.AdminNote)
	setTime(r, "ordered_at", &o.OrderedAt)
	setTime(r, "updated_at", &o.UpdatedAt)
	setTime(r, "approved_at", o.ApprovedAt)
	setTime(r, "completed_at", o.CompletedAt)
	setTime(r, "cancelled_at", o.CancelledAt)
}

// attachLines loads the lines of all orders with one query.
func (t *tx) attachLines(orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*models.Order, len(orders))
	ids := make([]any, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	var records []*core.Record
	err := t.app.RecordQuery(collectionOrderLines).
		AndWhere(dbx.In("order_uid", ids...)).
		OrderBy("order_uid ASC", "position ASC").
		All(&records)
	if err != nil {
		return fmt.Errorf("load order lines: %w", err)
	}
	for _, r := range records {
		o, ok := byID[r.GetString("order_uid")]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(r.GetString("unit_price"))
		if err != nil {
			return fmt.Errorf("order %s line price: %w", o.ID, err)
		}
		o.Lines = append(o.Lines, models.OrderLine{
			TicketTypeID: r.GetString("ticket_type_uid"),
			Category:     models.Category(r.GetString("category")),
			Quantity:     r.GetInt("quantity"),
			UnitPrice:    price,
		})
	}
	return nil
}

func (t *tx) GetOrder(id string) (*models.Order, error) {
	r, err := t.app.FindFirstRecordByData(collectionOrders, "uid", id)
	if err != nil {
		return nil, notFound("order", id, err)
	}
	o := orderFromRecord(r)
	if err := t.attachLines([]*models.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (t *tx) ListOrders(filter models.OrderFilter) ([]*models.Order, error) {
	q := t.app.RecordQuery(collectionOrders)
	if filter.UserID != "" {
		q = q.AndWhere(dbx.HashExp{"user_id": filter.UserID})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]any, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		q = q.AndWhere(dbx.In("status", statuses...))
	}

	var records []*core.Record
	if err := q.OrderBy("ordered_at ASC", "uid ASC").All(&records); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders := make([]*models.Order, len(records))
	for i, r := range records {
		orders[i] = orderFromRecord(r)
	}
	if err := t.attachLines(orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (t *tx) CreateOrder(o *models.Order) error {
	orders, err := t.app.FindCollectionByNameOrId(collectionOrders)
	if err != nil {
		return err
	}
	lines, err := t.app.FindCollectionByNameOrId(collectionOrderLines)
	if err != nil {
		return err
	}

	r := core.NewRecord(orders)
	setOrderFields(r, o)
	if err := t.app.Save(r); err != nil {
		return fmt.Errorf("create order %s: %w", o.ID, err)
	}
	for i, l := range o.Lines {
		lr := core.NewRecord(lines)
		lr.Set("order_uid", o.ID)
		lr.Set("ticket_type_uid", l.TicketTypeID)
		lr.Set("category", string(l.Category))
		lr.Set("quantity", l.Quantity)
		lr.Set("unit_price", l.UnitPrice.String())
		lr.Set("position", i)
		if err := t.app.Save(lr); err != nil {
			return fmt.Errorf("create order %s line %d: %w", o.ID, i, err)
		}
	}
	return nil
}

// UpdateOrder writes status, note and timestamps. Lines never change after placement.
func (t *tx) UpdateOrder(o *models.Order, from models.OrderStatus) error {
	r, err := t.app.FindFirstRecordByData(collectionOrders, "uid", o.ID)
	if err != nil {
		return notFound("order", o.ID, err)
	}
	if current := r.GetString("status"); current != string(from) {
		return fmt.Errorf("order %s is %s, not %s: %w", o.ID, current, from, status.ErrConflict)
	}
	setOrderFields(r, o)
	if err := t.app.Save(r); err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	return nil
}

// queue entries

func queueEntryFromRecord(r *core.Record) *models.QueueEntry {
	e := &models.QueueEntry{
		ID:           r.GetString("uid"),
		TicketTypeID: r.GetString("ticket_type_uid"),
		UserID:       r.GetString("user_id"),
		Quantity:     r.GetInt("quantity"),
		Status:       models.QueueStatus(r.GetString("status")),
		FulfilledAt:  getTime(r, "fulfilled_at"),
	}
	if at := getTime(r, "joined_at"); at != nil {
		e.JoinedAt = *at
	}
	return e
}

func setQueueEntryFields(r *core.Record, e *models.QueueEntry) {
	r.Set("uid", e.ID)
	r.Set("ticket_type_uid", e.TicketTypeID)
	r.Set("user_id", e.UserID)
	r.Set("quantity", e.Quantity)
	r.Set("status", string(e.Status))
	setTime(r, "joined_at", &e.JoinedAt)
	setTime(r, "fulfilled_at", e.FulfilledAt)
}

func (t *tx) GetQueueEntry(id string) (*models.QueueEntry, error) {
	r, err := t.app.FindFirstRecordByData(collectionQueueEntries, "uid", id)
	if err != nil {
		return nil, notFound("queue entry", id, err)
	}
	return queueEntryFromRecord(r), nil
}

func (t *tx) ListQueueEntries(filter models.QueueFilter) ([]*models.QueueEntry, error) {
	where := dbx.HashExp{}
	if filter.TicketTypeID != "" {
		where["ticket_type_uid"] = filter.TicketTypeID
	}
	if filter.UserID != "" {
		where["user_id"] = filter.UserID
	}
	if filter.Status != "" {
		where["status"] = string(filter.Status)
	}

	q := t.app.RecordQuery(collectionQueueEntries)
	if len(where) > 0 {
		q = q.AndWhere(where)
	}
	var records []*core.Record
	if err := q.OrderBy("joined_at ASC", "uid ASC").All(&records); err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	out := make([]*models.QueueEntry, len(records))
	for i, r := range records {
		out[i] = queueEntryFromRecord(r)
	}
	return out, nil
}

func (t *tx) CreateQueueEntry(e *models.QueueEntry) error {
	collection, err := t.app.FindCollectionByNameOrId(collectionQueueEntries)
	if err != nil {
		return err
	}
	r := core.NewRecord(collection)
	setQueueEntryFields(r, e)
	if err := t.app.Save(r); err != nil {
		return fmt.Errorf("create queue entry %s: %w", e.ID, err)
	}
	return nil
}

func (t *tx) UpdateQueueEntry(e *models.QueueEntry) error {
	r, err := t.app.FindFirstRecordByData(collectionQueueEntries, "uid", e.ID)
	if err != nil {
		return notFound("queue entry", e.ID, err)
	}
	setQueueEntryFields(r, e)
	if err := t.app.Save(r); err != nil {
		return fmt.Errorf("update queue entry %s: %w", e.ID, err)
	}
	return nil
}

func (t *tx) Reset(defaults []*models.TicketType) error {
	for _, table := range []string{collectionOrderLines, collectionOrders, collectionQueueEntries, collectionTicketTypes} {
		if _, err := t.app.DB().NewQuery("DELETE FROM {{" + table + "}}").Execute(); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	for _, d := range defaults {
		if err := t.CreateTicketType(d); err != nil {
			return err
		}
	}
	return nil
}

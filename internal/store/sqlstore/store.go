package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ticket-workflow/internal/services"
	"ticket-workflow/internal/status"
	"ticket-workflow/models"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

type Dialect int

const (
	Postgres Dialect = iota
	MySQL
)

func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	}
	return 0, fmt.Errorf("unsupported sql driver %q", driver)
}

// Store keeps the workflow in a Postgres or MySQL database. Ticket type rows
// are locked with SELECT ... FOR UPDATE and written back under their version.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to driver ("postgres" or "mysql") and pings it. MySQL DSNs
// are forced to parse times in UTC and to report matched rows.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	driverName := "postgres"
	if dialect == MySQL {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		cfg.ClientFoundRows = true
		dsn = cfg.FormatDSN()
		driverName = "mysql"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(db, dialect), nil
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx services.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&tx{ctx: ctx, tx: sqlTx, dialect: s.dialect}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// rebind rewrites ? placeholders for dialects that number them.
func rebind(dialect Dialect, query string) string {
	if dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type tx struct {
	ctx     context.Context
	tx      *sql.Tx
	dialect Dialect
}

func (t *tx) exec(query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(t.ctx, rebind(t.dialect, query), args...)
}

func (t *tx) query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(t.ctx, rebind(t.dialect, query), args...)
}

func (t *tx) queryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(t.ctx, rebind(t.dialect, query), args...)
}

type scanner interface {
	Scan(dest ...any) error
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

const ticketTypeColumns = `id, category, name, price, total, available, reserved, sold, version, updated_at`

func scanTicketType(row scanner) (*models.TicketType, error) {
	var t models.TicketType
	var category string
	if err := row.Scan(&t.ID, &category, &t.Name, &t.Price, &t.Total, &t.Available, &t.Reserved, &t.Sold, &t.Version, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Category = models.Category(category)
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func (t *tx) GetTicketType(id string) (*models.TicketType, error) {
	row := t.queryRow(`SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id = ? FOR UPDATE`, id)
	tt, err := scanTicketType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.NotFound("ticket type", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query ticket type: %w", err)
	}
	return tt, nil
}

func (t *tx) ListTicketTypes() ([]*models.TicketType, error) {
	rows, err := t.query(`SELECT ` + ticketTypeColumns + ` FROM ticket_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query ticket types: %w", err)
	}
	defer rows.Close()

	var out []*models.TicketType
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket type: %w", err)
		}
		out = append(out, tt)
	}
	return out, rows.Err()
}

func (t *tx) CreateTicketType(tt *models.TicketType) error {
	_, err := t.exec(`
		INSERT INTO ticket_types (`+ticketTypeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tt.ID, string(tt.Category), tt.Name, tt.Price, tt.Total, tt.Available,
		tt.Reserved, tt.Sold, tt.Version, tt.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert ticket type: %w", err)
	}
	return nil
}

func (t *tx) SaveTicketType(tt *models.TicketType) error {
	result, err := t.exec(`
		UPDATE ticket_types
		SET category = ?, name = ?, price = ?, total = ?, available = ?, reserved = ?, sold = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(tt.Category), tt.Name, tt.Price, tt.Total, tt.Available, tt.Reserved, tt.Sold,
		tt.UpdatedAt.UTC(), tt.ID, tt.Version,
	)
	if err != nil {
		return fmt.Errorf("update ticket type: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		err := t.queryRow(`SELECT 1 FROM ticket_types WHERE id = ?`, tt.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return status.NotFound("ticket type", tt.ID)
		}
		return fmt.Errorf("ticket type %s: %w", tt.ID, status.ErrConflict)
	}
	tt.Version++
	return nil
}

const orderColumns = `id, reference, user_id, status, admin_note, ordered_at, updated_at, approved_at, completed_at, cancelled_at`

func scanOrder(row scanner) (*models.Order, error) {
	var o models.Order
	var st string
	var approved, completed, cancelled sql.NullTime
	if err := row.Scan(&o.ID, &o.Reference, &o.UserID, &st, &o.AdminNote, &o.OrderedAt, &o.UpdatedAt, &approved, &completed, &cancelled); err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(st)
	o.OrderedAt = o.OrderedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	o.ApprovedAt = timePtr(approved)
	o.CompletedAt = timePtr(completed)
	o.CancelledAt = timePtr(cancelled)
	return &o, nil
}

func (t *tx) GetOrder(id string) (*models.Order, error) {
	o, err := scanOrder(t.queryRow(`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.NotFound("order", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	if err := t.attachLines([]*models.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (t *tx) ListOrders(filter models.OrderFilter) ([]*models.Order, error) {
	var where []string
	var args []any
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}

	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ordered_at, id"

	rows, err := t.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := t.attachLines(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *tx) attachLines(orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*models.Order, len(orders))
	args := make([]any, 0, len(orders))
	for _, o := range orders {
		o.Lines = nil
		byID[o.ID] = o
		args = append(args, o.ID)
	}

	rows, err := t.query(`
		SELECT order_id, ticket_type_id, category, quantity, unit_price
		FROM order_lines WHERE order_id IN (`+placeholders(len(args))+`)
		ORDER BY order_id, line_no`, args...)
	if err != nil {
		return fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID, category string
		var line models.OrderLine
		if err := rows.Scan(&orderID, &line.TicketTypeID, &category, &line.Quantity, &line.UnitPrice); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		line.Category = models.Category(category)
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, line)
		}
	}
	return rows.Err()
}

func (t *tx) CreateOrder(o *models.Order) error {
	_, err := t.exec(`
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Reference, o.UserID, string(o.Status), o.AdminNote, o.OrderedAt.UTC(), o.UpdatedAt.UTC(),
		nullTime(o.ApprovedAt), nullTime(o.CompletedAt), nullTime(o.CancelledAt),
	)
	if isActiveOrderViolation(err) {
		return fmt.Errorf("user %s: %w", o.UserID, status.ErrActiveOrder)
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for i, line := range o.Lines {
		_, err := t.exec(`
			INSERT INTO order_lines (order_id, line_no, ticket_type_id, category, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?, ?)`,
			o.ID, i, line.TicketTypeID, string(line.Category), line.Quantity, line.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

func isActiveOrderViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && pqErr.Constraint == activeOrderIndex
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062 && strings.Contains(myErr.Message, activeOrderIndex)
	}
	return false
}

// UpdateOrder writes the mutable order fields. Lines never change after
// placement. A concurrent transition of the same order makes the guarded
// UPDATE match nothing, which surfaces as status.ErrConflict.
func (t *tx) UpdateOrder(o *models.Order, from models.OrderStatus) error {
	result, err := t.exec(`
		UPDATE orders
		SET status = ?, admin_note = ?, updated_at = ?, approved_at = ?, completed_at = ?, cancelled_at = ?
		WHERE id = ? AND status = ?`,
		string(o.Status), o.AdminNote, o.UpdatedAt.UTC(),
		nullTime(o.ApprovedAt), nullTime(o.CompletedAt), nullTime(o.CancelledAt), o.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if rows == 0 {
		var exists int
		err := t.queryRow(`SELECT 1 FROM orders WHERE id = ?`, o.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return status.NotFound("order", o.ID)
		}
		if err != nil {
			return fmt.Errorf("query order: %w", err)
		}
		return fmt.Errorf("order %s is no longer %s: %w", o.ID, from, status.ErrConflict)
	}
	return nil
}

const queueColumns = `id, ticket_type_id, user_id, quantity, status, joined_at, fulfilled_at`

func scanQueueEntry(row scanner) (*models.QueueEntry, error) {
	var e models.QueueEntry
	var st string
	var fulfilled sql.NullTime
	if err := row.Scan(&e.ID, &e.TicketTypeID, &e.UserID, &e.Quantity, &st, &e.JoinedAt, &fulfilled); err != nil {
		return nil, err
	}
	e.Status = models.QueueStatus(st)
	e.JoinedAt = e.JoinedAt.UTC()
	e.FulfilledAt = timePtr(fulfilled)
	return &e, nil
}

func (t *tx) GetQueueEntry(id string) (*models.QueueEntry, error) {
	e, err := scanQueueEntry(t.queryRow(`SELECT `+queueColumns+` FROM queue_entries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.NotFound("queue entry", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query queue entry: %w", err)
	}
	return e, nil
}

func (t *tx) ListQueueEntries(filter models.QueueFilter) ([]*models.QueueEntry, error) {
	var where []string
	var args []any
	if filter.TicketTypeID != "" {
		where = append(where, "ticket_type_id = ?")
		args = append(args, filter.TicketTypeID)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	q := `SELECT ` + queueColumns + ` FROM queue_entries`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY joined_at, id"

	rows, err := t.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query queue entries: %w", err)
	}
	defer rows.Close()

	var out []*models.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *tx) CreateQueueEntry(e *models.QueueEntry) error {
	_, err := t.exec(`
		INSERT INTO queue_entries (`+queueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TicketTypeID, e.UserID, e.Quantity, string(e.Status), e.JoinedAt.UTC(), nullTime(e.FulfilledAt),
	)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

func (t *tx) UpdateQueueEntry(e *models.QueueEntry) error {
	result, err := t.exec(`
		UPDATE queue_entries SET quantity = ?, status = ?, fulfilled_at = ? WHERE id = ?`,
		e.Quantity, string(e.Status), nullTime(e.FulfilledAt), e.ID,
	)
	if err != nil {
		return fmt.Errorf("update queue entry: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return status.NotFound("queue entry", e.ID)
	}
	return nil
}

func (t *tx) Reset(defaults []*models.TicketType) error {
	for _, table := range []string{"order_lines", "orders", "queue_entries", "ticket_types"} {
		if _, err := t.exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for _, d := range defaults {
		if err := t.CreateTicketType(d); err != nil {
			return err
		}
	}
	return nil
}

var _ services.Store = (*Store)(nil)

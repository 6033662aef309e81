package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// activeOrderIndex allows at most one pending or approved order per user.
const activeOrderIndex = "orders_one_active_per_user"

func (s *Store) schema() []string {
	ts := "TIMESTAMPTZ"
	active := ""
	if s.dialect == MySQL {
		ts = "DATETIME(6)"
		// no partial indexes in MySQL; NULLs never collide in a unique key
		active = `,
			active_user_id VARCHAR(64) AS (CASE WHEN status IN ('pending', 'approved') THEN user_id END) STORED,
			UNIQUE KEY ` + activeOrderIndex + ` (active_user_id)`
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ticket_types (
			id VARCHAR(64) PRIMARY KEY,
			category VARCHAR(16) NOT NULL,
			name VARCHAR(200) NOT NULL DEFAULT '',
			price NUMERIC(12,2) NULL,
			total INT NOT NULL,
			available INT NOT NULL,
			reserved INT NOT NULL DEFAULT 0,
			sold INT NOT NULL DEFAULT 0,
			version INT NOT NULL DEFAULT 0,
			updated_at {{ts}} NOT NULL,
			CHECK (available >= 0 AND reserved >= 0 AND sold >= 0),
			CHECK (available + reserved + sold = total)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(64) PRIMARY KEY,
			reference VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL,
			admin_note TEXT NOT NULL,
			ordered_at {{ts}} NOT NULL,
			updated_at {{ts}} NOT NULL,
			approved_at {{ts}} NULL,
			completed_at {{ts}} NULL,
			cancelled_at {{ts}} NULL{{active}}
		)`,
		`CREATE TABLE IF NOT EXISTS order_lines (
			order_id VARCHAR(64) NOT NULL,
			line_no INT NOT NULL,
			ticket_type_id VARCHAR(64) NOT NULL,
			category VARCHAR(16) NOT NULL,
			quantity INT NOT NULL,
			unit_price NUMERIC(12,2) NOT NULL,
			PRIMARY KEY (order_id, line_no)
		)`,
		`CREATE TABLE IF NOT EXISTS queue_entries (
			id VARCHAR(64) PRIMARY KEY,
			ticket_type_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			quantity INT NOT NULL,
			status VARCHAR(16) NOT NULL,
			joined_at {{ts}} NOT NULL,
			fulfilled_at {{ts}} NULL
		)`,
	}
	if s.dialect == Postgres {
		stmts = append(stmts, `CREATE UNIQUE INDEX IF NOT EXISTS `+activeOrderIndex+`
			ON orders (user_id) WHERE status IN ('pending', 'approved')`)
	}
	for i := range stmts {
		stmts[i] = strings.ReplaceAll(stmts[i], "{{ts}}", ts)
		stmts[i] = strings.ReplaceAll(stmts[i], "{{active}}", active)
	}
	return stmts
}

// Migrate creates the workflow tables when they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

package retrieve

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/verdict-engine/go-core/pkg/attribute"
)

// SQLConfig configures the SQL attribute retriever.
type SQLConfig struct {
	// Query is the single-column query run per lookup. It receives the
	// subject as the first argument and the attribute key as the second.
	Query string
	// ContextKey names the request context entry holding the subject.
	// Defaults to "subject".
	ContextKey string
}

// SQL returns a retriever running a single-column query per attribute
// lookup. No rows resolves to nil, one row to its value, several rows to a
// slice of values. []byte columns come back as strings.
func SQL(db *sql.DB, cfg SQLConfig) (attribute.Func, error) {
	if db == nil {
		return nil, fmt.Errorf("SQL retriever needs a database")
	}
	if cfg.Query == "" {
		return nil, fmt.Errorf("SQL retriever needs a query")
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = "subject"
	}

	return func(ctx context.Context, key string, reqCtx interface{}) (interface{}, error) {
		subject, ok := contextString(reqCtx, cfg.ContextKey)
		if !ok {
			return nil, nil
		}

		rows, err := db.QueryContext(ctx, cfg.Query, subject, key)
		if err != nil {
			return nil, fmt.Errorf("attribute query: %w", err)
		}
		defer rows.Close()

		var values []interface{}
		for rows.Next() {
			var value interface{}
			if err := rows.Scan(&value); err != nil {
				return nil, fmt.Errorf("scan attribute row: %w", err)
			}
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			values = append(values, value)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("attribute rows: %w", err)
		}

		switch len(values) {
		case 0:
			return nil, nil
		case 1:
			return values[0], nil
		default:
			return values, nil
		}
	}, nil
}

package repo

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"

	"github.com/invoiceflow/assistant/internal/agent/model"
	errx "github.com/invoiceflow/assistant/internal/core/error"
	logx "github.com/invoiceflow/assistant/pkg/logger"
)

var (
	tenantParamRe = regexp.MustCompile(`:user_id\b`)
	// A single leading colon marks a named parameter; a double colon is a
	// PostgreSQL cast and must not trip the unbound-parameter check.
	namedParamRe = regexp.MustCompile(`(^|[^:]):([a-zA-Z_]\w*)`)
)

// PostgresInvoiceStore executes sanitized, tenant-scoped statements
// against the shared relational store. It accepts only the parameter
// form the sanitizer emits (:user_id); any other named parameter left
// in the statement is a compilation defect and is rejected rather than
// interpolated.
type PostgresInvoiceStore struct {
	db *sql.DB
}

func NewPostgresInvoiceStore(db *sql.DB) *PostgresInvoiceStore {
	return &PostgresInvoiceStore{db: db}
}

func (s *PostgresInvoiceStore) Execute(ctx context.Context, query string, tenantID string) ([]map[string]any, error) {
	rebound, args, err := rebindTenantParam(query, tenantID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, rebound, args...)
	if err != nil {
		logx.Error().Err(err).Str("tenant_id", tenantID).Msg("query execution failed")
		return nil, errx.WrapPostgres(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errx.WrapPostgres(err)
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errx.WrapPostgres(err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapPostgres(err)
	}

	logx.Debug().Str("tenant_id", tenantID).Int("rows", len(results)).Msg("query executed")
	return results, nil
}

// rebindTenantParam converts the sanitizer's :user_id placeholder to a
// positional $1 argument. The tenant id is bound as an integer when it
// parses as one, matching the schema's integer user_id column.
func rebindTenantParam(query string, tenantID string) (string, []any, error) {
	rebound := tenantParamRe.ReplaceAllString(query, "$$1")
	if m := namedParamRe.FindStringSubmatch(rebound); m != nil {
		return "", nil, fmt.Errorf("statement carries unbound parameter :%s", m[2])
	}

	var arg any = tenantID
	if n, err := strconv.Atoi(tenantID); err == nil {
		arg = n
	}
	if rebound == query {
		// no tenant placeholder present (lookup-table query)
		return rebound, nil, nil
	}
	return rebound, []any{arg}, nil
}

var _ model.QueryExecutor = (*PostgresInvoiceStore)(nil)

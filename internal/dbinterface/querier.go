// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dbinterface

import (
	"context"
	"database/sql"
	"strings"
)

// Querier is the read/write surface shared by *sql.DB, *sql.Tx and the
// database wrapper. Stores depend on this instead of a concrete handle so
// they work both standalone and inside transactions.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxQuerier extends Querier with transaction control.
type TxQuerier interface {
	Querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// BuildQueryWithPlaceholders expands a query template containing a single
// %s verb with groups of comma-separated placeholders, e.g.
// ("INSERT ... VALUES %s", 2, 3) -> "INSERT ... VALUES (?,?),(?,?),(?,?)".
func BuildQueryWithPlaceholders(template string, placeholdersPerGroup, groups int) string {
	if groups <= 0 || placeholdersPerGroup <= 0 {
		return template
	}

	group := "(" + strings.TrimSuffix(strings.Repeat("?,", placeholdersPerGroup), ",") + ")"

	var sb strings.Builder
	sb.Grow(groups * (len(group) + 1))
	for i := 0; i < groups; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(group)
	}

	return strings.Replace(template, "%s", sb.String(), 1)
}

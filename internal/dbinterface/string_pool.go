// Copyright (c) 2025, the seedbridge contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dbinterface

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLite has a SQLITE_MAX_VARIABLE_NUMBER limit (default 999). Stay
// conservative so the batch paths never hit it.
const maxParams = 900

// InternStrings interns one or more string values and returns their IDs.
// A torrent name appears once per target site in torrent_sites, so record
// rows reference the pool instead of repeating the name. All values must
// be non-empty. Designed for use within transactions.
func InternStrings(ctx context.Context, tx Querier, values ...string) ([]int64, error) {
	if len(values) == 0 {
		return []int64{}, nil
	}

	// Fast path for a single string, avoids RETURNING overhead
	if len(values) == 1 {
		if values[0] == "" {
			return nil, fmt.Errorf("value at index 0 is empty")
		}

		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO string_pool (value) VALUES (?)",
			values[0])
		if err != nil {
			return nil, err
		}

		ids, err := GetStringID(ctx, tx, values[0])
		if err != nil {
			return nil, err
		}
		if !ids[0].Valid {
			return nil, fmt.Errorf("failed to get ID for interned string %q", values[0])
		}
		return []int64{ids[0].Int64}, nil
	}

	for i, value := range values {
		if value == "" {
			return nil, fmt.Errorf("value at index %d is empty", i)
		}
	}

	// Deduplicate before inserting
	uniqueValues := make(map[string]struct{}, len(values))
	valuesList := make([]string, 0, len(values))
	for _, v := range values {
		if _, seen := uniqueValues[v]; seen {
			continue
		}
		uniqueValues[v] = struct{}{}
		valuesList = append(valuesList, v)
	}

	queryTemplate := "INSERT OR IGNORE INTO string_pool (value) VALUES %s"

	for i := 0; i < len(valuesList); i += maxParams {
		end := i + maxParams
		if end > len(valuesList) {
			end = len(valuesList)
		}
		chunk := valuesList[i:end]

		args := make([]any, len(chunk))
		for j, v := range chunk {
			args[j] = v
		}

		query := BuildQueryWithPlaceholders(queryTemplate, 1, len(chunk))

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("failed to batch insert strings: %w", err)
		}
	}

	ids, err := GetStringID(ctx, tx, values...)
	if err != nil {
		return nil, err
	}

	result := make([]int64, len(ids))
	for i, id := range ids {
		if !id.Valid {
			return nil, fmt.Errorf("failed to get ID for interned string %q", values[i])
		}
		result[i] = id.Int64
	}

	return result, nil
}

// GetString retrieves string values from the string_pool by their IDs,
// in the same order as the input IDs.
func GetString(ctx context.Context, tx Querier, ids ...int64) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}

	if len(ids) == 1 {
		var value string
		err := tx.QueryRowContext(ctx, "SELECT value FROM string_pool WHERE id = ?", ids[0]).Scan(&value)
		if err != nil {
			return nil, fmt.Errorf("failed to get string from pool: %w", err)
		}
		return []string{value}, nil
	}

	results := make([]string, len(ids))
	idToPositions := make(map[int64][]int, len(ids))
	for i, id := range ids {
		idToPositions[id] = append(idToPositions[id], i)
	}

	for i := 0; i < len(ids); i += maxParams {
		end := i + maxParams
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]

		args := make([]any, len(chunk))
		for j, id := range chunk {
			args[j] = id
		}

		var sb strings.Builder
		const queryPrefix = "SELECT id, value FROM string_pool WHERE id IN ("
		sb.Grow(len(queryPrefix) + (len(chunk) * 2) + 1)
		sb.WriteString(queryPrefix)
		for j := range chunk {
			if j > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("?")
		}
		sb.WriteString(")")

		rows, err := tx.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query string pool: %w", err)
		}

		for rows.Next() {
			var id int64
			var value string
			if err := rows.Scan(&id, &value); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan string pool row: %w", err)
			}
			for _, idx := range idToPositions[id] {
				results[idx] = value
			}
		}

		if err = rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error iterating string pool rows: %w", err)
		}
		rows.Close()
	}

	return results, nil
}

// GetStringID retrieves the IDs of string values without creating them.
// Returns sql.NullInt64{Valid: false} for strings that do not exist.
func GetStringID(ctx context.Context, tx Querier, values ...string) ([]sql.NullInt64, error) {
	if len(values) == 0 {
		return []sql.NullInt64{}, nil
	}

	if len(values) == 1 {
		if values[0] == "" {
			return []sql.NullInt64{{Valid: false}}, nil
		}

		var id int64
		err := tx.QueryRowContext(ctx, "SELECT id FROM string_pool WHERE value = ?", values[0]).Scan(&id)
		if err != nil {
			if err == sql.ErrNoRows {
				return []sql.NullInt64{{Valid: false}}, nil
			}
			return nil, fmt.Errorf("failed to get string ID from pool: %w", err)
		}

		return []sql.NullInt64{{Int64: id, Valid: true}}, nil
	}

	results := make([]sql.NullInt64, len(values))

	uniqueValues := make(map[string][]int, len(values))
	valuesList := make([]string, 0, len(values))
	for i, v := range values {
		if v == "" {
			results[i] = sql.NullInt64{Valid: false}
			continue
		}
		if _, seen := uniqueValues[v]; !seen {
			valuesList = append(valuesList, v)
		}
		uniqueValues[v] = append(uniqueValues[v], i)
	}

	if len(valuesList) == 0 {
		return results, nil
	}

	valueToID := make(map[string]int64, len(valuesList))

	for i := 0; i < len(valuesList); i += maxParams {
		end := i + maxParams
		if end > len(valuesList) {
			end = len(valuesList)
		}
		chunk := valuesList[i:end]

		args := make([]any, len(chunk))
		for j, v := range chunk {
			args[j] = v
		}

		var sb strings.Builder
		const queryPrefix = "SELECT id, value FROM string_pool WHERE value IN ("
		sb.Grow(len(queryPrefix) + (len(chunk) * 2) + 1)
		sb.WriteString(queryPrefix)
		for j := range chunk {
			if j > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("?")
		}
		sb.WriteString(")")

		rows, err := tx.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query string pool: %w", err)
		}

		for rows.Next() {
			var id int64
			var value string
			if err := rows.Scan(&id, &value); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan string pool row: %w", err)
			}
			valueToID[value] = id
		}

		if err = rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error iterating string pool rows: %w", err)
		}
		rows.Close()
	}

	for value, indices := range uniqueValues {
		if id, exists := valueToID[value]; exists {
			for _, idx := range indices {
				results[idx] = sql.NullInt64{Int64: id, Valid: true}
			}
		}
	}

	return results, nil
}

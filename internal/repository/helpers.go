package repository

import (
	"database/sql"
	"errors"
)

// HandleNotFound turns sql.ErrNoRows into a nil result with no error, for
// Find* lookups where a missing row is expected.
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

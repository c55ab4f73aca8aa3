package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-marketplace/core"
)

var errStoreNotConfigured = errors.New("sqlstore: store is not configured")

func notConfigured(store string) error {
	return fmt.Errorf("%w: %s", errStoreNotConfigured, store)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

// notFoundOr translates sql.ErrNoRows into a core not found error and leaves
// every other error untouched.
func notFoundOr(err error, entity string, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %q", core.ErrNotFound, entity, strings.TrimSpace(id))
	}
	return err
}

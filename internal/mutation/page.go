package mutation

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// RowError reports a missing row as notFound for id and wraps any other
// failure with what the store was doing.
func RowError(err, notFound error, id int64, doing string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w %d", notFound, id)
	}
	return fmt.Errorf("%s: %w", doing, err)
}

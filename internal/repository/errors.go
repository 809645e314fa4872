package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"labdash/internal/models"
)

// unavailableCodes are SQLSTATEs outside class 08 that still mean the server
// cannot take work right now
var unavailableCodes = map[pq.ErrorCode]struct{}{
	"57P01": {}, // admin_shutdown
	"57P02": {}, // crash_shutdown
	"57P03": {}, // cannot_connect_now
	"53300": {}, // too_many_connections
}

// classifyError maps driver errors onto the storage error taxonomy
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Class() == "08" {
			return &models.StorageUnavailableError{Op: op, Err: err}
		}
		if _, ok := unavailableCodes[pqErr.Code]; ok {
			return &models.StorageUnavailableError{Op: op, Err: err}
		}
		return &models.StorageError{Op: op, Reason: pqErr.Message, Err: err}
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) {
		return &models.StorageUnavailableError{Op: op, Err: err}
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}

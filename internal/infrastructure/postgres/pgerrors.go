package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jhoicas/merma-api/internal/domain"
)

// Códigos SQLSTATE que el dominio distingue.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// mapPgError traduce violaciones de constraint a errores de dominio; el resto se envuelve con op.
func mapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrDuplicate, pgErr.ConstraintName)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrUnknownProduct, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

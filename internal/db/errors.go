package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
)

// Коды SQLSTATE, которые имеют смысл для бизнес-логики
const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
	codeForeignKey      = "23503"
)

// translate переводит ошибку драйвера в таксономию apperr
func translate(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Wrap(apperr.NotFound, err, "%s", msg)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return apperr.Wrap(apperr.Conflict, err, "%s", msg)
		case codeCheckViolation:
			if pgErr.ConstraintName == "users_points_non_negative" {
				return apperr.Wrap(apperr.InsufficientFunds, err, "недостаточно баллов")
			}
			return apperr.Wrap(apperr.InvalidInput, err, "%s", msg)
		case codeForeignKey:
			return apperr.Wrap(apperr.NotFound, err, "%s", msg)
		}
	}

	if errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.Unavailable, err, "запрос отменен")
	}
	return apperr.Wrap(apperr.Unavailable, err, "%s", msg)
}

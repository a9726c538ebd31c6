package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassifiers(t *testing.T) {
	invalidUUID := fmt.Errorf("catalog: get product: %w", &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`})
	missingParent := &pgconn.PgError{Code: "23503"}
	duplicate := &pgconn.PgError{Code: "23505"}

	cases := []struct {
		name       string
		err        error
		notFound   bool
		invalid    bool
		foreignKey bool
		unique     bool
	}{
		{name: "no rows", err: fmt.Errorf("wrapped: %w", pgx.ErrNoRows), notFound: true},
		{name: "malformed uuid", err: invalidUUID, notFound: true, invalid: true},
		{name: "foreign key", err: missingParent, foreignKey: true},
		{name: "unique", err: duplicate, unique: true},
		{name: "other", err: errors.New("connection reset")},
	}
	for _, tc := range cases {
		if got := IsNotFound(tc.err); got != tc.notFound {
			t.Errorf("%s: IsNotFound = %v, want %v", tc.name, got, tc.notFound)
		}
		if got := IsInvalidText(tc.err); got != tc.invalid {
			t.Errorf("%s: IsInvalidText = %v, want %v", tc.name, got, tc.invalid)
		}
		if got := IsForeignKeyViolation(tc.err); got != tc.foreignKey {
			t.Errorf("%s: IsForeignKeyViolation = %v, want %v", tc.name, got, tc.foreignKey)
		}
		if got := IsUniqueViolation(tc.err); got != tc.unique {
			t.Errorf("%s: IsUniqueViolation = %v, want %v", tc.name, got, tc.unique)
		}
	}
}

package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/twofactor/pkg/pg"
	"github.com/dmitrymomot/twofactor/svc/twofactor"
)

// Accounts reads accounts from a table owned by the user service. The table must
// have id (uuid) and email (text) columns.
type Accounts struct {
	pool  *pgxpool.Pool
	query string
}

// NewAccounts returns a directory over table, which may be schema qualified.
func NewAccounts(pool *pgxpool.Pool, table string) *Accounts {
	return &Accounts{
		pool:  pool,
		query: fmt.Sprintf(`SELECT id, email FROM %s WHERE id = $1`, pgx.Identifier(strings.Split(table, ".")).Sanitize()),
	}
}

var _ twofactor.AccountDirectory = (*Accounts)(nil)

func (a *Accounts) GetAccountByID(ctx context.Context, id uuid.UUID) (*twofactor.Account, error) {
	var acc twofactor.Account
	if err := a.pool.QueryRow(ctx, a.query, id).Scan(&acc.ID, &acc.Email); err != nil {
		if pg.IsNotFoundError(err) {
			return nil, twofactor.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &acc, nil
}

package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// UserRepository reads display names owned by the auth system.
type UserRepository interface {
	Names(ctx context.Context, userIDs []int64) (map[int64]string, error)
}

type UserRepo struct {
	db sqlx.ExtContext
}

func NewUserRepo(db sqlx.ExtContext) *UserRepo {
	return &UserRepo{db: db}
}

// Names returns the names of the known users among userIDs.
func (r *UserRepo) Names(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}
	var rows []struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}
	if err := sqlx.SelectContext(ctx, r.db, &rows, `SELECT id, name FROM users WHERE id = ANY($1)`, pq.Array(userIDs)); err != nil {
		return nil, err
	}
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}

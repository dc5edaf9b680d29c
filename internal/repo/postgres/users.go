package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/eventreg/internal/domain/user"
	"github.com/geocoder89/eventreg/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrEmailTaken = errors.New("email already in use")

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) Create(ctx context.Context, name, email string) (user.User, error) {
	u := user.User{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}

	err := r.prom.ObserveDB("users.create", func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO users (name, email) VALUES ($1, $2) RETURNING id`,
			u.Name, u.Email,
		).Scan(&u.ID)
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return user.User{}, ErrEmailTaken
		}
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id int64) (user.User, error) {
	var u user.User

	err := r.prom.ObserveDB("users.get_by_id", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, name, email FROM users WHERE id = $1`,
			id,
		).Scan(&u.ID, &u.Name, &u.Email)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, fmt.Errorf("get user %d: %w", id, err)
	}

	return u, nil
}

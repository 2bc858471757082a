package joblock

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Locker built on session-level advisory locks. The lock lives
// as long as the pooled connection is held, so ttl is ignored.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) TryLock(ctx context.Context, name string, _ time.Duration) (Unlock, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn for %s: %w", name, err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, keyPrefix+name).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock %s: %w", name, err)
	}
	if !ok {
		conn.Release()
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, keyPrefix+name); err != nil {
			return fmt.Errorf("advisory unlock %s: %w", name, err)
		}
		return nil
	}, nil
}

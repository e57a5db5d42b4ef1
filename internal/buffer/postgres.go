package buffer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTrajectoriesTable = `CREATE TABLE IF NOT EXISTS trajectories (
  id          UUID PRIMARY KEY,
  actor_id    TEXT NOT NULL DEFAULT '',
  frame_count BIGINT NOT NULL DEFAULT 0,
  payload     BYTEA NOT NULL,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresQueue stores pending trajectories in the trajectories table.
// Dequeue claims and deletes one row atomically, so several learner replicas
// can share the table.
type PostgresQueue struct {
	pool     *pgxpool.Pool
	capacity int
	policy   string
}

func NewPostgresQueue(ctx context.Context, dsn string, capacity int, policy string) (*PostgresQueue, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if policy == "" {
		policy = PolicyFIFO
	}
	if err := validPolicy(policy); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTrajectoriesTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create trajectories table: %w", err)
	}
	return &PostgresQueue{pool: pool, capacity: capacity, policy: policy}, nil
}

func (q *PostgresQueue) Enqueue(ctx context.Context, item Item) error {
	if q.capacity > 0 {
		n, err := q.Size(ctx)
		if err != nil {
			return err
		}
		if n >= q.capacity {
			return ErrBufferFull
		}
	}
	data, err := marshalItem(item)
	if err != nil {
		return err
	}
	createdAt := item.EnqueuedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = q.pool.Exec(ctx,
		`INSERT INTO trajectories (id, actor_id, frame_count, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), item.ActorID, item.FrameCount, data, createdAt,
	)
	return err
}

func (q *PostgresQueue) Dequeue(ctx context.Context) (Item, error) {
	order := "ASC"
	if q.policy == PolicyFreshness {
		order = "DESC"
	}
	var data []byte
	err := q.pool.QueryRow(ctx,
		`DELETE FROM trajectories WHERE id = (
  SELECT id FROM trajectories ORDER BY created_at `+order+` LIMIT 1 FOR UPDATE SKIP LOCKED
) RETURNING payload`,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrBufferEmpty
	}
	if err != nil {
		return Item{}, err
	}
	return unmarshalItem(data)
}

func (q *PostgresQueue) Size(ctx context.Context) (int, error) {
	var n int
	err := q.pool.QueryRow(ctx, `SELECT count(*) FROM trajectories`).Scan(&n)
	return n, err
}

func (q *PostgresQueue) Close() error {
	q.pool.Close()
	return nil
}

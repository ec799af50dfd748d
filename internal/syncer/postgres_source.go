package syncer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresSource reads trigger rows straight from the topology database,
// bypassing the container-manager API. Useful when the collector runs
// next to the database.
type PostgresSource struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresSource(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresSource, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing topology DSN: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to topology database: %w", err)
	}
	return &PostgresSource{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (s *PostgresSource) Close() {
	s.pool.Close()
}

const triggerQuery = `
SELECT t.id, t.name, t.enabled,
       t.src_addr, t.dst_addr, t.src_or_dst_addr, t.protocol,
       t.min_bytes, t.min_kbps, t.min_mbps, t.min_pps,
       t.action_type, t.action_message, t.rate_limit_kbps, t.cooldown_seconds
FROM triggers t
JOIN topologies tp ON tp.name = t.topology_name
WHERE tp.is_active
ORDER BY t.id`

func (s *PostgresSource) Fetch(ctx context.Context) ([]Row, error) {
	rows, err := s.pool.Query(ctx, triggerQuery)
	if err != nil {
		return nil, fmt.Errorf("querying triggers: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.ID, &r.Name, &r.Enabled,
			&r.SrcAddr, &r.DstAddr, &r.SrcOrDstAddr, &r.Protocol,
			&r.MinBytes, &r.MinKbps, &r.MinMbps, &r.MinPPS,
			&r.ActionType, &r.ActionMessage, &r.RateLimitKbps, &r.CooldownSeconds,
		); err != nil {
			return nil, fmt.Errorf("scanning trigger row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trigger rows: %w", err)
	}
	return out, nil
}

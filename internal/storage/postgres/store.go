package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"streamSwap/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS tokens (
	chain_id   BIGINT      NOT NULL,
	address    TEXT        NOT NULL,
	decimals   SMALLINT    NOT NULL,
	symbol     TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, address)
)`

// Store persists token metadata in Postgres for reuse across restarts.
type Store struct {
	pool    *pgxpool.Pool
	chainID uint64
}

func NewStore(ctx context.Context, dsn string, chainID uint64) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, chainID: chainID}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tokens table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create tokens table: %w", err)
	}
	return nil
}

// LoadToken returns stored metadata for a token address.
func (s *Store) LoadToken(ctx context.Context, address string) (model.TokenInfo, bool, error) {
	var (
		info     model.TokenInfo
		decimals int16
	)
	row := s.pool.QueryRow(ctx, `
		SELECT address, decimals, symbol FROM tokens WHERE chain_id=$1 AND address=$2
	`, int64(s.chainID), strings.ToLower(address))
	if err := row.Scan(&info.Address, &decimals, &info.Symbol); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TokenInfo{}, false, nil
		}
		return model.TokenInfo{}, false, err
	}
	info.Decimals = uint8(decimals)
	return info, true, nil
}

// UpsertTokens inserts or updates token metadata.
func (s *Store) UpsertTokens(ctx context.Context, tokens []model.TokenInfo) error {
	if len(tokens) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, token := range tokens {
		batch.Queue(`
			INSERT INTO tokens (chain_id, address, decimals, symbol, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
			ON CONFLICT (chain_id, address)
			DO UPDATE SET
				decimals = EXCLUDED.decimals,
				symbol = EXCLUDED.symbol,
				updated_at = now()
		`,
			int64(s.chainID),
			strings.ToLower(token.Address),
			int16(token.Decimals),
			token.Symbol,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range tokens {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

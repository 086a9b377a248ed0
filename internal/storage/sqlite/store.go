// Package sqlite keeps token metadata in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"streamSwap/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS tokens (
	chain_id INTEGER NOT NULL,
	address  TEXT    NOT NULL,
	decimals INTEGER NOT NULL,
	symbol   TEXT    NOT NULL,
	PRIMARY KEY (chain_id, address)
)`

// Store is a single-file token metadata store for deployments without Postgres.
type Store struct {
	db      *sql.DB
	chainID uint64
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string, chainID uint64) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tokens table: %w", err)
	}
	return &Store{db: db, chainID: chainID}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// LoadToken returns stored metadata for a token address.
func (s *Store) LoadToken(ctx context.Context, address string) (model.TokenInfo, bool, error) {
	var (
		info     model.TokenInfo
		decimals int64
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT address, decimals, symbol FROM tokens WHERE chain_id = ? AND address = ?`,
		int64(s.chainID), strings.ToLower(address))
	if err := row.Scan(&info.Address, &decimals, &info.Symbol); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TokenInfo{}, false, nil
		}
		return model.TokenInfo{}, false, err
	}
	info.Decimals = uint8(decimals)
	return info, true, nil
}

// UpsertTokens inserts or updates token metadata in one transaction.
func (s *Store) UpsertTokens(ctx context.Context, tokens []model.TokenInfo) error {
	if len(tokens) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tokens (chain_id, address, decimals, symbol) VALUES (?, ?, ?, ?)
		ON CONFLICT (chain_id, address) DO UPDATE SET decimals = excluded.decimals, symbol = excluded.symbol`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, token := range tokens {
		if _, err := stmt.ExecContext(ctx, int64(s.chainID), strings.ToLower(token.Address), int64(token.Decimals), token.Symbol); err != nil {
			return fmt.Errorf("upsert token %s: %w", token.Address, err)
		}
	}
	return tx.Commit()
}

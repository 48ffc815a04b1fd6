package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

const gatewaySettingsKey = "gateway"

const schema = `
CREATE TABLE IF NOT EXISTS strategies (
	underlying TEXT NOT NULL,
	name TEXT NOT NULL,
	payload TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (underlying, name)
);

CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	underlying TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_positions_underlying ON positions(underlying);

CREATE TABLE IF NOT EXISTS notes (
	key TEXT PRIMARY KEY,
	content TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);
`

// SQLiteBackend implements Backend on a SQLite database, storing records as
// JSON payloads
type SQLiteBackend struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewSQLiteBackend opens (creating if needed) the database at path
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Internal(err, "failed to open database")
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Internal(err, "failed to initialize schema")
	}

	b := &SQLiteBackend{db: db, log: logger.GetLogger("store.sqlite")}
	b.log.Infof("Opened sqlite store at %s", path)
	return b, nil
}

type payloadRow struct {
	Payload string `db:"payload"`
}

func decodeRows[T any](rows []payloadRow) ([]*T, error) {
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		var v T
		if err := json.Unmarshal([]byte(row.Payload), &v); err != nil {
			return nil, errors.Internal(err, "failed to decode stored record")
		}
		out = append(out, &v)
	}
	return out, nil
}

func (b *SQLiteBackend) getPayload(ctx context.Context, v interface{}, notFound string, query string, args ...interface{}) error {
	var row payloadRow
	err := b.db.GetContext(ctx, &row, query, args...)
	if err == sql.ErrNoRows {
		return errors.NotFound(notFound)
	}
	if err != nil {
		return errors.Internal(err, "failed to query store")
	}
	if err := json.Unmarshal([]byte(row.Payload), v); err != nil {
		return errors.Internal(err, "failed to decode stored record")
	}
	return nil
}

// GetStrategy retrieves a strategy by underlying and name
func (b *SQLiteBackend) GetStrategy(ctx context.Context, underlying, name string) (*models.Strategy, error) {
	var s models.Strategy
	err := b.getPayload(ctx, &s, "strategy not found: "+underlying+"/"+name,
		`SELECT payload FROM strategies WHERE underlying = ? AND name = ?`, underlying, name)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListStrategies returns all stored strategies
func (b *SQLiteBackend) ListStrategies(ctx context.Context) ([]*models.Strategy, error) {
	var rows []payloadRow
	if err := b.db.SelectContext(ctx, &rows, `SELECT payload FROM strategies ORDER BY underlying, name`); err != nil {
		return nil, errors.Internal(err, "failed to list strategies")
	}
	return decodeRows[models.Strategy](rows)
}

// PutStrategy saves or replaces a strategy
func (b *SQLiteBackend) PutStrategy(ctx context.Context, s *models.Strategy) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return errors.Internal(err, "failed to encode strategy")
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO strategies (underlying, name, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(underlying, name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		s.Underlying, s.Name, string(payload), s.UpdatedAt)
	if err != nil {
		return errors.Internal(err, "failed to save strategy")
	}
	return nil
}

// DeleteStrategy removes a strategy
func (b *SQLiteBackend) DeleteStrategy(ctx context.Context, underlying, name string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM strategies WHERE underlying = ? AND name = ?`, underlying, name)
	if err != nil {
		return errors.Internal(err, "failed to delete strategy")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFoundf("strategy not found: %s/%s", underlying, name)
	}
	return nil
}

// GetPosition retrieves a position by ID
func (b *SQLiteBackend) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	var p models.Position
	if err := b.getPayload(ctx, &p, "position not found: "+id, `SELECT payload FROM positions WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPositions returns all stored positions
func (b *SQLiteBackend) ListPositions(ctx context.Context) ([]*models.Position, error) {
	var rows []payloadRow
	if err := b.db.SelectContext(ctx, &rows, `SELECT payload FROM positions ORDER BY created_at, id`); err != nil {
		return nil, errors.Internal(err, "failed to list positions")
	}
	return decodeRows[models.Position](rows)
}

// PutPosition saves or replaces a position
func (b *SQLiteBackend) PutPosition(ctx context.Context, p *models.Position) error {
	if p.ID == "" {
		return errors.InvalidArgument("position ID cannot be empty")
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return errors.Internal(err, "failed to encode position")
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO positions (id, underlying, created_at, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET underlying = excluded.underlying, payload = excluded.payload`,
		p.ID, p.Underlying, p.CreatedAt, string(payload))
	if err != nil {
		return errors.Internal(err, "failed to save position")
	}
	return nil
}

// DeletePosition removes a position by ID
func (b *SQLiteBackend) DeletePosition(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, id)
	if err != nil {
		return errors.Internal(err, "failed to delete position")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("position not found: " + id)
	}
	return nil
}

// GetNote returns the note stored under key
func (b *SQLiteBackend) GetNote(ctx context.Context, key string) (string, error) {
	var content string
	err := b.db.GetContext(ctx, &content, `SELECT content FROM notes WHERE key = ?`, key)
	if err == sql.ErrNoRows {
		return "", errors.NotFound("note not found: " + key)
	}
	if err != nil {
		return "", errors.Internal(err, "failed to read note")
	}
	return content, nil
}

// PutNote stores a note under key
func (b *SQLiteBackend) PutNote(ctx context.Context, key, content string) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO notes (key, content) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET content = excluded.content`, key, content)
	if err != nil {
		return errors.Internal(err, "failed to write note")
	}
	return nil
}

// GetGatewaySettings returns the stored settings
func (b *SQLiteBackend) GetGatewaySettings(ctx context.Context) (*models.GatewaySettings, error) {
	var s models.GatewaySettings
	if err := b.getPayload(ctx, &s, "gateway settings not found", `SELECT payload FROM settings WHERE key = ?`, gatewaySettingsKey); err != nil {
		return nil, err
	}
	return &s, nil
}

// PutGatewaySettings replaces the stored settings
func (b *SQLiteBackend) PutGatewaySettings(ctx context.Context, settings models.GatewaySettings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return errors.Internal(err, "failed to encode settings")
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO settings (key, payload) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload`, gatewaySettingsKey, string(payload))
	if err != nil {
		return errors.Internal(err, "failed to save settings")
	}
	return nil
}

// Close closes the database
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Package storage provides SQLite-backed persistence for configuration
// entries and the last published entity states.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/tariffwatch/internal/hub"
	"github.com/rewired-gh/tariffwatch/internal/models"
)

// ErrEntryNotFound is returned for an unknown entry id.
var ErrEntryNotFound = errors.New("entry not found")

// Value kinds of a stored entity state.
const (
	kindJSON      = "json"
	kindPricePair = "price_pair"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db        *sql.DB
	maxStates int
	now       func() time.Time
}

// New opens or creates the SQLite database at dbPath and keeps at most
// maxStates entity states. An empty dbPath defaults to
// $TMPDIR/tariffwatch/data.db.
func New(maxStates int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "tariffwatch", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxStates: maxStates, now: time.Now}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id         TEXT PRIMARY KEY,
			domain     TEXT NOT NULL,
			title      TEXT NOT NULL,
			data       TEXT NOT NULL DEFAULT '{}',
			options    TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entity_states (
			entity_id  TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			value      TEXT NOT NULL,
			attributes TEXT NOT NULL DEFAULT '{}',
			available  INTEGER NOT NULL DEFAULT 1,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_domain ON entries(domain)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_states_updated_at ON entity_states(updated_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddEntry inserts entry, assigning a new id when it has none.
func (s *Storage) AddEntry(ctx context.Context, entry *models.Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := s.now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}
	data, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal entry data: %w", err)
	}
	opts, err := json.Marshal(entry.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal entry options: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (id, domain, title, data, options, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?)`,
		entry.ID, entry.Domain, entry.Title, string(data), string(opts),
		entry.CreatedAt.UnixNano(), entry.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// GetEntry returns the entry with id.
func (s *Storage) GetEntry(ctx context.Context, id string) (*models.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryCols+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

// ListEntries returns the entries of domain in creation order. An empty
// domain lists every entry.
func (s *Storage) ListEntries(ctx context.Context, domain string) ([]*models.Entry, error) {
	query := `SELECT ` + entryCols + ` FROM entries`
	var args []any
	if domain != "" {
		query += ` WHERE domain = ?`
		args = append(args, domain)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := []*models.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetOptions returns the options of entry id.
func (s *Storage) GetOptions(ctx context.Context, id string) (models.EntryOptions, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT options FROM entries WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EntryOptions{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if err != nil {
		return models.EntryOptions{}, fmt.Errorf("failed to get options: %w", err)
	}
	var opts models.EntryOptions
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return models.EntryOptions{}, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	return opts, nil
}

// UpdateOptions replaces the options of entry id.
func (s *Storage) UpdateOptions(ctx context.Context, id string, opts models.EntryOptions) error {
	raw, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE entries SET options=?, updated_at=? WHERE id=?`,
		string(raw), s.now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to update options: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return nil
}

// RemoveEntry deletes entry id.
func (s *Storage) RemoveEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove entry: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return nil
}

// SaveState upserts the snapshot of one entity state.
func (s *Storage) SaveState(state hub.State) error {
	kind := kindJSON
	if _, ok := state.Value.(models.PricePair); ok {
		kind = kindPricePair
	}
	value, err := json.Marshal(state.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal value of %s: %w", state.EntityID, err)
	}
	attrs, err := json.Marshal(state.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes of %s: %w", state.EntityID, err)
	}
	updated := state.LastUpdated
	if updated.IsZero() {
		updated = s.now()
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO entity_states
			(entity_id, kind, value, attributes, available, updated_at)
		VALUES (?,?,?,?,?,?)`,
		state.EntityID, kind, string(value), string(attrs), boolToInt(state.Available), updated.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// LoadStates returns every stored entity state. Price pairs come back typed;
// other values have their decoded JSON form.
func (s *Storage) LoadStates() ([]hub.State, error) {
	rows, err := s.db.Query(`
		SELECT entity_id, kind, value, attributes, available, updated_at
		FROM entity_states ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query states: %w", err)
	}
	defer rows.Close()

	var states []hub.State
	for rows.Next() {
		var st hub.State
		var kind, value, attrs string
		var available int
		var updatedNano int64
		if err := rows.Scan(&st.EntityID, &kind, &value, &attrs, &available, &updatedNano); err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		if st.Value, err = decodeValue(kind, value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal value of %s: %w", st.EntityID, err)
		}
		if err := json.Unmarshal([]byte(attrs), &st.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes of %s: %w", st.EntityID, err)
		}
		if raw, ok := st.Attributes[models.AttrPricePair]; ok {
			if pair, ok := pricePairOf(raw); ok {
				st.Attributes[models.AttrPricePair] = pair
			}
		}
		st.Available = available != 0
		st.LastUpdated = time.Unix(0, updatedNano)
		states = append(states, st)
	}
	return states, rows.Err()
}

// RotateStates keeps at most maxStates most recently updated entity states.
func (s *Storage) RotateStates() error {
	if s.maxStates <= 0 {
		return nil
	}
	_, err := s.db.Exec(`
		DELETE FROM entity_states WHERE entity_id NOT IN (
			SELECT entity_id FROM entity_states ORDER BY updated_at DESC LIMIT ?
		)`, s.maxStates)
	if err != nil {
		return fmt.Errorf("failed to rotate states: %w", err)
	}
	return nil
}

func decodeValue(kind, raw string) (any, error) {
	if kind == kindPricePair {
		var p models.PricePair
		err := json.Unmarshal([]byte(raw), &p)
		return p, err
	}
	var v any
	err := json.Unmarshal([]byte(raw), &v)
	return v, err
}

func pricePairOf(v any) (models.PricePair, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return models.PricePair{}, false
	}
	buy, ok1 := m["afname"].(float64)
	sell, ok2 := m["injectie"].(float64)
	if !ok1 || !ok2 {
		return models.PricePair{}, false
	}
	return models.PricePair{Buy: buy, Sell: sell}, true
}

const entryCols = `id, domain, title, data, options, created_at, updated_at`

func scanEntry(scan func(...any) error) (*models.Entry, error) {
	var e models.Entry
	var data, opts string
	var createdNano, updatedNano int64
	if err := scan(&e.ID, &e.Domain, &e.Title, &data, &opts, &createdNano, &updatedNano); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
		return nil, fmt.Errorf("entry %s data: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(opts), &e.Options); err != nil {
		return nil, fmt.Errorf("entry %s options: %w", e.ID, err)
	}
	e.CreatedAt = time.Unix(0, createdNano)
	e.UpdatedAt = time.Unix(0, updatedNano)
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

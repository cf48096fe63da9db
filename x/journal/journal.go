// Package journal keeps an SQLite audit trail of the records a node sends and
// receives. It observes traffic; it does not replay anything.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/uniity/sedap-express/x/communicator"
	"github.com/uniity/sedap-express/x/message"
)

const (
	DefaultBuffer        = 1024
	DefaultRetention     = 7 * 24 * time.Hour
	defaultPruneInterval = time.Hour
)

var ErrClosed = errors.New("journal closed")

// Config configures a Journal.
type Config struct {
	Path      string        `mapstructure:"path" yaml:"path"`
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`
	Buffer    int           `mapstructure:"buffer" yaml:"buffer"`
}

// Entry is one journaled record.
type Entry struct {
	ID         int64        `json:"id"`
	Direction  string       `json:"direction"`
	Type       message.Type `json:"type"`
	Sender     string       `json:"sender"`
	Number     *int         `json:"number,omitempty"`
	MACStatus  string       `json:"mac_status"`
	Record     string       `json:"record"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// Filter narrows Recent. Zero values match everything.
type Filter struct {
	Direction string
	Type      message.Type
	Sender    string
}

// Journal writes observed records from a single background goroutine so
// that observing never waits on the disk.
type Journal struct {
	db        *sql.DB
	log       zerolog.Logger
	retention time.Duration

	mu      sync.RWMutex
	closed  bool
	entries chan Entry
	dropped atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ communicator.Observer = (*Journal)(nil)

// Open opens or creates the journal database at cfg.Path.
func Open(cfg Config, log zerolog.Logger) (*Journal, error) {
	if cfg.Path == "" {
		return nil, errors.New("journal path is required")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	// one writer; sqlite serializes them anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	j := &Journal{
		db:        db,
		log:       log.With().Str("component", "journal").Logger(),
		retention: cfg.Retention,
		entries:   make(chan Entry, cfg.Buffer),
	}
	if err := j.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.wg.Add(2)
	go j.writeLoop()
	go j.pruneLoop(ctx)

	j.log.Info().Str("path", cfg.Path).Dur("retention", cfg.Retention).Msg("Journal opened")
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		direction TEXT NOT NULL,
		type TEXT NOT NULL,
		sender TEXT NOT NULL DEFAULT '',
		number INTEGER,
		mac_status TEXT NOT NULL DEFAULT '',
		record TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_time ON records(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_records_sender ON records(sender);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Observe queues m for writing. When the buffer is full the record is
// counted as dropped.
func (j *Journal) Observe(dir communicator.Direction, m message.Message) {
	h := m.Envelope()
	e := Entry{
		Direction:  dir.String(),
		Type:       m.Type(),
		Sender:     h.Sender,
		MACStatus:  h.MACStatus.String(),
		Record:     message.Encode(m),
		RecordedAt: time.Now(),
	}
	if h.Number != nil {
		n := int(*h.Number)
		e.Number = &n
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.entries <- e:
	default:
		if j.dropped.Add(1)%100 == 1 {
			j.log.Warn().Uint64("dropped", j.dropped.Load()).Msg("Journal buffer full, dropping records")
		}
	}
}

// Dropped returns how many records were not journaled because the buffer was full.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()

	stmt, err := j.db.Prepare(`
		INSERT INTO records (direction, type, sender, number, mac_status, record, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to prepare journal insert")
		for range j.entries {
			j.dropped.Add(1)
		}
		return
	}
	defer stmt.Close()

	for e := range j.entries {
		var number any
		if e.Number != nil {
			number = *e.Number
		}
		if _, err := stmt.Exec(e.Direction, string(e.Type), e.Sender, number, e.MACStatus, e.Record,
			e.RecordedAt.UnixMilli()); err != nil {
			j.log.Error().Err(err).Str("type", string(e.Type)).Msg("Failed to journal record")
		}
	}
}

func (j *Journal) pruneLoop(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(defaultPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := j.Prune(ctx, time.Now().Add(-j.retention))
			if err != nil {
				j.log.Error().Err(err).Msg("Failed to prune journal")
				continue
			}
			if n > 0 {
				j.log.Debug().Int64("removed", n).Msg("Pruned journal")
			}
		}
	}
}

// Prune removes records older than before and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM records WHERE recorded_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune records: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of journaled records.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Recent returns up to limit records matching f, newest first.
func (j *Journal) Recent(ctx context.Context, limit int, f Filter) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, direction, type, sender, number, mac_status, record, recorded_at
		FROM records
		WHERE (? = '' OR direction = ?) AND (? = '' OR type = ?) AND (? = '' OR sender = ?)
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := j.db.QueryContext(ctx, query,
		f.Direction, f.Direction, string(f.Type), string(f.Type), f.Sender, f.Sender, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			typ    string
			number sql.NullInt64
			millis int64
		)
		if err := rows.Scan(&e.ID, &e.Direction, &typ, &e.Sender, &number, &e.MACStatus, &e.Record, &millis); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		e.Type = message.Type(typ)
		if number.Valid {
			n := int(number.Int64)
			e.Number = &n
		}
		e.RecordedAt = time.UnixMilli(millis)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close flushes pending records and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return ErrClosed
	}
	j.closed = true
	close(j.entries)
	j.mu.Unlock()

	j.cancel()
	j.wg.Wait()
	return j.db.Close()
}

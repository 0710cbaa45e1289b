// Package history keeps a SQLite log of prompt analyses.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chitchat-ai/chitchat/pkg/models"
	_ "modernc.org/sqlite"
)

// Store writes and queries history entries in a dedicated SQLite database.
type Store struct {
	db   *sql.DB
	cfg  models.HistoryConfig
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// New opens the history SQLite database and creates the schema.
func New(cfg models.HistoryConfig) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	s := &Store{
		db:   db,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	if cfg.RetentionDays > 0 {
		s.wg.Add(1)
		go s.retentionLoop()
	}

	return s, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS analyses (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		provider   TEXT NOT NULL,
		model      TEXT NOT NULL,
		prompt     TEXT,
		rating     TEXT,
		rewrite    TEXT,
		status     TEXT NOT NULL,
		error      TEXT,
		latency_ms INTEGER,
		created_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_analyses_request ON analyses(request_id)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_analyses_provider ON analyses(provider)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at)`)
	return err
}

// Record appends a history entry. Entries sharing a request id are kept as
// separate rows. Prompt and rewrite text are dropped unless prompts are
// included by configuration, and are truncated to MaxPromptSize bytes on a
// rune boundary.
func (s *Store) Record(ctx context.Context, entry models.HistoryEntry) error {
	if s == nil || s.db == nil {
		return nil
	}

	prompt := entry.Prompt
	rewrite := entry.Rewrite
	if !s.cfg.IncludePrompts {
		prompt = ""
		rewrite = ""
	}
	if s.cfg.MaxPromptSize > 0 {
		prompt = truncateUTF8(prompt, s.cfg.MaxPromptSize)
		rewrite = truncateUTF8(rewrite, s.cfg.MaxPromptSize)
	}
	createdAt := entry.CreatedAt.UTC()
	if entry.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses
		(request_id, provider, model, prompt, rating, rewrite, status, error, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, string(entry.Provider), entry.Model,
		prompt, string(entry.Rating), rewrite,
		entry.Status, entry.Error, entry.LatencyMs, createdAt,
	)
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Query returns history entries matching the given options, newest first.
func (s *Store) Query(ctx context.Context, opts models.HistoryQueryOpts) ([]models.HistoryEntry, error) {
	q := `SELECT request_id, provider, model, prompt, rating, rewrite,
		status, error, latency_ms, created_at
		FROM analyses WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.Provider != "" {
		q += " AND provider = ?"
		args = append(args, string(opts.Provider))
	}
	if opts.Rating != "" {
		q += " AND rating = ?"
		args = append(args, string(opts.Rating))
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC())
	}

	q += " ORDER BY created_at DESC, id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		var provider, rating string
		var prompt, rewrite, errText sql.NullString
		if err := rows.Scan(
			&e.RequestID, &provider, &e.Model, &prompt, &rating, &rewrite,
			&e.Status, &errText, &e.LatencyMs, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Provider = models.ProviderID(provider)
		e.Rating = models.Rating(rating)
		e.Prompt = prompt.String
		e.Rewrite = rewrite.String
		e.Error = errText.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns aggregate counts grouped by provider and day.
func (s *Store) Stats(ctx context.Context) ([]models.HistoryStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, date(created_at) AS day, count(*) AS cnt,
		        sum(CASE WHEN status = 'ok' THEN 0 ELSE 1 END) AS failures
		 FROM analyses GROUP BY provider, day ORDER BY day DESC, provider`)
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	var stats []models.HistoryStat
	for rows.Next() {
		var st models.HistoryStat
		var provider string
		var day sql.NullString
		if err := rows.Scan(&provider, &day, &st.Count, &st.Failures); err != nil {
			return nil, fmt.Errorf("scan history stat: %w", err)
		}
		st.Provider = models.ProviderID(provider)
		st.Day = day.String
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (s *Store) Close() error {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
	return s.db.Close()
}

func (s *Store) retentionLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			_, _ = s.Cleanup(context.Background())
		}
	}
}

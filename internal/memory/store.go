// Package memory persists answered queries and serves the lexical fallback
// lookup used when no provider can answer.
package memory

import (
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// poolSize caps the confidence-ranked candidate pool FindSimilar samples from.
const poolSize = 20

// Store wraps a SQLite database holding remembered question/answer entries.
type Store struct {
	db    *sql.DB
	floor float64

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// Open opens (or creates) the memory database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests). floor is the minimum confidence FindSimilar returns; rng drives
// result sampling and may be nil, in which case a time-seeded source is used.
func Open(dataDir string, floor float64, rng *rand.Rand) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "memory.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := &Store{db: db, floor: floor, rng: rng}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Insert appends an entry and returns the id assigned by the store. Keywords
// are extracted from the prompt at write time; the Keywords field on e is
// ignored. A zero CreatedAt defaults to now (UTC).
func (s *Store) Insert(e Entry) (int64, error) {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO memory_entries (prompt, original_answer, paraphrased_answer, source_provider, confidence, keywords, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Prompt, e.OriginalAnswer, e.ParaphrasedAnswer, e.SourceProvider, e.Confidence,
		strings.Join(Keywords(e.Prompt), " "), createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FindSimilar returns up to limit stored entries that share at least one
// keyword with prompt and sit at or above the confidence floor. Candidates
// are pooled by confidence descending (pool capped at 20) and the result is
// a random sample of that pool, so a recurring question does not always
// replay the same stored answer. No match is an empty result, not an error.
func (s *Store) FindSimilar(prompt string, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	keywords := Keywords(prompt)
	if len(keywords) == 0 {
		return nil, nil
	}

	conds := make([]string, len(keywords))
	args := make([]interface{}, 0, len(keywords)+2)
	args = append(args, s.floor)
	for i, kw := range keywords {
		conds[i] = "instr(' ' || keywords || ' ', ' ' || ? || ' ') > 0"
		args = append(args, kw)
	}
	args = append(args, poolSize)

	query := `
		SELECT id, prompt, original_answer, paraphrased_answer, source_provider, confidence, keywords, created_at
		FROM memory_entries
		WHERE confidence >= ? AND (` + strings.Join(conds, " OR ") + `)
		ORDER BY confidence DESC, id ASC
		LIMIT ?`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pool []Entry
	for rows.Next() {
		var e Entry
		var kws, createdAt string
		if err := rows.Scan(&e.ID, &e.Prompt, &e.OriginalAnswer, &e.ParaphrasedAnswer, &e.SourceProvider, &e.Confidence, &kws, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		e.Keywords = strings.Fields(kws)
		pool = append(pool, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	s.mu.Unlock()

	if len(pool) > limit {
		pool = pool[:limit]
	}
	return pool, nil
}

// Stats reports aggregate counts for the reporting surfaces.
func (s *Store) Stats() (*Stats, error) {
	var st Stats
	err := s.db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT source_provider) FROM memory_entries`).
		Scan(&st.TotalEntries, &st.DistinctSources)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT keywords FROM memory_entries WHERE keywords != ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kws string
		if err := rows.Scan(&kws); err != nil {
			return nil, err
		}
		for _, kw := range strings.Fields(kws) {
			counts[kw]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	best, bestCount := "", 0
	for kw, n := range counts {
		if n > bestCount || (n == bestCount && kw < best) {
			best, bestCount = kw, n
		}
	}
	st.MostCommonKeyword = best
	return &st, nil
}

// Prune deletes entries older than the retention window and reports how many
// were removed. Maintenance path only, never called while serving a request.
func (s *Store) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)
	res, err := s.db.Exec(`DELETE FROM memory_entries WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package commit

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"term-forge/internal/obo"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// FormatID renders a permanent term id, e.g. GO:0000123.
func FormatID(prefix string, n int64) string {
	return fmt.Sprintf("%s:%07d", prefix, n)
}

// ParseID returns the number of an id with the given prefix.
func ParseID(id, prefix string) (int64, bool) {
	rest, ok := strings.CutPrefix(id, prefix+":")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// PostgresCommitter records change sets in Postgres and allocates permanent
// ids from a per-vocabulary counter. Commits to one vocabulary are
// serialized with a transaction-scoped advisory lock.
type PostgresCommitter struct {
	db *sqlx.DB
}

// NewPostgresCommitter wraps an open database.
func NewPostgresCommitter(db *sqlx.DB) *PostgresCommitter {
	return &PostgresCommitter{db: db}
}

// OpenPostgresCommitter connects to the database at connString.
func OpenPostgresCommitter(ctx context.Context, connString string) (*PostgresCommitter, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PostgresCommitter{db: db}, nil
}

// Close closes the database connection.
func (p *PostgresCommitter) Close() error {
	return p.db.Close()
}

// InitSchema creates the committer tables.
func (p *PostgresCommitter) InitSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute init SQL: %w", err)
	}
	return nil
}

// EnsureCounter creates the id counter of a vocabulary unless it exists.
func (p *PostgresCommitter) EnsureCounter(ctx context.Context, vocabulary, prefix string, next int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO termforge_id_counters (vocabulary, prefix, next_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (vocabulary) DO NOTHING`, vocabulary, prefix, next)
	if err != nil {
		return fmt.Errorf("failed to create id counter for %s: %w", vocabulary, err)
	}
	return nil
}

// Commit implements Committer.
func (p *PostgresCommitter) Commit(ctx context.Context, cs *ChangeSet) (*Result, error) {
	reject := func(err error) (*Result, error) {
		return nil, &CommitError{Vocabulary: cs.Vocabulary, ChangeSet: cs.ID.String(), Err: err}
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, cs.Vocabulary); err != nil {
		return nil, fmt.Errorf("failed to lock vocabulary %s: %w", cs.Vocabulary, err)
	}

	assigned, err := allocateIDs(ctx, tx, cs.Vocabulary, cs.Pending())
	if err != nil {
		return reject(err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO termforge_changesets (changeset_id, vocabulary, author, created_at)
		VALUES ($1, $2, $3, $4)`,
		cs.ID.String(), cs.Vocabulary, cs.Author, cs.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert change set: %w", err)
	}

	frames, err := cs.Resolve(assigned)
	if err != nil {
		return reject(err)
	}
	for i, c := range cs.Changes {
		var reason sql.NullString
		if c.Diff.ObsoleteReason != "" {
			reason = sql.NullString{String: c.Diff.ObsoleteReason, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO termforge_changes
			(changeset_id, position, vocabulary, term_id, kind, added, removed, changed, obsolete_reason, frame)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			cs.ID.String(), i, cs.Vocabulary, frames[i].ID, string(c.Kind),
			pq.Array(clauseStrings(c.Diff.Added)), pq.Array(clauseStrings(c.Diff.Removed)),
			pq.Array(changeStrings(c.Diff.Changed)), reason, frames[i].Render())
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return reject(fmt.Errorf("%w: %s %s", ErrConflict, c.Kind, frames[i].ID))
			}
			return nil, fmt.Errorf("failed to insert change %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &Result{Success: true, Reference: cs.ID.String(), AssignedIDs: assigned}, nil
}

// allocateIDs reserves len(pending) consecutive ids from the counter.
func allocateIDs(ctx context.Context, tx *sqlx.Tx, vocabulary string, pending []string) (map[string]string, error) {
	assigned := make(map[string]string, len(pending))
	if len(pending) == 0 {
		return assigned, nil
	}
	var counter struct {
		Prefix string `db:"prefix"`
		First  int64  `db:"first_id"`
	}
	err := tx.GetContext(ctx, &counter, `
		UPDATE termforge_id_counters
		SET next_id = next_id + $2
		WHERE vocabulary = $1
		RETURNING prefix, next_id - $2 AS first_id`, vocabulary, len(pending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no id counter for vocabulary %s", vocabulary)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to allocate ids: %w", err)
	}
	for i, id := range pending {
		assigned[id] = FormatID(counter.Prefix, counter.First+int64(i))
	}
	return assigned, nil
}

func clauseStrings(cs []obo.Clause) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}

func changeStrings(cs []ClauseChange) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}

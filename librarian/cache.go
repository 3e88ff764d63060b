package librarian

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
)

// Verdict is the oracle's classification of one finding.
type Verdict string

const (
	VerdictTruePositive  Verdict = "True Positive"
	VerdictFalsePositive Verdict = "False Positive"
	VerdictNeedsReview   Verdict = "Needs Review"
)

// Message is one role-tagged prompt turn sent to the oracle.
type Message struct {
	Role    string
	Content string
}

// DecisionRecord is one memoized oracle verdict.
type DecisionRecord struct {
	ContextHash string
	SnippetHash string
	CheckID     string
	Verdict     Verdict
	Rationale   string
	Remediation string
	Timestamp   time.Time
	Model       string
	RawResponse string
	// Source is set to "cache" by a successful Query/QuerySemantic; it is
	// never persisted.
	Source string
}

// ContextHash computes §4.8's context_hash: SHA-256 over
// "role:content\n" for each message, in order. It uniquely identifies a
// prompt, wording included.
func ContextHash(messages []Message) string {
	h := sha256.New()
	for _, m := range messages {
		h.Write([]byte(m.Role))
		h.Write([]byte(":"))
		h.Write([]byte(m.Content))
		h.Write([]byte("\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SnippetHash identifies a code fragment independent of prompt wording,
// the key QuerySemantic reuses across reworded prompts.
func SnippetHash(snippet string) string {
	sum := sha256.Sum256([]byte(snippet))
	return hex.EncodeToString(sum[:])
}

const decisionSchema = `
CREATE TABLE IF NOT EXISTS decisions (
	context_hash TEXT PRIMARY KEY,
	snippet_hash TEXT NOT NULL,
	check_id TEXT NOT NULL,
	verdict TEXT NOT NULL,
	rationale TEXT NOT NULL,
	remediation TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	model TEXT NOT NULL,
	raw_response TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_semantic ON decisions(check_id, snippet_hash, timestamp);
`

const shardCount = 256

// DecisionStore is the durable, content-addressed oracle-decision cache:
// a modernc.org/sqlite table fronted by an LRU read-through layer. Writes
// to the same context_hash serialize through a sharded mutex keyed by the
// hash's first byte; writes to different hashes proceed independently.
type DecisionStore struct {
	db     *sql.DB
	cache  *lru.Cache[string, DecisionRecord]
	shards [shardCount]sync.Mutex
}

// OpenDecisionStore opens (creating if needed) a SQLite-backed decision
// store at path, fronted by an in-memory LRU of the given size.
func OpenDecisionStore(path string, cacheSize int) (*DecisionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening decision store: %w", err)
	}
	if _, err := db.Exec(decisionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating decision schema: %w", err)
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	c, err := lru.New[string, DecisionRecord](cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating decision LRU: %w", err)
	}
	return &DecisionStore{db: db, cache: c}, nil
}

// Close releases the underlying database handle.
func (s *DecisionStore) Close() error { return s.db.Close() }

func (s *DecisionStore) shard(hash string) *sync.Mutex {
	if len(hash) == 0 {
		return &s.shards[0]
	}
	return &s.shards[int(hash[0])%shardCount]
}

// Query looks up a decision by the exact context hash of prompt_messages:
// the LRU first, then the durable store. A schema-mismatched row is
// dropped from the result rather than raised, per §4.8's atomicity note.
func (s *DecisionStore) Query(ctx context.Context, messages []Message) (DecisionRecord, bool, error) {
	hash := ContextHash(messages)
	if rec, ok := s.cache.Get(hash); ok {
		rec.Source = "cache"
		return rec, true, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT context_hash, snippet_hash, check_id, verdict, rationale, remediation, timestamp, model, raw_response
		FROM decisions WHERE context_hash = ?`, hash)
	rec, err := scanDecision(row)
	if err != nil {
		return DecisionRecord{}, false, nil
	}
	rec.Source = "cache"
	s.cache.Add(hash, rec)
	return rec, true, nil
}

// QuerySemantic is the secondary index lookup: the most recent decision
// recorded for (check_id, snippet_hash), reusable even when a rewritten
// prompt no longer shares the original context_hash (§8.7).
func (s *DecisionStore) QuerySemantic(ctx context.Context, checkID, snippetHash string) (DecisionRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT context_hash, snippet_hash, check_id, verdict, rationale, remediation, timestamp, model, raw_response
		FROM decisions WHERE check_id = ? AND snippet_hash = ? ORDER BY timestamp DESC LIMIT 1`, checkID, snippetHash)
	rec, err := scanDecision(row)
	if err != nil {
		return DecisionRecord{}, false, nil
	}
	rec.Source = "cache"
	return rec, true, nil
}

// Store upserts rec by context_hash as a single transactional write, then
// refreshes the LRU. Concurrent stores to the same context_hash serialize
// on that hash's shard; the later write wins.
func (s *DecisionStore) Store(ctx context.Context, messages []Message, rec DecisionRecord) error {
	hash := ContextHash(messages)
	rec.ContextHash = hash

	mu := s.shard(hash)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning decision write: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO decisions (context_hash, snippet_hash, check_id, verdict, rationale, remediation, timestamp, model, raw_response)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(context_hash) DO UPDATE SET
			snippet_hash=excluded.snippet_hash, check_id=excluded.check_id, verdict=excluded.verdict,
			rationale=excluded.rationale, remediation=excluded.remediation, timestamp=excluded.timestamp,
			model=excluded.model, raw_response=excluded.raw_response`,
		rec.ContextHash, rec.SnippetHash, rec.CheckID, string(rec.Verdict), rec.Rationale, rec.Remediation,
		rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Model, rec.RawResponse)
	if err != nil {
		return fmt.Errorf("storing decision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing decision: %w", err)
	}

	rec.Source = ""
	s.cache.Add(hash, rec)
	return nil
}

func scanDecision(row *sql.Row) (DecisionRecord, error) {
	var rec DecisionRecord
	var verdict, ts string
	if err := row.Scan(&rec.ContextHash, &rec.SnippetHash, &rec.CheckID, &verdict,
		&rec.Rationale, &rec.Remediation, &ts, &rec.Model, &rec.RawResponse); err != nil {
		return DecisionRecord{}, err
	}
	rec.Verdict = Verdict(verdict)
	if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		rec.Timestamp = parsed
	}
	return rec, nil
}

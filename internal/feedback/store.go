package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/docgraph/backend/pkg/logger"
)

// Store is the append-only feedback log backed by SQLite. Events are never
// updated or deleted; corrections are recorded as new events.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err = db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("Feedback store initialized", zap.String("path", dbPath))

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		query TEXT NOT NULL,
		response TEXT NOT NULL,
		feedback_type TEXT,
		overall_rating INTEGER,
		relevance_rating INTEGER,
		clarity_rating INTEGER,
		completeness_rating INTEGER,
		comment TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at);
	CREATE INDEX IF NOT EXISTS idx_feedback_rating ON feedback(overall_rating);

	CREATE TABLE IF NOT EXISTS source_feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		feedback_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		page INTEGER,
		judgment TEXT NOT NULL,
		stars INTEGER,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (feedback_id) REFERENCES feedback(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_source_feedback_event ON source_feedback(feedback_id);
	CREATE INDEX IF NOT EXISTS idx_source_feedback_doc ON source_feedback(document_id);

	CREATE TABLE IF NOT EXISTS text_highlights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		feedback_id TEXT NOT NULL,
		highlighted_text TEXT NOT NULL,
		sentiment TEXT NOT NULL,
		source_document_id TEXT,
		comment TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (feedback_id) REFERENCES feedback(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_highlights_event ON text_highlights(feedback_id);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Feedback schema initialized")
	return nil
}

// Record validates the event and appends it to the log, returning its ID.
// The write is transactional: either the whole event lands or none of it.
func (s *Store) Record(ctx context.Context, event *Event) (string, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := event.Timestamp.UnixNano()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO feedback
		(id, created_at, query, response, feedback_type, overall_rating,
		 relevance_rating, clarity_rating, completeness_rating, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		createdAt,
		event.Query,
		event.Response,
		nullableString(string(event.Type)),
		nullableInt(event.OverallRating),
		dimensionValue(event.Dimensions, DimensionRelevance),
		dimensionValue(event.Dimensions, DimensionClarity),
		dimensionValue(event.Dimensions, DimensionCompleteness),
		event.Comment,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert feedback event: %w", err)
	}

	for _, src := range event.Sources {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO source_feedback
			(feedback_id, document_id, page, judgment, stars, comment, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			event.ID,
			src.DocumentID,
			nullableInt(src.Page),
			string(src.Judgment),
			nullableInt(src.Stars),
			src.Comment,
			createdAt,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert source feedback: %w", err)
		}
	}

	for _, h := range event.Highlights {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO text_highlights
			(feedback_id, highlighted_text, sentiment, source_document_id, comment, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			event.ID,
			h.Text,
			string(h.Sentiment),
			nullableString(h.SourceDocumentID),
			h.Comment,
			createdAt,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert highlight: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit feedback event: %w", err)
	}

	logger.Debug("Feedback event recorded",
		zap.String("event_id", event.ID),
		zap.Int("source_feedbacks", len(event.Sources)),
		zap.Int("highlights", len(event.Highlights)),
	)

	return event.ID, nil
}

// QueryEvents returns events matching the filter ordered by timestamp
// ascending. The read never mutates state and is safe to repeat.
func (s *Store) QueryEvents(ctx context.Context, q Query) ([]Event, error) {
	where, args := q.whereClause()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, query, response, feedback_type, overall_rating,
		       relevance_rating, clarity_rating, completeness_rating, comment
		FROM feedback `+where+`
		ORDER BY created_at ASC, rowid ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback events: %w", err)
	}
	defer rows.Close()

	var events []Event
	index := make(map[string]int)

	for rows.Next() {
		var e Event
		var createdAt int64
		var feedbackType sql.NullString
		var overall, relevance, clarity, completeness sql.NullInt64

		err := rows.Scan(&e.ID, &createdAt, &e.Query, &e.Response, &feedbackType,
			&overall, &relevance, &clarity, &completeness, &e.Comment)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}

		e.Timestamp = time.Unix(0, createdAt)
		if feedbackType.Valid {
			e.Type = EventType(feedbackType.String)
		}
		if overall.Valid {
			v := int(overall.Int64)
			e.OverallRating = &v
		}
		e.Dimensions = scanDimensions(relevance, clarity, completeness)

		index[e.ID] = len(events)
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback rows: %w", err)
	}

	if len(events) == 0 {
		return nil, nil
	}

	if err := s.attachSources(ctx, where, args, events, index); err != nil {
		return nil, err
	}
	if err := s.attachHighlights(ctx, where, args, events, index); err != nil {
		return nil, err
	}

	return events, nil
}

func (s *Store) attachSources(ctx context.Context, where string, args []interface{}, events []Event, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sf.feedback_id, sf.document_id, sf.page, sf.judgment, sf.stars, sf.comment
		FROM source_feedback sf
		JOIN feedback f ON f.id = sf.feedback_id `+qualifyWhere(where)+`
		ORDER BY sf.id ASC`, args...)
	if err != nil {
		return fmt.Errorf("failed to query source feedback: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventID string
		var src SourceFeedback
		var page, stars sql.NullInt64

		if err := rows.Scan(&eventID, &src.DocumentID, &page, &src.Judgment, &stars, &src.Comment); err != nil {
			return fmt.Errorf("failed to scan source feedback row: %w", err)
		}
		if page.Valid {
			v := int(page.Int64)
			src.Page = &v
		}
		if stars.Valid {
			v := int(stars.Int64)
			src.Stars = &v
		}

		if i, ok := index[eventID]; ok {
			events[i].Sources = append(events[i].Sources, src)
		}
	}
	return rows.Err()
}

func (s *Store) attachHighlights(ctx context.Context, where string, args []interface{}, events []Event, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT th.feedback_id, th.highlighted_text, th.sentiment, th.source_document_id, th.comment
		FROM text_highlights th
		JOIN feedback f ON f.id = th.feedback_id `+qualifyWhere(where)+`
		ORDER BY th.id ASC`, args...)
	if err != nil {
		return fmt.Errorf("failed to query highlights: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventID string
		var h Highlight
		var sourceDoc sql.NullString

		if err := rows.Scan(&eventID, &h.Text, &h.Sentiment, &sourceDoc, &h.Comment); err != nil {
			return fmt.Errorf("failed to scan highlight row: %w", err)
		}
		h.SourceDocumentID = sourceDoc.String

		if i, ok := index[eventID]; ok {
			events[i].Highlights = append(events[i].Highlights, h)
		}
	}
	return rows.Err()
}

// SourceAggregates returns per-document judgment counts and star sums over
// the entire log, for wholesale quality-score recomputation.
func (s *Store) SourceAggregates(ctx context.Context) ([]SourceAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id,
		       SUM(CASE WHEN judgment = 'helpful' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN judgment = 'not_helpful' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN judgment = 'irrelevant' THEN 1 ELSE 0 END),
		       COUNT(*),
		       COALESCE(SUM(stars), 0),
		       COUNT(stars)
		FROM source_feedback
		GROUP BY document_id
		ORDER BY document_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate source feedback: %w", err)
	}
	defer rows.Close()

	var aggs []SourceAggregate
	for rows.Next() {
		var a SourceAggregate
		err := rows.Scan(&a.DocumentID, &a.HelpfulCount, &a.NotHelpfulCount,
			&a.IrrelevantCount, &a.TotalFeedbacks, &a.StarsSum, &a.StarsCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

// Statistics summarizes the whole feedback log.
func (s *Store) Statistics(ctx context.Context) (*Statistics, error) {
	var stats Statistics
	var avg sql.NullFloat64

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(overall_rating) FROM feedback`).Scan(&stats.TotalEvents, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback totals: %w", err)
	}
	stats.AvgOverallRating = avg.Float64

	var helpful, notHelpful, irrelevant sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       SUM(CASE WHEN judgment = 'helpful' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN judgment = 'not_helpful' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN judgment = 'irrelevant' THEN 1 ELSE 0 END)
		FROM source_feedback`).Scan(&stats.SourceFeedbacks, &helpful, &notHelpful, &irrelevant)
	if err != nil {
		return nil, fmt.Errorf("failed to query source feedback totals: %w", err)
	}
	stats.HelpfulCount = int(helpful.Int64)
	stats.NotHelpfulCount = int(notHelpful.Int64)
	stats.IrrelevantCount = int(irrelevant.Int64)

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM text_highlights`).Scan(&stats.TotalHighlights)
	if err != nil {
		return nil, fmt.Errorf("failed to query highlight totals: %w", err)
	}

	return &stats, nil
}

// PositiveHighlights returns the most frequently highlighted positive
// snippets.
func (s *Store) PositiveHighlights(ctx context.Context, limit int) ([]HighlightSnippet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT highlighted_text, COALESCE(source_document_id, ''), COUNT(*) AS frequency
		FROM text_highlights
		WHERE sentiment = 'positive'
		GROUP BY highlighted_text
		ORDER BY frequency DESC, highlighted_text ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query highlights: %w", err)
	}
	defer rows.Close()

	var snippets []HighlightSnippet
	for rows.Next() {
		var sn HighlightSnippet
		if err := rows.Scan(&sn.Text, &sn.SourceDocumentID, &sn.Frequency); err != nil {
			return nil, fmt.Errorf("failed to scan highlight row: %w", err)
		}
		snippets = append(snippets, sn)
	}
	return snippets, rows.Err()
}

func (q Query) whereClause() (string, []interface{}) {
	var conds []string
	var args []interface{}

	if q.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if q.PositiveOnly {
		conds = append(conds, "(overall_rating >= 4 OR feedback_type = 'positive')")
	}

	if len(conds) == 0 {
		return "", nil
	}
	where := "WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}

// qualifyWhere rewrites the events where-clause so it runs against the
// joined feedback table alias.
func qualifyWhere(where string) string {
	if where == "" {
		return ""
	}
	where = strings.ReplaceAll(where, "created_at", "f.created_at")
	where = strings.ReplaceAll(where, "overall_rating", "f.overall_rating")
	where = strings.ReplaceAll(where, "feedback_type", "f.feedback_type")
	return where
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func dimensionValue(dims map[string]int, name string) interface{} {
	if dims == nil {
		return nil
	}
	if v, ok := dims[name]; ok {
		return v
	}
	return nil
}

func scanDimensions(relevance, clarity, completeness sql.NullInt64) map[string]int {
	dims := make(map[string]int)
	if relevance.Valid {
		dims[DimensionRelevance] = int(relevance.Int64)
	}
	if clarity.Valid {
		dims[DimensionClarity] = int(clarity.Int64)
	}
	if completeness.Valid {
		dims[DimensionCompleteness] = int(completeness.Int64)
	}
	if len(dims) == 0 {
		return nil
	}
	return dims
}

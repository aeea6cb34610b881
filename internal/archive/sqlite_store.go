package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/hiking-logger/internal/hikelog"
)

// DefaultBatchSize is the number of samples per insert statement. Five
// parameters per row keep a batch well under SQLite's variable limit.
const DefaultBatchSize = 150

func WithLogger(logger *slog.Logger) func(s *SqliteStore) {
	return func(s *SqliteStore) {
		s.logger = logger.With(slog.String("component", "archive"))
	}
}

func WithBatchSize(n int) func(s *SqliteStore) {
	return func(s *SqliteStore) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// SqliteStore catalogues archived sessions, their samples and the hike
// summaries. Connections are opened on first use.
type SqliteStore struct {
	dbPath    string
	batchSize int

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error

	logger *slog.Logger
}

func NewSqliteStore(dbPath string, options ...func(s *SqliteStore)) *SqliteStore {
	s := SqliteStore{
		dbPath:    dbPath,
		batchSize: DefaultBatchSize,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&s)
	}
	return &s
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if _, err = db.Exec(schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// StoreSession catalogues a session and its samples in one transaction. A
// session with the same start time is replaced, so archiving the same log
// twice leaves a single copy.
func (s *SqliteStore) StoreSession(ctx context.Context, session hikelog.Session) (sessionID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		return
	}
	defer rollbackWithError(tx, &err)

	h := session.Header
	err = tx.QueryRowContext(ctx, selectSessionIDSQL, h.StartTime).Scan(&sessionID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		var result sql.Result
		if result, err = tx.ExecContext(ctx, insertSessionSQL,
			h.StartTime, h.EndTime, h.Interval,
			h.Start.Name, h.Start.Elevation,
			h.End.Name, h.End.Elevation,
		); err != nil {
			err = fmt.Errorf("inserting session: %w", err)
			return
		}
		if sessionID, err = result.LastInsertId(); err != nil {
			err = fmt.Errorf("getting session ID: %w", err)
			return
		}

	case err != nil:
		err = fmt.Errorf("looking up session: %w", err)
		return

	default:
		if _, err = tx.ExecContext(ctx, updateSessionSQL,
			h.EndTime, h.Interval,
			h.Start.Name, h.Start.Elevation,
			h.End.Name, h.End.Elevation,
			sessionID,
		); err != nil {
			err = fmt.Errorf("updating session: %w", err)
			return
		}
		if _, err = tx.ExecContext(ctx, deleteSamplesSQL, sessionID); err != nil {
			err = fmt.Errorf("deleting samples: %w", err)
			return
		}
		s.logger.Debug("replacing catalogued session", slog.Int64("id", sessionID))
	}

	if err = s.insertSamples(ctx, tx, sessionID, session); err != nil {
		return
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
	}
	return
}

func (s *SqliteStore) insertSamples(ctx context.Context, tx *sql.Tx, sessionID int64, session hikelog.Session) error {
	const valuesPlaceholder = "(?, ?, ?, ?, ?)"

	start := int64(session.Header.StartTime)
	interval := int64(session.Header.Interval)

	var seq int
	for batch := range slices.Chunk(session.Entries, s.batchSize) {
		values := make([]any, 0, len(batch)*5)

		var sb strings.Builder
		sb.WriteString(insertSamplesSQL)

		for i, e := range batch {
			data := sampleData{
				SessionID:   sessionID,
				Seq:         seq,
				Timestamp:   start + int64(seq)*interval,
				Pressure:    e.Pressure,
				Temperature: e.Temperature,
			}
			values = append(values, data.SessionID, data.Seq, data.Timestamp, data.Pressure, data.Temperature)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder)
			seq++
		}

		if _, err := tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting samples: %w", err)
		}
	}

	return nil
}

// StoreSummaries upserts hike summaries keyed by start time
func (s *SqliteStore) StoreSummaries(ctx context.Context, summaries []hikelog.Summary) (err error) {
	if len(summaries) == 0 {
		return nil
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, upsertSummarySQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, sum := range summaries {
		if _, err = stmt.ExecContext(ctx,
			sum.StartTime, sum.EndTime,
			sum.StartLocIndex, sum.EndLocIndex,
			sum.StartTemp, sum.EndTemp,
		); err != nil {
			return fmt.Errorf("storing summary %d: %w", sum.StartTime, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func scanSession(row interface{ Scan(dest ...any) error }) (*Session, error) {
	var sess Session
	var start, end, interval int64

	if err := row.Scan(
		&sess.ID, &start, &end, &interval,
		&sess.Start.Name, &sess.Start.Elevation,
		&sess.End.Name, &sess.End.Elevation,
		&sess.Samples,
	); err != nil {
		return nil, err
	}

	sess.StartTime = fromUnix(start)
	sess.EndTime = fromUnix(end)
	sess.Interval = time.Duration(interval) * time.Second
	return &sess, nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	if session, err = scanSession(db.QueryRowContext(ctx, selectSessionSQL, id)); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
	}
	return
}

// Sessions returns every catalogued session ordered by start time
func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *Session
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	return
}

// Samples returns the samples of a session in logging order
func (s *SqliteStore) Samples(ctx context.Context, sessionID int64) (samples []Sample, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSamplesSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying samples: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var ts int64
		var sample Sample
		if err = rows.Scan(&ts, &sample.Pressure, &sample.Temperature); err != nil {
			err = fmt.Errorf("scanning sample: %w", err)
			return
		}
		sample.Timestamp = fromUnix(ts)
		samples = append(samples, sample)
	}
	err = rows.Err()
	return
}

// Summaries returns the catalogued hike summaries ordered by start time
func (s *SqliteStore) Summaries(ctx context.Context) (summaries []hikelog.Summary, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSummariesSQL)
	if err != nil {
		err = fmt.Errorf("querying summaries: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sum hikelog.Summary
		if err = rows.Scan(
			&sum.StartTime, &sum.EndTime,
			&sum.StartLocIndex, &sum.EndLocIndex,
			&sum.StartTemp, &sum.EndTemp,
		); err != nil {
			err = fmt.Errorf("scanning summary: %w", err)
			return
		}
		summaries = append(summaries, sum)
	}
	err = rows.Err()
	return
}

// Close releases both connections. It is safe to call more than once.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}
		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}

package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contextd/contextd/internal/reliability"
)

// PostgresStore persists conversation messages in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_messages (
			id TEXT PRIMARY KEY,
			seq BIGINT GENERATED ALWAYS AS IDENTITY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			token_count INTEGER,
			message_hash TEXT,
			user_id TEXT,
			api_key TEXT,
			metadata JSONB
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session_created ON conversation_messages (session_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user_created ON conversation_messages (user_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created ON conversation_messages (created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_api_key ON conversation_messages (api_key);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_session_hash ON conversation_messages (session_id, message_hash) WHERE message_hash IS NOT NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session_created_tokens ON conversation_messages (session_id, created_at DESC, token_count);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const messageColumns = `id, session_id, role, content, created_at, token_count, message_hash, user_id, api_key, metadata`

func (s *PostgresStore) InsertMessage(ctx context.Context, msg Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	var metadata []byte
	if len(msg.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(msg.Metadata)
		if err != nil {
			return "", fmt.Errorf("%w: encode metadata: %v", reliability.ErrOperation, err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_messages (id, session_id, role, content, created_at, token_count, message_hash, user_id, api_key, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		msg.ID,
		msg.SessionID,
		msg.Role,
		msg.Content,
		msg.Timestamp,
		nullableInt(msg.TokenCount),
		nullableText(msg.MessageHash),
		nullableText(msg.UserID),
		nullableText(msg.APIKey),
		metadata,
	)
	if err != nil {
		return "", classify("insert message", err)
	}
	return msg.ID, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM conversation_messages WHERE id=$1`, id)
	msg, err := scanMessage(row)
	if err != nil {
		return Message{}, classify("get message", err)
	}
	return msg, nil
}

func (s *PostgresStore) SessionMessages(ctx context.Context, sessionID string, newestFirst bool, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	order := `created_at ASC, seq ASC`
	if newestFirst {
		order = `created_at DESC, seq DESC`
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM conversation_messages
		 WHERE session_id=$1 ORDER BY `+order+` LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, classify("query session messages", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *PostgresStore) MessagePage(ctx context.Context, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM conversation_messages ORDER BY seq ASC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, classify("query message page", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *PostgresStore) UpdateTokenCount(ctx context.Context, id string, tokens int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversation_messages SET token_count=$2 WHERE id=$1`, id, tokens)
	if err != nil {
		return classify("update token count", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update token count %s: %w", id, reliability.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteMessage(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversation_messages WHERE id=$1`, id)
	if err != nil {
		return false, classify("delete message", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) DeleteSessionMessages(ctx context.Context, sessionID, userID string) (int, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if userID == "" {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM conversation_messages WHERE session_id=$1`, sessionID)
	} else {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM conversation_messages WHERE session_id=$1 AND user_id=$2`, sessionID, userID)
	}
	if err != nil {
		return 0, classify("delete session messages", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, classify("delete older than", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountSessionMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM conversation_messages WHERE session_id=$1`, sessionID).Scan(&n)
	if err != nil {
		return 0, classify("count session messages", err)
	}
	return n, nil
}

func (s *PostgresStore) CountMessagesSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM conversation_messages WHERE created_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, classify("count messages since", err)
	}
	return n, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		msg      Message
		tokens   *int
		hash     *string
		userID   *string
		apiKey   *string
		metadata []byte
	)
	err := row.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &msg.Timestamp,
		&tokens, &hash, &userID, &apiKey, &metadata)
	if err != nil {
		return Message{}, err
	}
	if tokens != nil {
		msg.TokenCount = *tokens
	}
	if hash != nil {
		msg.MessageHash = *hash
	}
	if userID != nil {
		msg.UserID = *userID
	}
	if apiKey != nil {
		msg.APIKey = *apiKey
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
			return Message{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return msg, nil
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	var items []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, classify("scan message row", err)
		}
		items = append(items, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate message rows", err)
	}
	return items, nil
}

func nullableText(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func nullableInt(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

// classify maps pgx errors onto the reliability taxonomy.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%s: %w", op, reliability.ErrNotFound)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w: %v", op, reliability.ErrTimeout, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%s: %w", op, reliability.ErrDuplicateKey)
		case pgErr.Code == "57014": // statement timeout
			return fmt.Errorf("%s: %w: %v", op, reliability.ErrTimeout, err)
		default:
			return fmt.Errorf("%s: %w: %v", op, reliability.ErrOperation, err)
		}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%s: %w: %v", op, reliability.ErrConnection, err)
	}

	return fmt.Errorf("%s: %w: %v", op, reliability.ErrOperation, err)
}

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tOgg1/roomline/internal/chat"
	"github.com/tOgg1/roomline/internal/timeline"
)

var (
	ErrInvalidCursor   = errors.New("invalid cursor")
	ErrMessageNotFound = errors.New("message not found")
)

const maxPageSize = 100

// Page is one slice of a room's history, oldest first.
type Page struct {
	Messages []chat.Message
	// Cursor is the smallest returned id. Passing it back yields the preceding page.
	Cursor string
	IsLast bool
}

type RepositoryOption func(*Repository)

// WithNow overrides the clock used to stamp appended messages.
func WithNow(now func() time.Time) RepositoryOption {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// Repository handles message persistence.
type Repository struct {
	db  *DB
	now func() time.Time
}

var _ timeline.PageFetcher = (*Repository)(nil)

func NewRepository(db *DB, opts ...RepositoryOption) *Repository {
	r := &Repository{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append validates msg, stamps its send time when unset and stores it. The assigned id is
// written back into msg.
func (r *Repository) Append(ctx context.Context, msg *chat.Message) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", chat.ErrInvalidMessage)
	}
	if msg.Type == 0 {
		msg.Type = chat.MessageTypeText
	}
	if msg.SendTime.IsZero() {
		msg.SendTime = r.now().UTC().Truncate(time.Millisecond)
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	var replyID sql.NullInt64
	var replyUsername, replyBody sql.NullString
	if msg.Reply != nil {
		replyID = sql.NullInt64{Int64: msg.Reply.ID, Valid: true}
		replyUsername = sql.NullString{String: msg.Reply.Username, Valid: true}
		replyBody = sql.NullString{String: msg.Reply.Body, Valid: true}
	}

	return r.db.TransactionWithRetry(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (room_id, uid, username, avatar, body, type, reply_id, reply_username, reply_body, send_time_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.RoomID, msg.FromUser.UID, msg.FromUser.Username, msg.FromUser.Avatar, msg.Body, int(msg.Type),
			replyID, replyUsername, replyBody, msg.SendTime.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read message id: %w", err)
		}
		msg.ID = id
		return nil
	})
}

// Get returns one message by id.
func (r *Repository) Get(ctx context.Context, id int64) (*chat.Message, error) {
	row := r.db.db.QueryRowContext(ctx, `
		SELECT id, room_id, uid, username, avatar, body, type, reply_id, reply_username, reply_body, send_time_ms
		FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Page returns up to size messages of roomID older than cursor. An empty cursor starts
// from the newest message.
func (r *Repository) Page(ctx context.Context, roomID int64, cursor string, size int) (*Page, error) {
	if err := chat.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = timeline.DefaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	query := `SELECT id, room_id, uid, username, avatar, body, type, reply_id, reply_username, reply_body, send_time_ms
		FROM messages WHERE room_id = ?`
	args := []any{roomID}
	if cursor != "" {
		before, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil || before <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
		}
		query += ` AND id < ?`
		args = append(args, before)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, size+1) // one extra tells whether older rows remain

	rows, err := r.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var newestFirst []chat.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		newestFirst = append(newestFirst, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	page := &Page{Cursor: cursor, IsLast: true}
	if len(newestFirst) > size {
		newestFirst = newestFirst[:size]
		page.IsLast = false
	}
	page.Messages = make([]chat.Message, len(newestFirst))
	for i, msg := range newestFirst {
		page.Messages[len(newestFirst)-1-i] = msg
	}
	if len(page.Messages) > 0 {
		page.Cursor = strconv.FormatInt(page.Messages[0].ID, 10)
	}
	return page, nil
}

// FetchPage serves timeline pages straight from the database.
func (r *Repository) FetchPage(ctx context.Context, req timeline.PageRequest) (*timeline.Page, error) {
	page, err := r.Page(ctx, req.RoomID, string(req.Cursor), req.PageSize)
	if err != nil {
		return nil, err
	}
	return &timeline.Page{
		List:   page.Messages,
		Cursor: timeline.Cursor(page.Cursor),
		IsLast: page.IsLast,
	}, nil
}

// Count returns the number of stored messages in roomID.
func (r *Repository) Count(ctx context.Context, roomID int64) (int64, error) {
	var count int64
	err := r.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE room_id = ?`, roomID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*chat.Message, error) {
	var (
		msg           chat.Message
		msgType       int
		replyID       sql.NullInt64
		replyUsername sql.NullString
		replyBody     sql.NullString
		sendTimeMs    int64
	)
	if err := row.Scan(
		&msg.ID, &msg.RoomID, &msg.FromUser.UID, &msg.FromUser.Username, &msg.FromUser.Avatar,
		&msg.Body, &msgType, &replyID, &replyUsername, &replyBody, &sendTimeMs,
	); err != nil {
		return nil, err
	}
	msg.Type = chat.MessageType(msgType)
	msg.SendTime = time.UnixMilli(sendTimeMs).UTC()
	if replyID.Valid {
		msg.Reply = &chat.ReplyRef{ID: replyID.Int64, Username: replyUsername.String, Body: replyBody.String}
	}
	return &msg, nil
}

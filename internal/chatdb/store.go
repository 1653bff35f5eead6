// Package chatdb provides read-only access to the local Messages
// SQLite database. It only fetches rows; decoding and identity
// resolution happen downstream.
package chatdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// appleEpoch is 2001-01-01T00:00:00Z as a Unix timestamp; message
// dates are stored as nanoseconds since this epoch.
const appleEpoch = 978307200

// Store wraps a read-only connection to the message store.
type Store struct {
	db *sql.DB
}

// Open opens the message store read-only. The store is never written;
// a busy timeout covers the OS process holding the database.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ListMessages returns raw message rows joined with their conversation
// and sender handle, newest first. Since restricts to rows after the
// update cursor.
func (s *Store) ListMessages(ctx context.Context, opts MessageListOptions) ([]MessageRow, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	query := `SELECT DISTINCT
		m.ROWID,
		COALESCE(m.text, ''),
		m.attributedBody,
		m.is_from_me,
		datetime(m.date / 1000000000 + strftime('%s', '2001-01-01'), 'unixepoch', 'localtime'),
		COALESCE(h.id, ''),
		COALESCE(c.chat_identifier, ''),
		COALESCE(c.display_name, ''),
		COALESCE(m.service, '')
		FROM message m
		LEFT JOIN chat_message_join cmj ON m.ROWID = cmj.message_id
		LEFT JOIN chat c ON cmj.chat_id = c.ROWID
		LEFT JOIN handle h ON m.handle_id = h.ROWID`

	args := []any{}
	if opts.Since != "" {
		cursor, err := appleTimestamp(opts.Since)
		if err != nil {
			return nil, err
		}
		query += " WHERE m.date > ?"
		args = append(args, cursor)
	}
	query += " ORDER BY m.date DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	messages := []MessageRow{}
	for rows.Next() {
		var row MessageRow
		var isFromMe int
		var body []byte
		if err := rows.Scan(
			&row.RowID,
			&row.Text,
			&body,
			&isFromMe,
			&row.Date,
			&row.SenderKey,
			&row.ConversationKey,
			&row.ChatDisplayName,
			&row.Service,
		); err != nil {
			return nil, err
		}
		row.Body = body
		row.IsFromMe = isFromMe != 0
		messages = append(messages, row)
	}
	return messages, rows.Err()
}

// ListAttachments returns attachment rows for image attachments,
// newest message first. Ordinal numbers attachments within each
// message in source order so the Nth placeholder can bind to the Nth
// row.
func (s *Store) ListAttachments(ctx context.Context, limit int) ([]AttachmentRow, error) {
	if limit <= 0 {
		limit = defaultAttachmentLimit
	}

	query := `SELECT
		maj.message_id,
		a.ROWID,
		COALESCE(a.filename, ''),
		COALESCE(a.mime_type, ''),
		COALESCE(a.transfer_name, ''),
		datetime(m.date / 1000000000 + ` + fmt.Sprint(appleEpoch) + `, 'unixepoch'),
		m.is_from_me,
		COALESCE(h.id, c.chat_identifier, ''),
		COALESCE(c.display_name, '')
		FROM attachment a
		JOIN message_attachment_join maj ON a.ROWID = maj.attachment_id
		JOIN message m ON maj.message_id = m.ROWID
		LEFT JOIN chat_message_join cmj ON m.ROWID = cmj.message_id
		LEFT JOIN chat c ON cmj.chat_id = c.ROWID
		LEFT JOIN handle h ON m.handle_id = h.ROWID
		WHERE a.filename IS NOT NULL AND a.filename != ''
		AND (a.mime_type LIKE 'image/%'
			OR LOWER(a.filename) LIKE '%.heic'
			OR LOWER(a.filename) LIKE '%.jpeg'
			OR LOWER(a.filename) LIKE '%.jpg'
			OR LOWER(a.filename) LIKE '%.png'
			OR LOWER(a.filename) LIKE '%.gif')
		ORDER BY m.date DESC, maj.message_id, a.ROWID
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	attachments := []AttachmentRow{}
	ordinals := map[int64]int{}
	for rows.Next() {
		var row AttachmentRow
		var attachmentRowID int64
		var isFromMe int
		if err := rows.Scan(
			&row.MessageRowID,
			&attachmentRowID,
			&row.Path,
			&row.MimeType,
			&row.TransferName,
			&row.Date,
			&isFromMe,
			&row.SenderKey,
			&row.ChatDisplayName,
		); err != nil {
			return nil, err
		}
		row.IsFromMe = isFromMe != 0
		row.Ordinal = ordinals[row.MessageRowID]
		ordinals[row.MessageRowID]++
		attachments = append(attachments, row)
	}
	return attachments, rows.Err()
}

// ListGroupChats returns every group conversation with its participant
// handles in join-table order.
func (s *Store) ListGroupChats(ctx context.Context) ([]GroupChatRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ROWID, chat_identifier, COALESCE(display_name, '')
		FROM chat
		WHERE chat_identifier LIKE 'chat%'`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	type chatRef struct {
		rowID int64
		chat  GroupChatRow
	}
	var refs []chatRef
	for rows.Next() {
		var ref chatRef
		if err := rows.Scan(&ref.rowID, &ref.chat.Key, &ref.chat.DisplayName); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	groups := []GroupChatRow{}
	for _, ref := range refs {
		participants, err := s.chatParticipants(ctx, ref.rowID)
		if err != nil {
			return nil, err
		}
		if len(participants) == 0 {
			continue
		}
		ref.chat.Participants = participants
		groups = append(groups, ref.chat)
	}
	return groups, nil
}

func (s *Store) chatParticipants(ctx context.Context, chatRowID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT h.id
		FROM handle h
		JOIN chat_handle_join chj ON h.ROWID = chj.handle_id
		WHERE chj.chat_id = ?
		ORDER BY chj.ROWID`, chatRowID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var participants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if id != "" {
			participants = append(participants, id)
		}
	}
	return participants, rows.Err()
}

// Counts reports table sizes for the db info command.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	queries := []struct {
		dst   *int64
		query string
	}{
		{&c.Messages, "SELECT COUNT(*) FROM message"},
		{&c.Chats, "SELECT COUNT(*) FROM chat"},
		{&c.Handles, "SELECT COUNT(*) FROM handle"},
		{&c.Attachments, "SELECT COUNT(*) FROM attachment"},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return Counts{}, err
		}
	}
	return c, nil
}

// appleTimestamp converts a dataset timestamp to the store's
// nanoseconds-since-2001 representation.
func appleTimestamp(date string) (int64, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", date, time.Local)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor timestamp %q: %w", date, err)
	}
	return (t.Unix() - appleEpoch) * 1e9, nil
}

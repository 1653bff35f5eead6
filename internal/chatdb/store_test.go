package chatdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "chat.db")); err == nil {
		t.Fatalf("expected error opening missing store")
	}
}

func TestListMessagesNewestFirst(t *testing.T) {
	store := openFixture(t)
	ctx := context.Background()

	rows, err := store.ListMessages(ctx, MessageListOptions{})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	if rows[0].RowID != 4 || rows[len(rows)-1].RowID != 1 {
		t.Fatalf("not newest first: %v", rowIDs(rows))
	}

	first := rows[len(rows)-1]
	if first.Text != "hello" || first.SenderKey != "+15551234567" || first.IsFromMe {
		t.Fatalf("row fields: %+v", first)
	}
	if first.ConversationKey != "+15551234567" || first.Service != "iMessage" {
		t.Fatalf("join fields: %+v", first)
	}
	if first.Date != fixtureTime(0).Format("2006-01-02 15:04:05") {
		t.Fatalf("date conversion: %q", first.Date)
	}
}

func TestListMessagesSinceCursor(t *testing.T) {
	store := openFixture(t)
	ctx := context.Background()

	cursor := fixtureTime(1).Format("2006-01-02 15:04:05")
	rows, err := store.ListMessages(ctx, MessageListOptions{Since: cursor})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	// Strictly newer than the cursor: rows 3 and 4, not row 2 itself.
	if got := rowIDs(rows); len(got) != 2 || got[0] != 4 || got[1] != 3 {
		t.Fatalf("cursor filter: %v", got)
	}

	if _, err := store.ListMessages(ctx, MessageListOptions{Since: "not a timestamp"}); err == nil {
		t.Fatalf("expected error for malformed cursor")
	}
}

func TestListMessagesLimit(t *testing.T) {
	store := openFixture(t)
	rows, err := store.ListMessages(context.Background(), MessageListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("list with limit: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("limit ignored: %d rows", len(rows))
	}
}

func TestListMessagesBodyBlob(t *testing.T) {
	store := openFixture(t)
	rows, err := store.ListMessages(context.Background(), MessageListOptions{})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	for _, row := range rows {
		if row.RowID == 3 {
			if row.Text != "" || len(row.Body) == 0 {
				t.Fatalf("body row: text=%q body=%d bytes", row.Text, len(row.Body))
			}
			return
		}
	}
	t.Fatalf("body row missing")
}

func TestListAttachmentsOrdinalsAndFilter(t *testing.T) {
	store := openFixture(t)
	rows, err := store.ListAttachments(context.Background(), 0)
	if err != nil {
		t.Fatalf("list attachments: %v", err)
	}
	// The PDF attachment is filtered out.
	if len(rows) != 2 {
		t.Fatalf("expected 2 image attachments, got %d", len(rows))
	}
	for _, row := range rows {
		if row.MessageRowID != 2 {
			t.Fatalf("unexpected message: %+v", row)
		}
	}
	if rows[0].Ordinal != 0 || rows[1].Ordinal != 1 {
		t.Fatalf("ordinals: %d, %d", rows[0].Ordinal, rows[1].Ordinal)
	}
	if rows[0].Path != "~/Library/Messages/Attachments/a/IMG_1.heic" {
		t.Fatalf("ordinal 0 not lowest rowid: %+v", rows[0])
	}
	if rows[1].MimeType != "image/png" || rows[1].TransferName != "screenshot.png" {
		t.Fatalf("attachment fields: %+v", rows[1])
	}
}

func TestListGroupChats(t *testing.T) {
	store := openFixture(t)
	groups, err := store.ListGroupChats(context.Background())
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.Key != "chat100200300" || g.DisplayName != "Ski Trip" {
		t.Fatalf("group: %+v", g)
	}
	// Join-table insertion order, not alphabetical.
	if len(g.Participants) != 2 || g.Participants[0] != "+15559876543" || g.Participants[1] != "+15551234567" {
		t.Fatalf("participants: %v", g.Participants)
	}
}

func TestCounts(t *testing.T) {
	store := openFixture(t)
	counts, err := store.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Messages != 4 || counts.Chats != 3 || counts.Handles != 2 || counts.Attachments != 3 {
		t.Fatalf("counts: %+v", counts)
	}
}

// fixtureTime returns the timestamp of fixture message n (messages are
// one hour apart).
func fixtureTime(n int) time.Time {
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.Local)
	return base.Add(time.Duration(n) * time.Hour)
}

func appleNs(t time.Time) int64 {
	return (t.Unix() - appleEpoch) * 1e9
}

func openFixture(t *testing.T) *Store {
	t.Helper()
	path := createFixtureDB(t)
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createFixtureDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	statements := []string{
		`CREATE TABLE message (ROWID INTEGER PRIMARY KEY, text TEXT, attributedBody BLOB, handle_id INTEGER, service TEXT, date INTEGER, is_from_me INTEGER DEFAULT 0);`,
		`CREATE TABLE chat (ROWID INTEGER PRIMARY KEY, chat_identifier TEXT, display_name TEXT);`,
		`CREATE TABLE handle (ROWID INTEGER PRIMARY KEY, id TEXT);`,
		`CREATE TABLE chat_message_join (chat_id INTEGER, message_id INTEGER);`,
		`CREATE TABLE chat_handle_join (chat_id INTEGER, handle_id INTEGER);`,
		`CREATE TABLE attachment (ROWID INTEGER PRIMARY KEY, filename TEXT, mime_type TEXT, transfer_name TEXT);`,
		`CREATE TABLE message_attachment_join (message_id INTEGER, attachment_id INTEGER);`,
	}
	for _, stmt := range statements {
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatalf("exec: %v", err)
		}
	}

	exec := func(query string, args ...any) {
		t.Helper()
		if _, err := conn.Exec(query, args...); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	exec("INSERT INTO handle (ROWID, id) VALUES (1, '+15551234567'), (2, '+15559876543')")
	exec("INSERT INTO chat (ROWID, chat_identifier, display_name) VALUES (1, '+15551234567', ''), (2, 'chat100200300', 'Ski Trip'), (3, 'chat999', '')")

	// Group membership in deliberate non-alphabetical insertion order.
	exec("INSERT INTO chat_handle_join (chat_id, handle_id) VALUES (2, 2), (2, 1)")

	body := append([]byte("NSString"), 0x84, 0x01, 0x2b, 0x02, 'h', 'i')
	exec("INSERT INTO message (ROWID, text, attributedBody, handle_id, service, date, is_from_me) VALUES (?, ?, ?, ?, ?, ?, ?)",
		1, "hello", nil, 1, "iMessage", appleNs(fixtureTime(0)), 0)
	exec("INSERT INTO message (ROWID, text, attributedBody, handle_id, service, date, is_from_me) VALUES (?, ?, ?, ?, ?, ?, ?)",
		2, "photos attached", nil, 2, "iMessage", appleNs(fixtureTime(1)), 0)
	exec("INSERT INTO message (ROWID, text, attributedBody, handle_id, service, date, is_from_me) VALUES (?, ?, ?, ?, ?, ?, ?)",
		3, nil, body, 1, "iMessage", appleNs(fixtureTime(2)), 0)
	exec("INSERT INTO message (ROWID, text, attributedBody, handle_id, service, date, is_from_me) VALUES (?, ?, ?, ?, ?, ?, ?)",
		4, "sent by me", nil, 0, "SMS", appleNs(fixtureTime(3)), 1)

	exec("INSERT INTO chat_message_join (chat_id, message_id) VALUES (1, 1), (2, 2), (1, 3), (1, 4)")

	exec("INSERT INTO attachment (ROWID, filename, mime_type, transfer_name) VALUES (1, '~/Library/Messages/Attachments/a/IMG_1.heic', 'image/heic', 'IMG_1.heic')")
	exec("INSERT INTO attachment (ROWID, filename, mime_type, transfer_name) VALUES (2, '~/Library/Messages/Attachments/b/screenshot.png', 'image/png', 'screenshot.png')")
	exec("INSERT INTO attachment (ROWID, filename, mime_type, transfer_name) VALUES (3, '~/Library/Messages/Attachments/c/doc.pdf', 'application/pdf', 'doc.pdf')")
	exec("INSERT INTO message_attachment_join (message_id, attachment_id) VALUES (2, 1), (2, 2), (2, 3)")

	return path
}

func rowIDs(rows []MessageRow) []int64 {
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.RowID)
	}
	return ids
}

package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	ds, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ds != nil {
		t.Fatalf("expected nil dataset for missing file")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestBackupExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	if err := os.WriteFile(path, []byte(`{"contacts":[]}`), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	backup, err := BackupExisting(path)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if !strings.HasPrefix(backup, path+".backup-") {
		t.Fatalf("unexpected backup path: %s", backup)
	}
	data, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(data) != `{"contacts":[]}` {
		t.Fatalf("backup content: %s", data)
	}

	// Missing source is a no-op, not an error.
	backup, err = BackupExisting(filepath.Join(dir, "absent.json"))
	if err != nil || backup != "" {
		t.Fatalf("missing source: %q %v", backup, err)
	}
}

func TestMaxIDs(t *testing.T) {
	ds := &Dataset{
		Contacts: []Contact{{ID: 3}, {ID: 7}, {ID: 5}},
		Messages: []Message{{ID: 10}, {ID: 42}},
	}
	if got := ds.MaxContactID(); got != 7 {
		t.Fatalf("max contact id: %d", got)
	}
	if got := ds.MaxMessageID(); got != 42 {
		t.Fatalf("max message id: %d", got)
	}

	empty := &Dataset{}
	if empty.MaxContactID() != 0 || empty.MaxMessageID() != 0 {
		t.Fatalf("empty dataset ids not zero")
	}
}

func TestLatestMessageDate(t *testing.T) {
	ds := &Dataset{Messages: []Message{
		{Date: "2026-01-15 10:00:00"},
		{Date: "2026-03-02 08:30:00"},
		{Date: "garbage"},
		{Date: "2025-12-31 23:59:59"},
	}}
	latest, ok := ds.LatestMessageDate()
	if !ok {
		t.Fatalf("expected a cursor")
	}
	if got := latest.Format(DateLayout); got != "2026-03-02 08:30:00" {
		t.Fatalf("cursor: %s", got)
	}

	if _, ok := (&Dataset{}).LatestMessageDate(); ok {
		t.Fatalf("empty dataset produced a cursor")
	}
}

func TestComputeStatistics(t *testing.T) {
	ds := &Dataset{
		Contacts: []Contact{{ID: 1}, {ID: 2}},
		Messages: []Message{
			{Content: "hey", Date: "2026-01-15 10:05:00", IsFromMe: true},
			{Content: "hello there", Date: "2026-01-15 22:10:00"},
			{Content: "", Date: "2026-01-16 10:20:00"},
		},
		Images: []Image{{Filename: "a.jpg"}},
	}
	ds.ComputeStatistics()

	s := ds.Statistics
	if s.TotalMessages != 3 || s.MessagesSent != 1 || s.MessagesReceived != 2 {
		t.Fatalf("counts: %+v", s)
	}
	if s.UniqueContacts != 2 || s.TotalImages != 1 {
		t.Fatalf("contacts/images: %+v", s)
	}
	if s.DateRange.Start != "2026-01-15 10:05:00" || s.DateRange.End != "2026-01-16 10:20:00" {
		t.Fatalf("date range: %+v", s.DateRange)
	}
	if s.HourlyDistribution[10] != 2 || s.HourlyDistribution[22] != 1 {
		t.Fatalf("hourly: %v", s.HourlyDistribution)
	}
	wantAvg := float64(len("hey")+len("hello there")) / 3
	if s.AvgMessageLength != wantAvg {
		t.Fatalf("avg length: %f, want %f", s.AvgMessageLength, wantAvg)
	}
}

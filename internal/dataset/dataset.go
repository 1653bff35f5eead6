// Package dataset defines the persisted output dataset consumed by the
// visualization layer, and its load/save semantics. Field names are
// part of the contract: they must stay identical across full and
// update runs.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// DateLayout is the timestamp format used throughout the dataset; it
// matches what the message store's datetime() conversion emits.
const DateLayout = "2006-01-02 15:04:05"

// Contact is a resolved sender identity with a stable id. Ids are
// assigned once and never reused; the display name may improve over
// time as better sources resolve.
type Contact struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Phone        string   `json:"phone"`
	MessageCount int      `json:"messageCount"`
	IsGroupChat  bool     `json:"isGroupChat"`
	DisplayName  string   `json:"displayName,omitempty"`
	Participants []string `json:"participants,omitempty"`
}

// Message is one extracted message. Immutable once persisted: update
// runs only ever append new messages.
type Message struct {
	ID              int64    `json:"id"`
	ContactID       int64    `json:"contactId"`
	Content         string   `json:"content"`
	Date            string   `json:"date"`
	IsFromMe        bool     `json:"isFromMe"`
	ConversationKey string   `json:"conversationKey"`
	SenderKey       string   `json:"senderKey"`
	SourceID        int64    `json:"sourceId"`
	Attachments     []string `json:"attachments,omitempty"`
}

// DedupKey identifies a message across extraction runs. The source
// store may re-serve rows near the update cursor, so appends dedup on
// this composite rather than on ids.
func (m Message) DedupKey() string {
	return m.ConversationKey + "\x00" + m.Date + "\x00" + m.SenderKey
}

// Image is one processed attachment reference.
type Image struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	Date        string `json:"date"`
	ContactName string `json:"contactName"`
	IsFromMe    bool   `json:"isFromMe"`
	MimeType    string `json:"mimeType"`
	MessageID   int64  `json:"messageId"`
}

// DateRange bounds the dataset's message timestamps.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Statistics summarizes the dataset for the consumer.
type Statistics struct {
	TotalMessages      int       `json:"totalMessages"`
	MessagesSent       int       `json:"messagesSent"`
	MessagesReceived   int       `json:"messagesReceived"`
	UniqueContacts     int       `json:"uniqueContacts"`
	AvgMessageLength   float64   `json:"avgMessageLength"`
	DateRange          DateRange `json:"dateRange"`
	HourlyDistribution [24]int   `json:"hourlyDistribution"`
	TotalImages        int       `json:"totalImages,omitempty"`
}

// Dataset is the full persisted structure.
type Dataset struct {
	Contacts   []Contact  `json:"contacts"`
	Messages   []Message  `json:"messages"`
	Images     []Image    `json:"images"`
	Statistics Statistics `json:"statistics"`
}

// Load reads a dataset from path. A missing file returns (nil, nil) so
// callers can distinguish "no prior run" from a read failure, which is
// fatal.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return &ds, nil
}

// BackupExisting copies the current file at path to a timestamped
// sibling before it gets replaced. No-op when path does not exist.
func BackupExisting(path string) (string, error) {
	src, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open dataset for backup: %w", err)
	}
	defer func() {
		_ = src.Close()
	}()

	backup := fmt.Sprintf("%s.backup-%d", path, time.Now().Unix())
	dst, err := os.Create(backup)
	if err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(backup)
		return "", fmt.Errorf("write backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close backup: %w", err)
	}
	return backup, nil
}

// MaxContactID returns the highest assigned contact id.
func (d *Dataset) MaxContactID() int64 {
	var max int64
	for _, c := range d.Contacts {
		if c.ID > max {
			max = c.ID
		}
	}
	return max
}

// MaxMessageID returns the highest assigned message id.
func (d *Dataset) MaxMessageID() int64 {
	var max int64
	for _, m := range d.Messages {
		if m.ID > max {
			max = m.ID
		}
	}
	return max
}

// LatestMessageDate returns the newest message timestamp, used as the
// extraction cursor for update runs.
func (d *Dataset) LatestMessageDate() (time.Time, bool) {
	var latest time.Time
	found := false
	for _, m := range d.Messages {
		t, err := time.ParseInLocation(DateLayout, m.Date, time.Local)
		if err != nil {
			continue
		}
		if !found || t.After(latest) {
			latest = t
			found = true
		}
	}
	return latest, found
}

// ComputeStatistics rebuilds the summary statistics from the current
// contacts, messages, and images.
func (d *Dataset) ComputeStatistics() {
	stats := Statistics{
		TotalMessages:  len(d.Messages),
		UniqueContacts: len(d.Contacts),
		TotalImages:    len(d.Images),
	}

	totalLength := 0
	for _, m := range d.Messages {
		if m.IsFromMe {
			stats.MessagesSent++
		}
		totalLength += len(m.Content)

		if t, err := time.ParseInLocation(DateLayout, m.Date, time.Local); err == nil {
			stats.HourlyDistribution[t.Hour()]++
		}
		if m.Date != "" {
			if stats.DateRange.Start == "" || m.Date < stats.DateRange.Start {
				stats.DateRange.Start = m.Date
			}
			if m.Date > stats.DateRange.End {
				stats.DateRange.End = m.Date
			}
		}
	}
	stats.MessagesReceived = stats.TotalMessages - stats.MessagesSent
	if stats.TotalMessages > 0 {
		stats.AvgMessageLength = float64(totalLength) / float64(stats.TotalMessages)
	}

	d.Statistics = stats
}

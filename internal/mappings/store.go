// Package mappings persists the identity mappings that survive across
// extraction runs: raw sender keys to display names, and group chat
// metadata. The file is the single source of truth for resolved
// identities; runs rebuild every other identity structure from it.
package mappings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/chatvault/chatvault/internal/fileutil"
)

// CurrentVersion tags the on-disk schema. Update runs refuse to
// reconcile against a store written by an unknown schema.
const CurrentVersion = 1

// ErrVersionMismatch is returned when the loaded file carries a
// version this build does not understand.
var ErrVersionMismatch = errors.New("mapping store version mismatch")

// GroupChat records a group conversation's participants and names.
// Participants are kept in first-appearance order and never removed.
type GroupChat struct {
	// DisplayName is a name assigned by the user or the OS; it is
	// preserved verbatim once set.
	DisplayName string `json:"display_name"`
	// Participants holds raw sender keys in join-table order.
	Participants []string `json:"participants"`
	// ResolvedDisplayName is synthesized from participant names when
	// no DisplayName exists.
	ResolvedDisplayName string `json:"resolved_display_name,omitempty"`
}

// Name returns whichever display name the group currently has.
func (g *GroupChat) Name() string {
	if g.DisplayName != "" {
		return g.DisplayName
	}
	return g.ResolvedDisplayName
}

// Store is the persistent key→value store for identity mappings.
// It is additive: names may be overwritten by a more specific source,
// never deleted.
type Store struct {
	Version     int                   `json:"version"`
	PhoneToName map[string]string     `json:"phone_to_name"`
	GroupChats  map[string]*GroupChat `json:"group_chats"`
}

// New returns an empty store at the current schema version.
func New() *Store {
	return &Store{
		Version:     CurrentVersion,
		PhoneToName: map[string]string{},
		GroupChats:  map[string]*GroupChat{},
	}
}

// Load reads the store from path. A missing file yields a fresh store;
// a corrupt file or unknown version is an error.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mapping store: %w", err)
	}

	var s Store
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse mapping store %s: %w", path, err)
	}
	if s.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: file has version %d, expected %d", ErrVersionMismatch, s.Version, CurrentVersion)
	}
	if s.PhoneToName == nil {
		s.PhoneToName = map[string]string{}
	}
	if s.GroupChats == nil {
		s.GroupChats = map[string]*GroupChat{}
	}
	return &s, nil
}

// Name returns the display name recorded for an exact raw key.
func (s *Store) Name(key string) (string, bool) {
	name, ok := s.PhoneToName[key]
	return name, ok && name != ""
}

// SetName records a display name under key, overwriting any prior
// value. Empty names are ignored so a failed lookup cannot erase a
// known mapping.
func (s *Store) SetName(key, name string) {
	if key == "" || name == "" {
		return
	}
	s.PhoneToName[key] = name
}

// Group returns the recorded group chat for a conversation key.
func (s *Store) Group(key string) (*GroupChat, bool) {
	g, ok := s.GroupChats[key]
	return g, ok
}

// SetGroup records group metadata under a conversation key.
func (s *Store) SetGroup(key string, g *GroupChat) {
	if key == "" || g == nil {
		return
	}
	s.GroupChats[key] = g
}

// Save atomically writes the store to path.
func (s *Store) Save(path string) error {
	return fileutil.WriteJSON(path, s)
}

// Stage writes the store to a temp file beside path without replacing
// the current file; the merge engine commits it together with the
// dataset so the two never diverge.
func (s *Store) Stage(path string) (string, error) {
	return fileutil.StageJSON(path, s)
}

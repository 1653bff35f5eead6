// Package identity resolves raw sender keys (phone numbers, emails,
// opaque chat ids) to display names by consulting an ordered chain of
// sources, and reconciles group conversation membership.
package identity

import (
	"context"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/mappings"
)

// Source is one resolution authority. Sources are consulted in a fixed
// order; the first hit wins.
type Source interface {
	TryResolve(ctx context.Context, rawKey string) (string, bool, error)
}

// Directory looks up a display name for a normalized phone or email
// key. It is supplied by the caller; lookups may be slow or
// interactive, so the resolver budgets one attempt per key per run.
type Directory interface {
	Lookup(ctx context.Context, normalizedKey string) (string, bool, error)
}

// NoDirectory is a Directory that never resolves anything.
type NoDirectory struct{}

// Lookup always reports a miss.
func (NoDirectory) Lookup(context.Context, string) (string, bool, error) {
	return "", false, nil
}

// Resolver maps raw sender keys to display names: persisted mapping
// store first, then the directory, then the raw key formatted for
// display. Directory hits are written back into the mapping store so
// later runs skip the lookup entirely.
type Resolver struct {
	sources []Source
	logger  *zap.Logger
}

// NewResolver builds the source chain over a mapping store and a
// directory. The store is shared, caller-owned state; the resolver
// never persists it.
func NewResolver(store *mappings.Store, dir Directory, logger *zap.Logger) *Resolver {
	if dir == nil {
		dir = NoDirectory{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		sources: []Source{
			&storeSource{store: store},
			&directorySource{store: store, dir: dir, attempted: map[string]struct{}{}, logger: logger},
		},
		logger: logger,
	}
}

// Resolve returns the display name for a raw key. It always succeeds;
// an unresolvable key falls back to its display formatting.
func (r *Resolver) Resolve(ctx context.Context, rawKey string) string {
	if rawKey == "" {
		return ""
	}
	for _, src := range r.sources {
		name, ok, err := src.TryResolve(ctx, rawKey)
		if err != nil {
			r.logger.Warn("identity source failed", zap.String("key", rawKey), zap.Error(err))
			continue
		}
		if ok {
			return name
		}
	}
	return DisplayFallback(rawKey)
}

// storeSource resolves against the persisted mapping store, trying the
// exact key first and then its normalized variants.
type storeSource struct {
	store *mappings.Store
}

func (s *storeSource) TryResolve(_ context.Context, rawKey string) (string, bool, error) {
	for _, variant := range Variants(rawKey) {
		if name, ok := s.store.Name(variant); ok {
			return name, true, nil
		}
	}
	return "", false, nil
}

// directorySource consults the external directory at most once per key
// per run and caches hits into the mapping store under every variant.
type directorySource struct {
	store     *mappings.Store
	dir       Directory
	attempted map[string]struct{}
	logger    *zap.Logger
}

func (s *directorySource) TryResolve(ctx context.Context, rawKey string) (string, bool, error) {
	normalized := Normalize(rawKey)
	if _, done := s.attempted[normalized]; done {
		return "", false, nil
	}
	s.attempted[normalized] = struct{}{}

	name, ok, err := s.dir.Lookup(ctx, normalized)
	if err != nil || !ok {
		return "", false, err
	}

	s.store.SetName(rawKey, name)
	for _, variant := range Variants(rawKey) {
		s.store.SetName(variant, name)
	}
	s.logger.Debug("directory resolved contact", zap.String("key", rawKey), zap.String("name", name))
	return name, true, nil
}

package identity

import (
	"context"
	"reflect"
	"testing"

	"github.com/chatvault/chatvault/internal/mappings"
)

func newGroupFixture(t *testing.T) (*mappings.Store, *GroupResolver) {
	t.Helper()
	store := mappings.New()
	store.SetName("+15551234567", "Alice")
	store.SetName("+15559876543", "Bob")
	resolver := NewResolver(store, nil, nil)
	return store, NewGroupResolver(store, resolver)
}

func TestIsGroupKey(t *testing.T) {
	if !IsGroupKey("chat123456789") {
		t.Fatalf("expected group key")
	}
	if IsGroupKey("+15551234567") || IsGroupKey("alice@example.com") {
		t.Fatalf("direct keys misclassified")
	}
}

func TestResolveGroupSynthesizedName(t *testing.T) {
	_, groups := newGroupFixture(t)
	ctx := context.Background()

	g := groups.ResolveGroup(ctx, "chat1", []string{"+15551234567", "+15559876543"})
	if g.Name() != "Alice, Bob" {
		t.Fatalf("synthesized name: got %q", g.Name())
	}
}

func TestResolveGroupOverflowSuffix(t *testing.T) {
	_, groups := newGroupFixture(t)
	ctx := context.Background()

	participants := []string{
		"+15551234567", "+15559876543",
		"+15550000001", "+15550000002", "+15550000003", "+15550000004",
	}
	g := groups.ResolveGroup(ctx, "chat2", participants)
	want := "Alice, Bob, +15550000001, +15550000002 +2 more"
	if g.Name() != want {
		t.Fatalf("overflow name: got %q, want %q", g.Name(), want)
	}
}

func TestResolveGroupParticipantsNeverShrink(t *testing.T) {
	store, groups := newGroupFixture(t)
	ctx := context.Background()

	groups.ResolveGroup(ctx, "chat3", []string{"+15551234567", "+15559876543"})
	groups.ResolveGroup(ctx, "chat3", []string{"+15559876543", "+15550000001"})
	// A later run observing only one participant must not shrink the
	// recorded set.
	g := groups.ResolveGroup(ctx, "chat3", []string{"+15551234567"})

	want := []string{"+15551234567", "+15559876543", "+15550000001"}
	if !reflect.DeepEqual(g.Participants, want) {
		t.Fatalf("participants: got %v, want %v", g.Participants, want)
	}
	stored, ok := store.Group("chat3")
	if !ok || !reflect.DeepEqual(stored.Participants, want) {
		t.Fatalf("stored participants: got %+v", stored)
	}
}

func TestResolveGroupExplicitNameWins(t *testing.T) {
	_, groups := newGroupFixture(t)
	ctx := context.Background()

	groups.SetDisplayName("chat4", "Ski Trip 2026")
	g := groups.ResolveGroup(ctx, "chat4", []string{"+15551234567", "+15559876543"})
	if g.Name() != "Ski Trip 2026" {
		t.Fatalf("explicit name: got %q", g.Name())
	}
	if g.ResolvedDisplayName != "" {
		t.Fatalf("synthesized name recorded despite explicit name: %q", g.ResolvedDisplayName)
	}
}

func TestResolveGroupDeterministicOrder(t *testing.T) {
	_, groups := newGroupFixture(t)
	ctx := context.Background()

	first := groups.ResolveGroup(ctx, "chat5", []string{"+15559876543", "+15551234567"})
	again := groups.ResolveGroup(ctx, "chat5", []string{"+15551234567", "+15559876543"})
	if first.Name() != "Bob, Alice" || again.Name() != "Bob, Alice" {
		t.Fatalf("name not stable across runs: %q then %q", first.Name(), again.Name())
	}
}

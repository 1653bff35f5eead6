package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/chatvault/chatvault/internal/mappings"
)

// groupKeyPrefix marks conversation keys that belong to group chats in
// the message store.
const groupKeyPrefix = "chat"

// maxNamedParticipants caps how many participant names appear in a
// synthesized group display name before collapsing to "+N more".
const maxNamedParticipants = 4

// IsGroupKey reports whether a conversation key identifies a group
// chat rather than a direct conversation.
func IsGroupKey(key string) bool {
	return strings.HasPrefix(key, groupKeyPrefix)
}

// GroupResolver reconciles group conversation metadata against the
// mapping store. Participant sets only ever grow; a run that observes
// fewer participants than previously recorded never shrinks the set.
type GroupResolver struct {
	store    *mappings.Store
	contacts *Resolver
}

// NewGroupResolver builds a group resolver over the shared mapping
// store and the contact resolver used for participant names.
func NewGroupResolver(store *mappings.Store, contacts *Resolver) *GroupResolver {
	return &GroupResolver{store: store, contacts: contacts}
}

// ResolveGroup unions newly observed participants into the recorded
// group, refreshes its synthesized display name, persists the result
// into the mapping store, and returns it.
//
// A display name assigned by the user or the OS is preserved verbatim.
// Otherwise the name is built from the first participants' resolved
// names in first-appearance order, which keeps the result
// deterministic for a given join order.
func (g *GroupResolver) ResolveGroup(ctx context.Context, conversationKey string, participantKeys []string) *mappings.GroupChat {
	group, ok := g.store.Group(conversationKey)
	if !ok {
		group = &mappings.GroupChat{}
	}

	seen := map[string]struct{}{}
	for _, p := range group.Participants {
		seen[p] = struct{}{}
	}
	for _, p := range participantKeys {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		group.Participants = append(group.Participants, p)
	}

	if group.DisplayName == "" {
		group.ResolvedDisplayName = g.synthesizeName(ctx, group.Participants)
	}

	g.store.SetGroup(conversationKey, group)
	return group
}

// SetDisplayName records an explicitly assigned group name, which
// takes precedence over any synthesized one from then on.
func (g *GroupResolver) SetDisplayName(conversationKey, name string) {
	if name == "" {
		return
	}
	group, ok := g.store.Group(conversationKey)
	if !ok {
		group = &mappings.GroupChat{}
		g.store.SetGroup(conversationKey, group)
	}
	group.DisplayName = name
}

func (g *GroupResolver) synthesizeName(ctx context.Context, participants []string) string {
	if len(participants) == 0 {
		return ""
	}
	names := make([]string, 0, maxNamedParticipants)
	for _, p := range participants {
		if len(names) == maxNamedParticipants {
			break
		}
		names = append(names, g.contacts.Resolve(ctx, p))
	}
	name := strings.Join(names, ", ")
	if extra := len(participants) - maxNamedParticipants; extra > 0 {
		name = fmt.Sprintf("%s +%d more", name, extra)
	}
	return name
}

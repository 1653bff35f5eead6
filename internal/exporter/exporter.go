// Package exporter orchestrates the extraction pipeline: fetch raw
// rows, decode bodies, resolve identities, merge into the persisted
// dataset, and persist. Each run mode is a restriction of which stages
// run, not a different algorithm.
package exporter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/chatdb"
	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/dataset"
	"github.com/chatvault/chatvault/internal/identity"
	"github.com/chatvault/chatvault/internal/mappings"
	"github.com/chatvault/chatvault/internal/merge"
	"github.com/chatvault/chatvault/internal/typedstream"
)

// Summary aggregates per-row outcomes for one run. Individual row
// failures never abort a batch; they land here instead.
type Summary struct {
	RowsFetched            int `json:"rowsFetched"`
	Messages               int `json:"messages"`
	DecodedFromBody        int `json:"decodedFromBody"`
	EmptyText              int `json:"emptyText"`
	SkippedRows            int `json:"skippedRows"`
	UnresolvedPlaceholders int `json:"unresolvedPlaceholders"`
	UnboundAttachments     int `json:"unboundAttachments"`
	NewContacts            int `json:"newContacts"`
	NewMessages            int `json:"newMessages"`
	Duplicates             int `json:"duplicates"`
	ImagesProcessed        int `json:"imagesProcessed"`
	ImagesSkipped          int `json:"imagesSkipped"`
}

// Exporter wires the pipeline stages together around one mapping
// store instance. Construct one per run; it is not safe for
// concurrent use.
type Exporter struct {
	cfg       *config.Config
	source    *chatdb.Store
	maps      *mappings.Store
	resolver  *identity.Resolver
	groups    *identity.GroupResolver
	engine    *merge.Engine
	converter Converter
	logger    *zap.Logger
}

// New builds an exporter over an open source store and a loaded
// mapping store. dir may be nil to disable directory lookups;
// converter may be nil to fall back to plain copies.
func New(cfg *config.Config, source *chatdb.Store, maps *mappings.Store, dir identity.Directory, converter Converter, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if converter == nil {
		converter = CopyConverter{}
	}
	resolver := identity.NewResolver(maps, dir, logger)
	return &Exporter{
		cfg:       cfg,
		source:    source,
		maps:      maps,
		resolver:  resolver,
		groups:    identity.NewGroupResolver(maps, resolver),
		engine:    merge.NewEngine(logger),
		converter: converter,
		logger:    logger,
	}
}

// RunFull rebuilds the dataset from scratch: stable ids are assigned
// densely from 1 and any previous dataset is replaced (after a
// backup).
func (e *Exporter) RunFull(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	processed, err := e.processAttachments(ctx, summary)
	if err != nil {
		return nil, err
	}

	batch, err := e.buildBatch(ctx, "", processed, summary)
	if err != nil {
		return nil, err
	}

	ds := e.engine.Full(batch)
	summary.NewContacts = len(ds.Contacts)
	summary.NewMessages = len(ds.Messages)

	attachImages(ds, processed)
	ds.ComputeStatistics()
	e.harvestMappings(ds)

	if err := e.engine.Persist(ds, e.maps, e.cfg.DatasetPath(), e.cfg.MappingsPath()); err != nil {
		return nil, err
	}
	e.logSummary("full export complete", summary)
	return summary, nil
}

// RunUpdate folds newly arrived rows into the existing dataset. With
// no existing dataset it degenerates to a full export.
func (e *Exporter) RunUpdate(ctx context.Context) (*Summary, error) {
	existing, err := dataset.Load(e.cfg.DatasetPath())
	if err != nil {
		return nil, err
	}
	if existing == nil {
		e.logger.Info("no existing dataset, running full export")
		return e.RunFull(ctx)
	}

	summary := &Summary{}

	since := ""
	if cursor, ok := existing.LatestMessageDate(); ok {
		since = cursor.Format(dataset.DateLayout)
		e.logger.Info("update cursor", zap.String("since", since))
	}

	batch, err := e.buildBatch(ctx, since, nil, summary)
	if err != nil {
		return nil, err
	}

	merged, res, err := e.engine.Update(existing, batch)
	if err != nil {
		return nil, err
	}
	summary.NewContacts = res.NewContacts
	summary.NewMessages = res.NewMessages
	summary.Duplicates = res.Duplicates

	e.harvestMappings(merged)

	if err := e.engine.Persist(merged, e.maps, e.cfg.DatasetPath(), e.cfg.MappingsPath()); err != nil {
		return nil, err
	}
	e.logSummary("update complete", summary)
	return summary, nil
}

// RunContacts re-resolves unresolved contact names without touching
// messages.
func (e *Exporter) RunContacts(ctx context.Context) (int, error) {
	ds, err := dataset.Load(e.cfg.DatasetPath())
	if err != nil {
		return 0, err
	}
	if ds == nil {
		return 0, fmt.Errorf("no dataset at %s; run a full export first", e.cfg.DatasetPath())
	}

	updated := 0
	for i := range ds.Contacts {
		c := &ds.Contacts[i]
		if c.IsGroupChat || identity.IsResolvedName(c.Name) {
			continue
		}
		name := e.resolver.Resolve(ctx, c.Phone)
		if identity.IsResolvedName(name) && name != c.Name {
			e.logger.Info("resolved contact", zap.String("was", c.Name), zap.String("now", name))
			c.Name = name
			updated++
		}
	}

	e.harvestMappings(ds)

	if err := e.engine.Persist(ds, e.maps, e.cfg.DatasetPath(), e.cfg.MappingsPath()); err != nil {
		return 0, err
	}
	return updated, nil
}

// RunAttachments reprocesses attachments without touching messages or
// contacts.
func (e *Exporter) RunAttachments(ctx context.Context) (*Summary, error) {
	ds, err := dataset.Load(e.cfg.DatasetPath())
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, fmt.Errorf("no dataset at %s; run a full export first", e.cfg.DatasetPath())
	}

	summary := &Summary{}
	processed, err := e.processAttachments(ctx, summary)
	if err != nil {
		return nil, err
	}

	attachImages(ds, processed)
	ds.ComputeStatistics()

	if err := e.engine.Persist(ds, e.maps, e.cfg.DatasetPath(), e.cfg.MappingsPath()); err != nil {
		return nil, err
	}
	e.logSummary("attachment processing complete", summary)
	return summary, nil
}

// buildBatch extracts rows and assembles a batch under ephemeral
// contact ids. processed may be nil when attachments are not being
// (re)bound this run.
func (e *Exporter) buildBatch(ctx context.Context, since string, processed []ProcessedAttachment, summary *Summary) (*merge.Batch, error) {
	if err := e.syncGroups(ctx); err != nil {
		return nil, fmt.Errorf("sync group chats: %w", err)
	}

	rows, err := e.source.ListMessages(ctx, chatdb.MessageListOptions{Since: since, Limit: e.cfg.MessageLimit})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	summary.RowsFetched = len(rows)

	bySource := map[int64][]ProcessedAttachment{}
	for _, p := range processed {
		bySource[p.SourceID] = append(bySource[p.SourceID], p)
	}

	batch := &merge.Batch{}
	contactIdx := map[string]int{}
	var nextEphemeral int64 = 1

	for _, row := range rows {
		atts := bySource[row.RowID]

		content := row.Text
		if content == "" && len(row.Body) > 0 {
			content = typedstream.Decode(row.Body)
			if content != "" {
				summary.DecodedFromBody++
			}
		}
		if content == "" {
			if len(row.Body) == 0 && len(atts) == 0 {
				// Nothing extractable: no text, no rich-text body,
				// no attachments. Typically system events.
				summary.SkippedRows++
				continue
			}
			summary.EmptyText++
		}

		key, isGroup := contactKey(row)
		idx, ok := contactIdx[key]
		if !ok {
			contact := e.newContact(ctx, nextEphemeral, key, isGroup, row)
			nextEphemeral++
			batch.Contacts = append(batch.Contacts, contact)
			idx = len(batch.Contacts) - 1
			contactIdx[key] = idx
		}
		batch.Contacts[idx].MessageCount++

		msg := dataset.Message{
			ContactID:       batch.Contacts[idx].ID,
			Content:         content,
			Date:            row.Date,
			IsFromMe:        row.IsFromMe,
			ConversationKey: row.ConversationKey,
			SenderKey:       row.SenderKey,
			SourceID:        row.RowID,
		}

		// Binding only applies when this run fetched attachments;
		// update runs leave the persisted image list alone.
		if processed != nil {
			binding := typedstream.BindAttachments(typedstream.Placeholders(content), len(atts))
			summary.UnboundAttachments += binding.UnboundAttachments
			summary.UnresolvedPlaceholders += binding.UnresolvedPlaceholders
			for i := range binding.Bound {
				msg.Attachments = append(msg.Attachments, atts[i].Image.URL)
			}
		}

		batch.Messages = append(batch.Messages, msg)
		summary.Messages++
	}

	return batch, nil
}

// syncGroups refreshes group membership and names in the mapping
// store from the source's join tables. Participant sets only grow.
func (e *Exporter) syncGroups(ctx context.Context) error {
	groups, err := e.source.ListGroupChats(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if g.DisplayName != "" {
			e.groups.SetDisplayName(g.Key, g.DisplayName)
		}
		e.groups.ResolveGroup(ctx, g.Key, g.Participants)
	}
	e.logger.Info("synced group chats", zap.Int("count", len(groups)))
	return nil
}

// newContact builds the batch-local contact record for a raw key.
func (e *Exporter) newContact(ctx context.Context, ephemeralID int64, key string, isGroup bool, row chatdb.MessageRow) dataset.Contact {
	contact := dataset.Contact{
		ID:          ephemeralID,
		Phone:       key,
		IsGroupChat: isGroup,
	}

	if isGroup {
		contact.Name = key
		if group, ok := e.maps.Group(key); ok {
			contact.Participants = append(contact.Participants, group.Participants...)
			if row.ChatDisplayName != "" {
				contact.Name = row.ChatDisplayName
			} else if name := group.Name(); name != "" {
				contact.DisplayName = name
			}
		} else if row.ChatDisplayName != "" {
			contact.Name = row.ChatDisplayName
		}
		return contact
	}

	name := e.resolver.Resolve(ctx, key)
	if !identity.IsResolvedName(name) && row.ChatDisplayName != "" {
		name = row.ChatDisplayName
	}
	contact.Name = name
	return contact
}

// harvestMappings writes names resolved during this run back into the
// mapping store so future runs skip the lookup.
func (e *Exporter) harvestMappings(ds *dataset.Dataset) {
	added := 0
	for _, c := range ds.Contacts {
		if c.IsGroupChat || !identity.IsResolvedName(c.Name) {
			continue
		}
		if _, known := e.maps.Name(c.Phone); known {
			continue
		}
		e.maps.SetName(c.Phone, c.Name)
		for _, variant := range identity.Variants(c.Phone) {
			e.maps.SetName(variant, c.Name)
		}
		added++
	}
	if added > 0 {
		e.logger.Info("recorded new contact mappings", zap.Int("count", added))
	}
}

// contactKey picks the identity a message attributes to. Group chat
// messages always attribute to the conversation itself so the thread
// stays together; direct messages attribute to the counterpart handle
// in both directions, which is also what folds self-sent and inbound
// rows of one conversation onto a single contact.
func contactKey(row chatdb.MessageRow) (string, bool) {
	if identity.IsGroupKey(row.ConversationKey) {
		return row.ConversationKey, true
	}
	if row.SenderKey != "" && !row.IsFromMe {
		return row.SenderKey, false
	}
	if row.ConversationKey != "" {
		return row.ConversationKey, false
	}
	if row.SenderKey != "" {
		return row.SenderKey, false
	}
	return fmt.Sprintf("unknown_%d", row.RowID), false
}

func (e *Exporter) logSummary(msg string, s *Summary) {
	e.logger.Info(msg,
		zap.Int("rows", s.RowsFetched),
		zap.Int("messages", s.Messages),
		zap.Int("decoded_from_body", s.DecodedFromBody),
		zap.Int("empty_text", s.EmptyText),
		zap.Int("new_contacts", s.NewContacts),
		zap.Int("new_messages", s.NewMessages),
		zap.Int("duplicates", s.Duplicates),
		zap.Int("unbound_attachments", s.UnboundAttachments),
		zap.Int("unresolved_placeholders", s.UnresolvedPlaceholders),
		zap.Int("images", s.ImagesProcessed),
	)
}

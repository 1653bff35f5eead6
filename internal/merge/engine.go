// Package merge reconciles a freshly extracted batch against the
// persisted dataset without duplicating records or drifting stable
// identifiers. Batches arrive with ephemeral ids that are only
// meaningful inside the batch; the engine's one hard rule is that
// every message is remapped onto stable contact ids before anything is
// appended.
package merge

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/dataset"
	"github.com/chatvault/chatvault/internal/fileutil"
	"github.com/chatvault/chatvault/internal/identity"
	"github.com/chatvault/chatvault/internal/mappings"
)

// Batch is the output of one extraction run. Contact ids are ephemeral
// (dense from 1 for this batch); message ids are unassigned.
type Batch struct {
	Contacts []dataset.Contact
	Messages []dataset.Message
	Images   []dataset.Image
}

// Result summarizes what an update merge changed.
type Result struct {
	NewMessages int
	NewContacts int
	Duplicates  int
	Orphaned    int
}

// Engine performs full and update merges.
type Engine struct {
	logger *zap.Logger
}

// NewEngine returns an engine logging through the given logger.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Full builds a dataset from scratch: contact and message ids are
// assigned densely from 1 in extraction order, discarding any prior
// dataset.
func (e *Engine) Full(batch *Batch) *dataset.Dataset {
	ds := &dataset.Dataset{
		Contacts: make([]dataset.Contact, 0, len(batch.Contacts)),
		Messages: make([]dataset.Message, 0, len(batch.Messages)),
		Images:   batch.Images,
	}
	if ds.Images == nil {
		ds.Images = []dataset.Image{}
	}

	remap := make(map[int64]int64, len(batch.Contacts))
	for i, c := range batch.Contacts {
		stable := int64(i + 1)
		remap[c.ID] = stable
		c.ID = stable
		c.MessageCount = 0
		ds.Contacts = append(ds.Contacts, c)
	}

	byID := contactIndex(ds)
	for i, m := range batch.Messages {
		stable, ok := remap[m.ContactID]
		if !ok {
			e.logger.Warn("message references unknown batch contact", zap.Int64("ephemeral_id", m.ContactID))
			continue
		}
		m.ContactID = stable
		m.ID = int64(i + 1)
		ds.Messages = append(ds.Messages, m)
		if idx, ok := byID[stable]; ok {
			ds.Contacts[idx].MessageCount++
		}
	}

	ds.ComputeStatistics()
	return ds
}

// Update folds a batch into an existing dataset. Existing may be nil
// (no prior run), in which case this degenerates to Full.
func (e *Engine) Update(existing *dataset.Dataset, batch *Batch) (*dataset.Dataset, Result, error) {
	if existing == nil {
		return e.Full(batch), Result{
			NewMessages: len(batch.Messages),
			NewContacts: len(batch.Contacts),
		}, nil
	}

	merged := existing
	var res Result

	// Raw key → position in merged.Contacts. A raw key matching two
	// persisted contacts has no sanctioned automatic resolution; the
	// lowest stable id wins and the collision is logged for manual
	// reconciliation.
	byKey := map[string]int{}
	for i, c := range merged.Contacts {
		prev, dup := byKey[c.Phone]
		if dup {
			e.logger.Warn("raw key maps to multiple stable contacts; keeping lowest id",
				zap.String("key", c.Phone),
				zap.Int64("kept", merged.Contacts[prev].ID),
				zap.Int64("ignored", c.ID))
			continue
		}
		byKey[c.Phone] = i
	}

	// Build the complete ephemeral→stable remap table first. No
	// message may be appended while any batch contact is unresolved:
	// an ephemeral id committed to disk would attach those messages
	// to whichever contact happens to hold that number next run.
	remap := make(map[int64]int64, len(batch.Contacts))
	nextContactID := merged.MaxContactID() + 1
	for _, bc := range batch.Contacts {
		if idx, ok := byKey[bc.Phone]; ok {
			existing := &merged.Contacts[idx]
			remap[bc.ID] = existing.ID
			foldContact(existing, bc)
			continue
		}
		ephemeral := bc.ID
		bc.ID = nextContactID
		bc.MessageCount = 0
		nextContactID++
		merged.Contacts = append(merged.Contacts, bc)
		byKey[bc.Phone] = len(merged.Contacts) - 1
		remap[ephemeral] = bc.ID
		res.NewContacts++
	}

	seen := make(map[string]struct{}, len(merged.Messages))
	for _, m := range merged.Messages {
		seen[m.DedupKey()] = struct{}{}
	}

	byID := contactIndex(merged)
	nextMessageID := merged.MaxMessageID() + 1
	for _, bm := range batch.Messages {
		stable, ok := remap[bm.ContactID]
		if !ok {
			res.Orphaned++
			continue
		}
		bm.ContactID = stable

		key := bm.DedupKey()
		if _, dup := seen[key]; dup {
			res.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		bm.ID = nextMessageID
		nextMessageID++
		merged.Messages = append(merged.Messages, bm)
		if idx, ok := byID[stable]; ok {
			merged.Contacts[idx].MessageCount++
		}
		res.NewMessages++
	}

	if len(batch.Images) > 0 {
		merged.Images = batch.Images
	}

	merged.ComputeStatistics()
	return merged, res, nil
}

// foldContact merges newly observed contact detail into a persisted
// contact: names improve (a resolved name supersedes a raw-key
// display), group participant sets grow, counts stay (they track
// appended messages only).
func foldContact(existing *dataset.Contact, observed dataset.Contact) {
	if identity.IsResolvedName(observed.Name) && !identity.IsResolvedName(existing.Name) {
		existing.Name = observed.Name
	}
	if observed.DisplayName != "" && existing.DisplayName == "" {
		existing.DisplayName = observed.DisplayName
	}
	if observed.IsGroupChat {
		present := map[string]struct{}{}
		for _, p := range existing.Participants {
			present[p] = struct{}{}
		}
		for _, p := range observed.Participants {
			if _, ok := present[p]; ok {
				continue
			}
			present[p] = struct{}{}
			existing.Participants = append(existing.Participants, p)
		}
	}
}

// Persist writes the dataset and mapping store atomically relative to
// each other: both files are fully staged before either is swapped
// into place, so a failure anywhere before the swap leaves prior state
// untouched. The mapping store commits first; it carries no ids, so a
// crash between the two renames cannot cross-wire records.
func (e *Engine) Persist(ds *dataset.Dataset, ms *mappings.Store, datasetPath, mappingsPath string) error {
	dsTmp, err := fileutil.StageJSON(datasetPath, ds)
	if err != nil {
		return fmt.Errorf("stage dataset: %w", err)
	}
	msTmp, err := ms.Stage(mappingsPath)
	if err != nil {
		fileutil.Discard(dsTmp)
		return fmt.Errorf("stage mapping store: %w", err)
	}

	if backup, err := dataset.BackupExisting(datasetPath); err != nil {
		fileutil.Discard(dsTmp)
		fileutil.Discard(msTmp)
		return fmt.Errorf("backup dataset: %w", err)
	} else if backup != "" {
		e.logger.Info("backed up previous dataset", zap.String("path", backup))
	}

	if err := fileutil.Commit(msTmp, mappingsPath); err != nil {
		fileutil.Discard(dsTmp)
		return fmt.Errorf("commit mapping store: %w", err)
	}
	if err := fileutil.Commit(dsTmp, datasetPath); err != nil {
		return fmt.Errorf("commit dataset: %w", err)
	}
	return nil
}

func contactIndex(ds *dataset.Dataset) map[int64]int {
	idx := make(map[int64]int, len(ds.Contacts))
	for i, c := range ds.Contacts {
		idx[c.ID] = i
	}
	return idx
}

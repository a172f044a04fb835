package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/medsync/internal/ir"
	"github.com/roach88/medsync/internal/metrics"
	"github.com/roach88/medsync/internal/payload"
	"github.com/roach88/medsync/internal/schema"
)

// ItemProcessor applies one sync item: decode, look up the type, resolve the
// target object, apply fields or a collection edit and commit.
//
// Process never returns an error. Every failure, including a panic in a
// setter, becomes a CONFLICT or ERROR import item so that sibling items in
// the record still run.
type ItemProcessor struct {
	catalog   *schema.Catalog
	resolver  *Resolver
	applier   *Applier
	committer *Committer
	logger    *slog.Logger
}

// NewItemProcessor wires the per-item pipeline over objects.
func NewItemProcessor(catalog *schema.Catalog, objects ObjectStore, nodeGUID string, clock Clock, m *metrics.Metrics, logger *slog.Logger) *ItemProcessor {
	return &ItemProcessor{
		catalog:   catalog,
		resolver:  NewResolver(objects),
		applier:   NewApplier(objects),
		committer: NewCommitter(objects, nodeGUID, clock, m),
		logger:    logger,
	}
}

// Process applies item as part of record recordGUID and reports the outcome.
func (p *ItemProcessor) Process(ctx context.Context, recordGUID string, item ir.SyncItem) (out ir.ImportItem) {
	out = ir.ImportItem{Key: item.Key, Content: item.Content, State: ir.ItemUnknown}

	defer func() {
		if r := recover(); r != nil {
			out = p.fail(recordGUID, out, NewGenericFailure(fmt.Errorf("panic: %v", r)))
		}
	}()

	if err := p.apply(ctx, recordGUID, item.Content); err != nil {
		return p.fail(recordGUID, out, AsItemError(err))
	}

	out.State = ir.ItemSynchronized
	p.logger.Debug("item synchronized", "record", recordGUID, "key", item.Key)
	return out
}

func (p *ItemProcessor) apply(ctx context.Context, recordGUID, content string) error {
	desc, err := payload.Decode(content)
	if err != nil {
		return NewMalformedPayloadError(err)
	}

	td, err := p.catalog.Type(desc.Type)
	if err != nil {
		return NewUnknownTypeError(desc.Type, err)
	}

	res, err := p.resolver.Resolve(ctx, td.Name, desc.GUID)
	if err != nil {
		return NewGenericFailure(err)
	}

	ent := res.Entity
	ent.Fields = ent.Fields.Clone()
	if desc.Collection != nil {
		// A collection edit never creates its owner.
		if !res.Exists {
			return NewNotCommittedError(td.Name, fmt.Errorf("collection owner %s/%s not found", td.Name, desc.GUID))
		}
		if err := p.applier.ApplyCollection(ctx, td, ent.Fields, desc.Collection); err != nil {
			return err
		}
	} else if err := p.applier.Apply(ctx, td, ent.Fields, desc.Fields); err != nil {
		return err
	}

	if _, err := p.committer.Commit(ctx, td, ent, recordGUID, res.Exists); err != nil {
		return err
	}
	return nil
}

func (p *ItemProcessor) fail(recordGUID string, out ir.ImportItem, ie *ItemError) ir.ImportItem {
	out.State = ir.ItemError
	if ie.Conflict() {
		out.State = ir.ItemConflict
	}
	out.ErrorCode = ie.Code
	out.ErrorArgs = ie.Args

	level := slog.LevelWarn
	if !ie.Conflict() {
		level = slog.LevelError
	}
	p.logger.Log(context.Background(), level, "item not synchronized",
		"record", recordGUID, "key", out.Key, "state", out.State, "code", ie.Code, "error", ie)
	return out
}

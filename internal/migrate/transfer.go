package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/devmigrate/internal/catalog"
	"github.com/roach88/devmigrate/internal/lock"
	"github.com/roach88/devmigrate/internal/payload"
	"github.com/roach88/devmigrate/internal/store"
)

// TransferOptions configures Transfer.
type TransferOptions struct {
	StorePath string
	Source    string
	Target    string
	Mode      Mode
	// DryRun plans without locking for write, backing up or writing.
	DryRun    bool
	BackupDir string
	// Catalogs are the entries to resolve against, newest first.
	Catalogs []*catalog.Catalog
	Logger   *slog.Logger

	Now   func() time.Time
	NewID func() string
}

// Transfer runs the whole pipeline: lock, resolve the catalog, extract
// both devices, plan, then back up, apply, verify and commit.
func Transfer(ctx context.Context, opts TransferOptions) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "migrate")
	if opts.Source == opts.Target {
		return nil, ErrSameDevice
	}

	var scope *lock.Lock
	if !opts.DryRun {
		l, err := lock.Acquire(opts.StorePath)
		if err != nil {
			if lock.IsHeld(err) {
				return nil, &Error{Kind: KindStoreLocked, Message: "another devmigrate session holds the store", Err: err}
			}
			return nil, err
		}
		defer l.Close()
		scope = l
	}

	s, err := store.Open(ctx, opts.StorePath, store.Options{ReadOnly: opts.DryRun})
	if err != nil {
		return nil, storeInUse(err)
	}
	defer s.Close()

	if !opts.DryRun {
		if err := s.AcquireExclusive(ctx); err != nil {
			return nil, storeInUse(err)
		}
		logger.Debug("exclusive lock acquired", "store", opts.StorePath)
	}

	schema, err := catalog.Resolve(ctx, s.Conn(), opts.Catalogs, logger)
	if err != nil {
		return nil, err
	}

	plan, err := PlanTransfer(ctx, schema, s.Conn(), opts.Source, opts.Target, opts.Mode)
	if err != nil {
		return nil, err
	}
	logger.Info("plan ready", "source", plan.Source, "target", plan.Target, "ops", len(plan.Ops))

	if opts.DryRun {
		return &Result{Outcome: OutcomeDryRun, Plan: plan, Trace: []State{StateIdle}}, nil
	}

	c := &Coordinator{
		Store:     s,
		Schema:    schema,
		BackupDir: opts.BackupDir,
		Logger:    logger,
		Now:       opts.Now,
		NewID:     opts.NewID,
	}
	return c.Apply(ctx, scope, plan)
}

// PlanTransfer extracts source and target and plans the retarget.
func PlanTransfer(ctx context.Context, schema *catalog.Schema, q store.Querier, source, target string, mode Mode) (*Plan, error) {
	if source == target {
		return nil, ErrSameDevice
	}
	for _, id := range []string{source, target} {
		if err := checkIdentifier(schema, id); err != nil {
			return nil, err
		}
	}
	src, err := Extract(ctx, schema, q, source)
	if err != nil {
		return nil, fmt.Errorf("extract source: %w", err)
	}
	dst, err := Extract(ctx, schema, q, target)
	if err != nil {
		return nil, fmt.Errorf("extract target: %w", err)
	}
	return Retarget(src, dst, mode)
}

// checkIdentifier rejects a device identifier that some catalogued payload
// column could not store or find again.
func checkIdentifier(schema *catalog.Schema, id string) error {
	for _, t := range schema.TablesOwnedByDevice() {
		for _, col := range t.BlobColumns() {
			codec := schema.Codec(t.Name, col)
			if codec == nil {
				continue
			}
			if err := payload.CheckIdentifier(codec, id); err != nil {
				e := payloadError(t.Name, col, 0, id, err)
				e.Message = "device identifier cannot be stored in this payload"
				return e
			}
		}
	}
	return nil
}

// storeInUse names engine lock contention; other errors pass through.
func storeInUse(err error) error {
	if store.IsLocked(err) {
		return &Error{Kind: KindStoreLocked, Message: "the store is in use; close the vendor application and retry", Err: err}
	}
	return err
}

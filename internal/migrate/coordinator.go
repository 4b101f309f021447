package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roach88/devmigrate/internal/catalog"
	"github.com/roach88/devmigrate/internal/lock"
	"github.com/roach88/devmigrate/internal/store"
)

// State is a step of the apply state machine.
type State string

const (
	StateIdle        State = "Idle"
	StateBackingUp   State = "BackingUp"
	StateTransacting State = "Transacting"
	StateVerifying   State = "Verifying"
	StateCommitted   State = "Committed"
	StateRolledBack  State = "RolledBack"
)

// Outcome summarises how a transfer ended.
type Outcome string

const (
	OutcomeCommitted  Outcome = "committed"
	OutcomeNoChanges  Outcome = "no-changes"
	OutcomeRolledBack Outcome = "rolled-back"
	OutcomeDryRun     Outcome = "dry-run"
)

// Result describes one apply.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Plan    *Plan   `json:"plan"`
	Backup  *Backup `json:"backup,omitempty"`
	Stats   Stats   `json:"stats"`
	// Trace lists every state entered, starting at Idle.
	Trace []State `json:"trace"`
}

// Coordinator applies plans to one store session.
type Coordinator struct {
	Store  *store.Store
	Schema *catalog.Schema
	// BackupDir defaults to the store's directory.
	BackupDir string
	Logger    *slog.Logger

	// Now and NewID default to time.Now and UUIDv7 session ids.
	Now   func() time.Time
	NewID func() string
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

func (c *Coordinator) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Coordinator) newID() string {
	if c.NewID == nil {
		return uuid.Must(uuid.NewV7()).String()
	}
	return c.NewID()
}

// Apply backs up the store, runs the plan in one transaction, verifies the
// target graph and commits. Any failure after the backup rolls the
// transaction back and leaves the backup in place.
//
// scope proves the caller holds the session lock; the store must already
// hold the engine's exclusive lock. Once the backup starts, cancelling ctx
// no longer interrupts the apply.
func (c *Coordinator) Apply(ctx context.Context, scope lock.Scope, plan *Plan) (*Result, error) {
	if scope == nil {
		return nil, errors.New("apply: no session lock held")
	}
	res := &Result{Plan: plan, Trace: []State{StateIdle}}
	log := c.logger().With("source", plan.Source, "target", plan.Target, "mode", plan.Mode)

	if plan.Empty() {
		res.Outcome = OutcomeNoChanges
		log.Info("target already matches source, nothing to apply")
		return res, nil
	}

	ctx = context.WithoutCancel(ctx)
	enter := func(s State) {
		res.Trace = append(res.Trace, s)
		log.Debug("state", "state", s)
	}
	fail := func(err error) (*Result, error) {
		enter(StateRolledBack)
		res.Outcome = OutcomeRolledBack
		return res, err
	}

	enter(StateBackingUp)
	if err := c.Store.Checkpoint(ctx); err != nil {
		if store.IsLocked(err) {
			return fail(storeInUse(err))
		}
		return fail(&Error{Kind: KindBackupFailed, Message: "could not checkpoint the store before the backup", Err: err})
	}
	backup, err := c.backup(plan)
	if err != nil {
		return fail(&Error{Kind: KindBackupFailed, Message: "could not create a verified backup", Err: err})
	}
	res.Backup = backup
	log.Info("backup written", "path", backup.Path, "size", humanize.Bytes(uint64(backup.Size)), "sha256", backup.SHA256)

	enter(StateTransacting)
	tx, err := c.Store.BeginTx(ctx)
	if err != nil {
		return fail(fmt.Errorf("begin transaction: %w", err))
	}
	stats, err := applyOps(ctx, tx, c.Schema, plan)
	res.Stats = stats
	if err != nil {
		return fail(rollback(tx, err))
	}

	enter(StateVerifying)
	if err := Verify(ctx, c.Schema, tx, plan); err != nil {
		return fail(rollback(tx, err))
	}

	if err := tx.Commit(); err != nil {
		return fail(fmt.Errorf("commit: %w", err))
	}
	enter(StateCommitted)
	res.Outcome = OutcomeCommitted
	log.Info("transfer committed",
		"deleted", stats.Deleted, "inserted", stats.Inserted, "updated", stats.Updated, "relinked", stats.Relinked)
	return res, nil
}

func (c *Coordinator) backup(plan *Plan) (*Backup, error) {
	now := c.now()
	b, err := writeBackup(c.Store.Snapshot, c.Store.Path(), c.BackupDir, now)
	if err != nil {
		return nil, err
	}
	b.SessionID = c.newID()
	b.Manifest, err = writeManifest(Manifest{
		SessionID:  b.SessionID,
		CreatedAt:  now.UTC(),
		Store:      c.Store.Path(),
		Backup:     b.Path,
		Size:       b.Size,
		SHA256:     b.SHA256,
		Source:     plan.Source,
		Target:     plan.Target,
		Mode:       plan.Mode,
		Catalog:    c.Schema.Version,
		AppVersion: c.Schema.AppVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return b, nil
}

func rollback(tx *sql.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		return errors.Join(err, fmt.Errorf("rollback: %w", rerr))
	}
	return err
}

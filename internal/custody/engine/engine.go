// Package engine implements the evidence custody state machine: role-gated
// lifecycle transitions over the versioned state store, with an audit event
// appended after every successful state write.
//
// Every operation takes an explicit transaction context; the engine holds no
// ambient state, performs no locking and never retries. Serialising
// conflicting writes to one evidence id is the calling layer's job. Within
// an operation the record write always precedes the event append, so an
// event can never exist without its state write.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/evidlock/custodyledger/internal/authz"
	"github.com/evidlock/custodyledger/internal/custody/model"
	"github.com/evidlock/custodyledger/internal/keyspace"
	"github.com/evidlock/custodyledger/internal/statestore"
)

// Role sets gating each transition. Create and check-in accept both field
// roles; transfer and removal are manager-only.
var (
	createRoles   = []string{authz.RoleForensicTechnician, authz.RoleEvidenceManager}
	checkInRoles  = createRoles
	transferRoles = []string{authz.RoleEvidenceManager}
	removeRoles   = transferRoles
)

// EventLog is the slice of the audit log the engine consumes.
type EventLog interface {
	Append(ctx context.Context, tx statestore.TxContext, ev model.EvidenceEvent) (string, error)
	ListByEvidence(ctx context.Context, evidenceID string) ([]model.EvidenceEvent, error)
}

// Engine executes custody transitions against a state store and event log.
type Engine struct {
	store       statestore.Store
	events      EventLog
	attribution Attribution
	logger      *zap.Logger
}

// New creates an Engine with the default attribution policy.
func New(store statestore.Store, events EventLog, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:       store,
		events:      events,
		attribution: DefaultAttribution,
		logger:      logger,
	}
}

// SetAttribution overrides the actor resolution policy.
func (e *Engine) SetAttribution(a Attribution) { e.attribution = a }

func recordKey(evidenceID string) string {
	return keyspace.Key(keyspace.TagEvidence, evidenceID)
}

func (e *Engine) load(ctx context.Context, evidenceID string) (*model.EvidenceRecord, error) {
	b, err := e.store.Get(ctx, recordKey(evidenceID))
	if errors.Is(err, statestore.ErrNotFound) {
		return nil, &model.NotFoundError{EvidenceID: evidenceID}
	}
	if err != nil {
		return nil, fmt.Errorf("load evidence %q: %w", evidenceID, err)
	}
	var rec model.EvidenceRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode evidence %q: %w", evidenceID, err)
	}
	return &rec, nil
}

func (e *Engine) persist(ctx context.Context, tx statestore.TxContext, rec *model.EvidenceRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode evidence %q: %w", rec.EvidenceID, err)
	}
	if err := e.store.Put(ctx, tx, recordKey(rec.EvidenceID), b); err != nil {
		return fmt.Errorf("persist evidence %q: %w", rec.EvidenceID, err)
	}
	return nil
}

// Create registers a new evidence item and appends its CREATED event.
// The custodian defaults to the resolved actor when unspecified.
func (e *Engine) Create(ctx context.Context, tx statestore.TxContext, p model.CreateParams) (*model.EvidenceRecord, error) {
	if p.EvidenceID == "" {
		return nil, &model.ValidationError{Msg: "evidenceId is required"}
	}
	if p.CaseIDHash == "" {
		return nil, &model.ValidationError{Msg: "caseIdHash is required"}
	}

	if _, err := e.store.Get(ctx, recordKey(p.EvidenceID)); err == nil {
		return nil, &model.AlreadyExistsError{EvidenceID: p.EvidenceID}
	} else if !errors.Is(err, statestore.ErrNotFound) {
		return nil, fmt.Errorf("check evidence %q: %w", p.EvidenceID, err)
	}

	if err := authz.Require(p.Role, createRoles...); err != nil {
		return nil, err
	}

	actor := e.attribution.Resolve(p.Actor, "")
	custodian := p.Custodian
	if custodian == "" {
		custodian = actor
	}
	now := tx.At.UnixMilli()

	rec := &model.EvidenceRecord{
		EvidenceID:       p.EvidenceID,
		CaseIDHash:       p.CaseIDHash,
		Description:      p.Description,
		ImageHash:        p.ImageHash,
		ImageFilename:    p.ImageFilename,
		Status:           model.StatusCreated,
		CreatedBy:        actor,
		Role:             p.Role,
		CurrentCustodian: custodian,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := e.persist(ctx, tx, rec); err != nil {
		return nil, err
	}

	if _, err := e.events.Append(ctx, tx, model.EvidenceEvent{
		EvidenceID:    p.EvidenceID,
		EventType:     model.EventCreated,
		PerformedBy:   actor,
		Role:          p.Role,
		ToCustodian:   custodian,
		ImageHash:     p.ImageHash,
		ImageFilename: p.ImageFilename,
		CertInfo:      p.Cert,
	}); err != nil {
		return nil, fmt.Errorf("append CREATED event: %w", err)
	}

	e.logger.Info("evidence created",
		zap.String("evidence_id", p.EvidenceID),
		zap.String("custodian", custodian),
		zap.String("tx_id", tx.ID),
	)
	return rec, nil
}

// CheckIn marks an item as back in custody, reassigning the custodian when
// one is supplied and leaving it unchanged otherwise.
func (e *Engine) CheckIn(ctx context.Context, tx statestore.TxContext, p model.CheckInParams) (*model.EvidenceRecord, error) {
	rec, err := e.load(ctx, p.EvidenceID)
	if err != nil {
		return nil, err
	}
	if rec.Removed() {
		return nil, &model.InvalidStateError{EvidenceID: p.EvidenceID, Status: rec.Status}
	}
	if err := authz.Require(p.Role, checkInRoles...); err != nil {
		return nil, err
	}

	actor := e.attribution.Resolve(p.Actor, rec.CreatedBy)
	if p.Custodian != "" {
		rec.CurrentCustodian = p.Custodian
	}
	rec.Status = model.StatusCheckedIn
	rec.Role = p.Role
	rec.UpdatedAt = tx.At.UnixMilli()

	if err := e.persist(ctx, tx, rec); err != nil {
		return nil, err
	}

	if _, err := e.events.Append(ctx, tx, model.EvidenceEvent{
		EvidenceID:  p.EvidenceID,
		EventType:   model.EventCheckedIn,
		PerformedBy: actor,
		Role:        p.Role,
		Notes:       p.Notes,
		ToCustodian: rec.CurrentCustodian,
		CertInfo:    p.Cert,
	}); err != nil {
		return nil, fmt.Errorf("append CHECKED_IN event: %w", err)
	}

	e.logger.Info("evidence checked in",
		zap.String("evidence_id", p.EvidenceID),
		zap.String("custodian", rec.CurrentCustodian),
		zap.String("tx_id", tx.ID),
	)
	return rec, nil
}

// Transfer hands the item to a new custodian. Manager-only, stricter than
// check-in.
func (e *Engine) Transfer(ctx context.Context, tx statestore.TxContext, p model.TransferParams) (*model.EvidenceRecord, error) {
	if p.ToCustodian == "" {
		return nil, &model.ValidationError{Msg: "toCustodian is required"}
	}

	rec, err := e.load(ctx, p.EvidenceID)
	if err != nil {
		return nil, err
	}
	if rec.Removed() {
		return nil, &model.InvalidStateError{EvidenceID: p.EvidenceID, Status: rec.Status}
	}
	if err := authz.Require(p.Role, transferRoles...); err != nil {
		return nil, err
	}

	actor := e.attribution.Resolve(p.Actor, rec.CreatedBy)
	from := p.FromCustodian
	if from == "" {
		from = rec.CurrentCustodian
	}

	rec.Status = model.StatusTransferred
	rec.CurrentCustodian = p.ToCustodian
	rec.Role = p.Role
	rec.UpdatedAt = tx.At.UnixMilli()

	if err := e.persist(ctx, tx, rec); err != nil {
		return nil, err
	}

	if _, err := e.events.Append(ctx, tx, model.EvidenceEvent{
		EvidenceID:    p.EvidenceID,
		EventType:     model.EventTransferred,
		PerformedBy:   actor,
		Role:          p.Role,
		Notes:         p.Notes,
		FromCustodian: from,
		ToCustodian:   p.ToCustodian,
		CertInfo:      p.Cert,
	}); err != nil {
		return nil, fmt.Errorf("append TRANSFERRED event: %w", err)
	}

	e.logger.Info("evidence transferred",
		zap.String("evidence_id", p.EvidenceID),
		zap.String("from", from),
		zap.String("to", p.ToCustodian),
		zap.String("tx_id", tx.ID),
	)
	return rec, nil
}

// Remove marks the item as removed from custody. Removing an already-removed
// item is permitted and re-appends a REMOVED event with a fresh timestamp,
// so repeated disposal attempts stay on the audit trail.
func (e *Engine) Remove(ctx context.Context, tx statestore.TxContext, p model.RemoveParams) (*model.EvidenceRecord, error) {
	rec, err := e.load(ctx, p.EvidenceID)
	if err != nil {
		return nil, err
	}
	if err := authz.Require(p.Role, removeRoles...); err != nil {
		return nil, err
	}

	actor := e.attribution.Resolve(p.Actor, rec.CreatedBy)
	rec.Status = model.StatusRemoved
	rec.Role = p.Role
	rec.UpdatedAt = tx.At.UnixMilli()

	if err := e.persist(ctx, tx, rec); err != nil {
		return nil, err
	}

	if _, err := e.events.Append(ctx, tx, model.EvidenceEvent{
		EvidenceID:  p.EvidenceID,
		EventType:   model.EventRemoved,
		PerformedBy: actor,
		Role:        p.Role,
		Notes:       p.Notes,
		CertInfo:    p.Cert,
	}); err != nil {
		return nil, fmt.Errorf("append REMOVED event: %w", err)
	}

	e.logger.Info("evidence removed",
		zap.String("evidence_id", p.EvidenceID),
		zap.String("tx_id", tx.ID),
	)
	return rec, nil
}

// Get returns the current record for evidenceID.
func (e *Engine) Get(ctx context.Context, evidenceID string) (*model.EvidenceRecord, error) {
	return e.load(ctx, evidenceID)
}

// Events returns the item's audit events, oldest first. Unknown ids yield
// an empty slice.
func (e *Engine) Events(ctx context.Context, evidenceID string) ([]model.EvidenceEvent, error) {
	return e.events.ListByEvidence(ctx, evidenceID)
}

// History returns the store-native version history of the record key,
// tombstones included. Live snapshots are decoded and attached.
func (e *Engine) History(ctx context.Context, evidenceID string) ([]model.HistoryEntry, error) {
	versions, err := e.store.History(ctx, recordKey(evidenceID))
	if err != nil {
		return nil, fmt.Errorf("history of %q: %w", evidenceID, err)
	}

	entries := make([]model.HistoryEntry, 0, len(versions))
	for _, v := range versions {
		entry := model.HistoryEntry{
			TxID:      v.TxID,
			Timestamp: v.At.UnixMilli(),
			IsDelete:  v.IsDelete,
		}
		if !v.IsDelete && len(v.Value) > 0 {
			var rec model.EvidenceRecord
			if err := json.Unmarshal(v.Value, &rec); err != nil {
				return nil, fmt.Errorf("decode history snapshot of %q: %w", evidenceID, err)
			}
			entry.Record = &rec
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Package model defines the evidence domain types shared by the custody
// engine, the audit log and the HTTP layer, together with the typed failure
// taxonomy.
package model

// Status represents the custody lifecycle state of an evidence item.
type Status string

const (
	StatusCreated     Status = "CREATED"
	StatusCheckedIn   Status = "CHECKED_IN"
	StatusTransferred Status = "TRANSFERRED"
	// StatusRemoved blocks further check-ins and transfers. Reads still
	// work, and a repeated removal is permitted (it re-appends an event).
	StatusRemoved Status = "REMOVED"
)

// EventType labels an audit event. Values mirror the status the recorded
// transition produced.
type EventType string

const (
	EventCreated     EventType = "CREATED"
	EventCheckedIn   EventType = "CHECKED_IN"
	EventTransferred EventType = "TRANSFERRED"
	EventRemoved     EventType = "REMOVED"
)

// CertInfo is the subject/issuer pair of the client certificate a request
// arrived with. Display-only provenance for the audit trail; nothing in this
// system verifies it.
type CertInfo struct {
	Subject string `json:"subject"`
	Issuer  string `json:"issuer"`
}

// EvidenceRecord is the current state of one evidence item, persisted as
// UTF-8 JSON under the (EVIDENCE, evidenceId) composite key. The JSON field
// names are the persisted wire format and must not change. Timestamps are
// epoch milliseconds derived from the logical transaction timestamp.
type EvidenceRecord struct {
	EvidenceID    string `json:"evidenceId"`
	CaseIDHash    string `json:"caseIdHash"` // one-way fingerprint; the raw case id is never stored
	Description   string `json:"description,omitempty"`
	ImageHash     string `json:"imageHash,omitempty"` // hex SHA-256 of the attached artifact
	ImageFilename string `json:"imageFilename,omitempty"`
	Status        Status `json:"status"`
	CreatedBy     string `json:"createdBy"`
	// Role is the role of the last actor to modify the record.
	Role             string `json:"role"`
	CurrentCustodian string `json:"currentCustodian"`
	CreatedAt        int64  `json:"createdAt"`
	UpdatedAt        int64  `json:"updatedAt"`
}

// Removed reports whether the record is in the REMOVED state.
func (r *EvidenceRecord) Removed() bool { return r.Status == StatusRemoved }

// EvidenceEvent is one append-only audit record, persisted as UTF-8 JSON
// under (EVIDENCE_EVENT, evidenceId, transactionId). Events are never
// updated or deleted; replaying them in timestamp order reconstructs the
// custody history of an item.
type EvidenceEvent struct {
	EvidenceID    string    `json:"evidenceId"`
	EventType     EventType `json:"eventType"`
	Timestamp     int64     `json:"timestamp"`
	PerformedBy   string    `json:"performedBy"`
	Role          string    `json:"role"`
	Notes         string    `json:"notes,omitempty"`
	FromCustodian string    `json:"fromCustodian,omitempty"`
	ToCustodian   string    `json:"toCustodian,omitempty"`
	ImageHash     string    `json:"imageHash,omitempty"`
	ImageFilename string    `json:"imageFilename,omitempty"`
	CertInfo      *CertInfo `json:"certInfo,omitempty"`
	// TransactionID is unique per event and doubles as the event's key
	// suffix, so one transaction appends at most one event per evidence id.
	TransactionID string `json:"transactionId"`
}

// HistoryEntry is one version of a record as reported by the store's native
// versioning, tombstones included. Distinct from the audit event log.
type HistoryEntry struct {
	TxID      string          `json:"transactionId"`
	Timestamp int64           `json:"timestamp"`
	IsDelete  bool            `json:"isDelete"`
	Record    *EvidenceRecord `json:"record,omitempty"`
}

// CreateParams are the engine inputs for Create. CaseIDHash is already a
// fingerprint: raw case identifiers stop at the API edge.
type CreateParams struct {
	EvidenceID    string
	CaseIDHash    string
	Description   string
	ImageHash     string
	ImageFilename string
	Custodian     string // defaults to the resolved actor when empty
	Actor         string
	Role          string
	Cert          *CertInfo
}

// CheckInParams are the engine inputs for CheckIn.
type CheckInParams struct {
	EvidenceID string
	Custodian  string // empty leaves the current custodian unchanged
	Notes      string
	Actor      string
	Role       string
	Cert       *CertInfo
}

// TransferParams are the engine inputs for Transfer.
type TransferParams struct {
	EvidenceID    string
	ToCustodian   string
	FromCustodian string // empty records the prior custodian
	Notes         string
	Actor         string
	Role          string
	Cert          *CertInfo
}

// RemoveParams are the engine inputs for Remove.
type RemoveParams struct {
	EvidenceID string
	Notes      string
	Actor      string
	Role       string
	Cert       *CertInfo
}

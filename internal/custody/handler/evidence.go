package handler

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/evidlock/custodyledger/internal/artifact"
	"github.com/evidlock/custodyledger/internal/authz"
	"github.com/evidlock/custodyledger/internal/casehash"
	"github.com/evidlock/custodyledger/internal/custody/engine"
	"github.com/evidlock/custodyledger/internal/custody/model"
	"github.com/evidlock/custodyledger/internal/integrity"
	"github.com/evidlock/custodyledger/internal/statestore"
)

const ctxRoleClaims = "custody_role_claims"

// writeGate serializes mutating requests per evidence id so the engine's
// read-modify-write sequence is never interleaved for the same record.
type writeGate struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newWriteGate() *writeGate {
	return &writeGate{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the per-id mutex and returns the unlock func.
func (g *writeGate) lock(id string) func() {
	g.mu.Lock()
	l, ok := g.locks[id]
	if !ok {
		l = &sync.Mutex{}
		g.locks[id] = l
	}
	g.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// EvidenceHandler handles HTTP requests for the evidence custody API.
type EvidenceHandler struct {
	engine    *engine.Engine
	artifacts artifact.Store
	verifier  *integrity.Verifier
	binder    *authz.RoleBinder // nil = trust body-declared actor/role
	salt      []byte
	gate      *writeGate
	logger    *zap.Logger
}

// NewEvidenceHandler creates a new EvidenceHandler. salt feeds the case-id
// fingerprint derivation and must be stable across the deployment.
func NewEvidenceHandler(eng *engine.Engine, artifacts artifact.Store, salt []byte, logger *zap.Logger) *EvidenceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvidenceHandler{
		engine:    eng,
		artifacts: artifacts,
		verifier:  integrity.NewVerifier(artifacts),
		salt:      salt,
		gate:      newWriteGate(),
		logger:    logger,
	}
}

// SetRoleBinder configures bearer-token role binding. When set, mutating
// routes require a valid token and its claims override body-declared
// actor/role fields.
func (h *EvidenceHandler) SetRoleBinder(b *authz.RoleBinder) {
	h.binder = b
}

// requireRole returns the bearer-enforcement middleware when a binder is
// configured, or a no-op middleware for open mode.
func (h *EvidenceHandler) requireRole() gin.HandlerFunc {
	if h.binder == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}
		claims, err := h.binder.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}
		c.Set(ctxRoleClaims, claims)
		c.Next()
	}
}

// roleClaimsFromCtx retrieves the claims injected by requireRole, or nil.
func roleClaimsFromCtx(c *gin.Context) *authz.RoleClaims {
	v, _ := c.Get(ctxRoleClaims)
	claims, _ := v.(*authz.RoleClaims)
	return claims
}

// peerCert extracts display info from the TLS client certificate, if any.
func peerCert(c *gin.Context) *model.CertInfo {
	if c.Request.TLS == nil || len(c.Request.TLS.PeerCertificates) == 0 {
		return nil
	}
	cert := c.Request.TLS.PeerCertificates[0]
	return &model.CertInfo{
		Subject: cert.Subject.String(),
		Issuer:  cert.Issuer.String(),
	}
}

// Register mounts the evidence routes on the given router group.
func (h *EvidenceHandler) Register(rg *gin.RouterGroup) {
	ev := rg.Group("/evidence")
	{
		ev.POST("", h.requireRole(), h.CreateEvidence)
		ev.GET("/:id", h.GetEvidence)
		ev.GET("/:id/history", h.GetHistory)
		ev.GET("/:id/events", h.GetEvents)
		ev.POST("/:id/checkin", h.requireRole(), h.CheckInEvidence)
		ev.POST("/:id/transfer", h.requireRole(), h.TransferEvidence)
		ev.POST("/:id/remove", h.requireRole(), h.RemoveEvidence)
		ev.GET("/:id/verify", h.VerifyEvidence)
		ev.POST("/:id/image", h.requireRole(), h.UploadImage)
		ev.GET("/:id/image", h.DownloadImage)
	}
}

// respondError maps engine errors onto HTTP statuses.
func (h *EvidenceHandler) respondError(c *gin.Context, op string, err error) {
	var (
		valErr   *model.ValidationError
		denied   *authz.DeniedError
		notFound *model.NotFoundError
		exists   *model.AlreadyExistsError
		invalid  *model.InvalidStateError
	)
	switch {
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Msg})
	case errors.As(err, &denied):
		c.JSON(http.StatusForbidden, gin.H{"error": denied.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &exists):
		c.JSON(http.StatusConflict, gin.H{"error": exists.Error()})
	case errors.As(err, &invalid):
		c.JSON(http.StatusConflict, gin.H{"error": invalid.Error()})
	default:
		h.logger.Error(op, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
	}
}

type createRequest struct {
	EvidenceID    string `json:"evidenceId"`
	CaseID        string `json:"caseId"`
	Description   string `json:"description"`
	ImageHash     string `json:"imageHash"`
	ImageFilename string `json:"imageFilename"`
	Custodian     string `json:"custodian"`
	Actor         string `json:"actor"`
	Role          string `json:"role"`
}

type checkInRequest struct {
	Custodian string `json:"custodian"`
	Notes     string `json:"notes"`
	Actor     string `json:"actor"`
	Role      string `json:"role"`
}

type transferRequest struct {
	ToCustodian   string `json:"toCustodian"`
	FromCustodian string `json:"fromCustodian"`
	Notes         string `json:"notes"`
	Actor         string `json:"actor"`
	Role          string `json:"role"`
}

type removeRequest struct {
	Notes string `json:"notes"`
	Actor string `json:"actor"`
	Role  string `json:"role"`
}

// identity returns the effective actor/role for the request: bearer claims
// when role binding is active, body-declared values otherwise.
func identity(c *gin.Context, actor, role string) (string, string) {
	if claims := roleClaimsFromCtx(c); claims != nil {
		return claims.Actor, claims.Role
	}
	return actor, role
}

// CreateEvidence handles POST /evidence — registers a new evidence record.
//
// The raw caseId is fingerprinted here and never reaches the engine or the
// store.
func (h *EvidenceHandler) CreateEvidence(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.CaseID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "caseId is required"})
		return
	}

	actor, role := identity(c, req.Actor, req.Role)

	unlock := h.gate.lock(req.EvidenceID)
	defer unlock()

	tx := statestore.NewTxContext()
	rec, err := h.engine.Create(c.Request.Context(), tx, model.CreateParams{
		EvidenceID:    req.EvidenceID,
		CaseIDHash:    casehash.Fingerprint(req.CaseID, h.salt),
		Description:   req.Description,
		ImageHash:     req.ImageHash,
		ImageFilename: req.ImageFilename,
		Custodian:     req.Custodian,
		Actor:         actor,
		Role:          role,
		Cert:          peerCert(c),
	})
	if err != nil {
		h.respondError(c, "create evidence", err)
		return
	}
	RecordTransition(string(model.EventCreated))

	c.JSON(http.StatusCreated, gin.H{
		"evidence":      rec,
		"transactionId": tx.ID,
	})
}

// GetEvidence handles GET /evidence/:id — returns the current record.
func (h *EvidenceHandler) GetEvidence(c *gin.Context) {
	rec, err := h.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get evidence", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evidence": rec})
}

// GetHistory handles GET /evidence/:id/history — returns every persisted
// version of the record, deletion markers included.
func (h *EvidenceHandler) GetHistory(c *gin.Context) {
	entries, err := h.engine.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get history", err)
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"history": entries, "count": len(entries)})
}

// GetEvents handles GET /evidence/:id/events — returns the custody trail in
// timestamp order.
func (h *EvidenceHandler) GetEvents(c *gin.Context) {
	events, err := h.engine.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get events", err)
		return
	}
	if events == nil {
		events = []model.EvidenceEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// CheckInEvidence handles POST /evidence/:id/checkin.
func (h *EvidenceHandler) CheckInEvidence(c *gin.Context) {
	id := c.Param("id")

	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, role := identity(c, req.Actor, req.Role)

	unlock := h.gate.lock(id)
	defer unlock()

	tx := statestore.NewTxContext()
	rec, err := h.engine.CheckIn(c.Request.Context(), tx, model.CheckInParams{
		EvidenceID: id,
		Custodian:  req.Custodian,
		Notes:      req.Notes,
		Actor:      actor,
		Role:       role,
		Cert:       peerCert(c),
	})
	if err != nil {
		h.respondError(c, "check in evidence", err)
		return
	}
	RecordTransition(string(model.EventCheckedIn))

	c.JSON(http.StatusOK, gin.H{
		"evidence":      rec,
		"transactionId": tx.ID,
	})
}

// TransferEvidence handles POST /evidence/:id/transfer.
func (h *EvidenceHandler) TransferEvidence(c *gin.Context) {
	id := c.Param("id")

	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, role := identity(c, req.Actor, req.Role)

	unlock := h.gate.lock(id)
	defer unlock()

	tx := statestore.NewTxContext()
	rec, err := h.engine.Transfer(c.Request.Context(), tx, model.TransferParams{
		EvidenceID:    id,
		ToCustodian:   req.ToCustodian,
		FromCustodian: req.FromCustodian,
		Notes:         req.Notes,
		Actor:         actor,
		Role:          role,
		Cert:          peerCert(c),
	})
	if err != nil {
		h.respondError(c, "transfer evidence", err)
		return
	}
	RecordTransition(string(model.EventTransferred))

	c.JSON(http.StatusOK, gin.H{
		"evidence":      rec,
		"transactionId": tx.ID,
	})
}

// RemoveEvidence handles POST /evidence/:id/remove.
func (h *EvidenceHandler) RemoveEvidence(c *gin.Context) {
	id := c.Param("id")

	var req removeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor, role := identity(c, req.Actor, req.Role)

	unlock := h.gate.lock(id)
	defer unlock()

	tx := statestore.NewTxContext()
	rec, err := h.engine.Remove(c.Request.Context(), tx, model.RemoveParams{
		EvidenceID: id,
		Notes:      req.Notes,
		Actor:      actor,
		Role:       role,
		Cert:       peerCert(c),
	})
	if err != nil {
		h.respondError(c, "remove evidence", err)
		return
	}
	RecordTransition(string(model.EventRemoved))

	c.JSON(http.StatusOK, gin.H{
		"evidence":      rec,
		"transactionId": tx.ID,
	})
}

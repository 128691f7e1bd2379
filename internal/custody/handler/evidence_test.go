package handler_test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/evidlock/custodyledger/internal/artifact"
	"github.com/evidlock/custodyledger/internal/auditlog"
	"github.com/evidlock/custodyledger/internal/authz"
	"github.com/evidlock/custodyledger/internal/custody/engine"
	"github.com/evidlock/custodyledger/internal/custody/handler"
	"github.com/evidlock/custodyledger/internal/integrity"
	"github.com/evidlock/custodyledger/internal/statestore"
)

// ── Setup ────────────────────────────────────────────────────────────────

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := statestore.NewMemory()
	eng := engine.New(store, auditlog.New(store), zap.NewNop())

	h := handler.NewEvidenceHandler(eng, artifact.NewMemory(), []byte("test-salt-0123456"), zap.NewNop())

	router := gin.New()
	h.Register(router.Group("/api/v1"))
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("{}")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func createEvidence(t *testing.T, router *gin.Engine, id string) map[string]any {
	t.Helper()
	body := `{
		"evidenceId":"` + id + `",
		"caseId":"CASE-77",
		"description":"seized laptop drive",
		"actor":"alice",
		"role":"ForensicTechnician"
	}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/evidence", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create evidence: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode(t, w)
}

// ── Create ───────────────────────────────────────────────────────────────

func TestCreateEvidence_201(t *testing.T) {
	router := setupRouter(t)

	resp := createEvidence(t, router, "HD-001")
	ev := resp["evidence"].(map[string]any)

	if ev["status"] != "CREATED" {
		t.Errorf("expected status CREATED, got %v", ev["status"])
	}
	if ev["currentCustodian"] != "alice" {
		t.Errorf("expected custodian alice, got %v", ev["currentCustodian"])
	}
	if resp["transactionId"] == "" || resp["transactionId"] == nil {
		t.Error("expected a transactionId in the response")
	}
}

func TestCreateEvidence_FingerprintsCaseID(t *testing.T) {
	router := setupRouter(t)

	resp := createEvidence(t, router, "HD-001")
	ev := resp["evidence"].(map[string]any)

	hash, _ := ev["caseIdHash"].(string)
	if hash == "" {
		t.Fatal("expected caseIdHash to be set")
	}
	if hash == "CASE-77" || strings.Contains(hash, "CASE") {
		t.Errorf("raw case id leaked into record: %q", hash)
	}
	if len(hash) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(hash))
	}
	if _, ok := ev["caseId"]; ok {
		t.Error("raw caseId must not appear in the stored record")
	}
}

func TestCreateEvidence_400_MalformedJSON(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/evidence", `{invalid`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateEvidence_400_MissingCaseID(t *testing.T) {
	router := setupRouter(t)

	body := `{"evidenceId":"HD-001","description":"x","actor":"alice","role":"ForensicTechnician"}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/evidence", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "caseId") {
		t.Errorf("expected caseId mentioned in error, got %s", w.Body.String())
	}
}

func TestCreateEvidence_409_Duplicate(t *testing.T) {
	router := setupRouter(t)

	createEvidence(t, router, "HD-001")
	body := `{"evidenceId":"HD-001","caseId":"CASE-77","description":"again","actor":"bob","role":"EvidenceManager"}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/evidence", body)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateEvidence_403_BadRole(t *testing.T) {
	router := setupRouter(t)

	body := `{"evidenceId":"HD-001","caseId":"CASE-77","description":"x","actor":"eve","role":"Janitor"}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/evidence", body)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

// ── Reads ────────────────────────────────────────────────────────────────

func TestGetEvidence_200(t *testing.T) {
	router := setupRouter(t)
	createEvidence(t, router, "HD-001")

	w := doJSON(t, router, http.MethodGet, "/api/v1/evidence/HD-001", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	ev := decode(t, w)["evidence"].(map[string]any)
	if ev["evidenceId"] != "HD-001" {
		t.Errorf("expected HD-001, got %v", ev["evidenceId"])
	}
}

func TestGetEvidence_404(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/evidence/NOPE", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetEvents_OrderedTrail(t *testing.T) {
	router := setupRouter(t)
	createEvidence(t, router, "HD-001")

	w := doJSON(t, router, http.MethodPost, "/api/v1/evidence/HD-001/transfer",
		`{"toCustodian":"bob","actor":"mgr","role":"EvidenceManager"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("transfer: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/evidence/HD-001/events", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode(t, w)
	if int(resp["count"].(float64)) != 2 {
		t.Fatalf("expected 2 events, got %v", resp["count"])
	}
	events := resp["events"].([]any)
	first := events[0].(map[string]any)
	second := events[1].(map[string]any)
	if first["eventType"] != "CREATED" || second["eventType"] != "TRANSFERRED" {
		t.Errorf("unexpected trail: %v then %v", first["eventType"], second["eventType"])
	}
	if first["performedBy"] != "alice" || second["performedBy"] != "mgr" {
		t.Errorf("unexpected actors: %v then %v", first["performedBy"], second["performedBy"])
	}
	if second["toCustodian"] != "bob" {
		t.Errorf("expected toCustodian bob, got %v", second["toCustodian"])
	}
}

func TestGetEvents_UnknownIDEmptyList(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/evidence/NOPE/events", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode(t, w)
	if int(resp["count"].(float64)) != 0 {
		t.Errorf("expected empty trail, got %v", resp["events"])
	}
}

func TestGetHistory_TracksVersions(t *testing.T) {
	router := setupRouter(t)
	createEvidence(t, router, "HD-001")

	w := doJSON(t, router, http.MethodPost, "/api/v1/evidence/HD-001/checkin",
		`{"custodian":"locker-3","actor":"alice","role":"ForensicTechnician"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("checkin: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/evidence/HD-001/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode(t, w)
	if int(resp["count"].(float64)) != 2 {
		t.Fatalf("expected 2 versions, got %v", resp["count"])
	}
	entries := resp["history"].([]any)
	last := entries[1].(map[string]any)
	rec := last["record"].(map[string]any)
	if rec["status"] != "CHECKED_IN" {
		t.Errorf("expected latest version CHECKED_IN, got %v", rec["status"])
	}
}

// ── Transitions ──────────────────────────────────────────────────────────

func TestCheckIn_404(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/evidence/NOPE/checkin",
		`{"actor":"alice","role":"ForensicTechnician"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCheckIn_409_AfterRemoval(t *testing.T) {
	router := setupRouter(t)
	createEvidence(t, router, "HD-001")

	w := doJSON(t, router, http.MethodPost, "/api/v1/evidence/HD-001/remove",
		`{"actor":"mgr","role":"EvidenceManager"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("remove: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/evidence/HD-001/checkin",
		`{"actor":"alice","role":"ForensicTechnician"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTransfer_403_TechnicianDenied(t *testing.T) {
	router := setupRouter(t)
	createEvidence(t, router, "HD-001")

	w := doJSON(t, router, http.MethodPost, "/api/v1/evidence/HD-001/transfer",
		`{"toCustodian":"bob","actor":"alice","role":"ForensicTechnician"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTransfer_400_MissingToCustodian(t *testing.T) {
	router := setupRouter(t)
	createEvidence(t, router, "HD-001")

	w := doJSON(t, router, http.MethodPost, "/api/v1/evidence/HD-001/transfer",
		`{"actor":"mgr","role":"EvidenceManager"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRemove_200_Repeatable(t *testing.T) {
	router := setupRouter(t)
	createEvidence(t, router, "HD-001")

	for i := 0; i < 2; i++ {
		w := doJSON(t, router, http.MethodPost, "/api/v1/evidence/HD-001/remove",
			`{"actor":"mgr","role":"EvidenceManager"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("remove #%d: expected 200, got %d: %s", i+1, w.Code, w.Body.String())
		}
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/evidence/HD-001/events", "")
	resp := decode(t, w)
	if int(resp["count"].(float64)) != 3 {
		t.Errorf("expected CREATED + 2x REMOVED, got %v events", resp["count"])
	}
}

// ── Artifacts and integrity ──────────────────────────────────────────────

func uploadImage(t *testing.T, router *gin.Engine, id string, data []byte) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "drive.img")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evidence/"+id+"/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode(t, w)
}

func TestUploadImage_ReturnsDigest(t *testing.T) {
	router := setupRouter(t)

	data := []byte("dd-image-bytes")
	resp := uploadImage(t, router, "HD-001", data)

	if resp["sha256"] != integrity.Digest(data) {
		t.Errorf("expected digest %s, got %v", integrity.Digest(data), resp["sha256"])
	}
	if int64(resp["size"].(float64)) != int64(len(data)) {
		t.Errorf("expected size %d, got %v", len(data), resp["size"])
	}
}

func TestUploadImage_409_WriteOnce(t *testing.T) {
	router := setupRouter(t)
	uploadImage(t, router, "HD-001", []byte("original"))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("image", "drive2.img")
	fw.Write([]byte("overwrite attempt"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evidence/HD-001/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUploadImage_400_MissingField(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evidence/HD-001/image", strings.NewReader("raw"))
	req.Header.Set("Content-Type", "application/octet-stream")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestDownloadImage_RoundTrip(t *testing.T) {
	router := setupRouter(t)

	data := []byte("dd-image-bytes")
	uploadImage(t, router, "HD-001", data)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/evidence/HD-001/image", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), data) {
		t.Error("downloaded bytes differ from upload")
	}
	if got := w.Header().Get("X-Checksum-Sha256"); got != integrity.Digest(data) {
		t.Errorf("expected checksum header %s, got %s", integrity.Digest(data), got)
	}
}

func TestDownloadImage_404(t *testing.T) {
	router := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/evidence/NOPE/image", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestVerify_Verified(t *testing.T) {
	router := setupRouter(t)

	data := []byte("dd-image-bytes")
	up := uploadImage(t, router, "HD-001", data)

	body := `{
		"evidenceId":"HD-001",
		"caseId":"CASE-77",
		"description":"seized laptop drive",
		"imageHash":"` + up["sha256"].(string) + `",
		"actor":"alice",
		"role":"ForensicTechnician"
	}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/evidence", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/evidence/HD-001/verify", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	report := decode(t, w)["integrity"].(map[string]any)
	if report["outcome"] != "verified" {
		t.Errorf("expected verified, got %v: %v", report["outcome"], report)
	}
}

func TestVerify_Tampered(t *testing.T) {
	router := setupRouter(t)

	uploadImage(t, router, "HD-001", []byte("tampered bytes"))

	body := `{
		"evidenceId":"HD-001",
		"caseId":"CASE-77",
		"description":"seized laptop drive",
		"imageHash":"` + integrity.Digest([]byte("pristine bytes")) + `",
		"actor":"alice",
		"role":"ForensicTechnician"
	}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/evidence", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/evidence/HD-001/verify", "")
	report := decode(t, w)["integrity"].(map[string]any)
	if report["outcome"] != "tampered" {
		t.Errorf("expected tampered, got %v", report["outcome"])
	}
}

func TestVerify_UnavailableWithoutArtifact(t *testing.T) {
	router := setupRouter(t)
	createEvidence(t, router, "HD-001")

	w := doJSON(t, router, http.MethodGet, "/api/v1/evidence/HD-001/verify", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	report := decode(t, w)["integrity"].(map[string]any)
	if report["outcome"] != "unavailable" {
		t.Errorf("expected unavailable, got %v", report["outcome"])
	}
}

func TestVerify_404_UnknownEvidence(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/evidence/NOPE/verify", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

// ── Bearer role binding ──────────────────────────────────────────────────

func setupBoundRouter(t *testing.T) (*gin.Engine, *rsa.PrivateKey) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	binder, err := authz.NewRoleBinder(pubPEM, "evidlock")
	if err != nil {
		t.Fatalf("new binder: %v", err)
	}

	store := statestore.NewMemory()
	eng := engine.New(store, auditlog.New(store), zap.NewNop())
	h := handler.NewEvidenceHandler(eng, artifact.NewMemory(), []byte("test-salt-0123456"), zap.NewNop())
	h.SetRoleBinder(binder)

	router := gin.New()
	h.Register(router.Group("/api/v1"))
	return router, key
}

func signRole(t *testing.T, key *rsa.PrivateKey, actor, role string) string {
	t.Helper()
	claims := authz.RoleClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "evidlock",
			Subject:   actor,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Actor: actor,
		Role:  role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestBoundCreate_401_WithoutToken(t *testing.T) {
	router, _ := setupBoundRouter(t)

	body := `{"evidenceId":"HD-001","caseId":"CASE-77","description":"x","actor":"alice","role":"ForensicTechnician"}`
	w := doJSON(t, router, http.MethodPost, "/api/v1/evidence", body)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestBoundCreate_ClaimsOverrideBody(t *testing.T) {
	router, key := setupBoundRouter(t)

	token := signRole(t, key, "carol", "EvidenceManager")
	body := `{"evidenceId":"HD-001","caseId":"CASE-77","description":"x","actor":"impostor","role":"Janitor"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evidence", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	ev := decode(t, w)["evidence"].(map[string]any)
	if ev["createdBy"] != "carol" {
		t.Errorf("expected createdBy carol from claims, got %v", ev["createdBy"])
	}
	if ev["role"] != "EvidenceManager" {
		t.Errorf("expected role from claims, got %v", ev["role"])
	}
}

func TestBoundReads_OpenWithoutToken(t *testing.T) {
	router, key := setupBoundRouter(t)

	token := signRole(t, key, "carol", "EvidenceManager")
	body := `{"evidenceId":"HD-001","caseId":"CASE-77","description":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evidence", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w2 := doJSON(t, router, http.MethodGet, "/api/v1/evidence/HD-001", "")
	if w2.Code != http.StatusOK {
		t.Fatalf("expected reads open, got %d", w2.Code)
	}
}

// ── Rate limiting ────────────────────────────────────────────────────────

func TestRateLimiter_429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handler.RateLimiter(1, 2))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("burst requests should pass, got %v", codes)
	}
	if codes[3] != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %v", codes)
	}
}

package client_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evidlock/custodyledger/pkg/client"
)

// ── Stub server ──────────────────────────────────────────────────────────

func stubCustodyServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/evidence", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["evidenceId"] == "HD-DUP" {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{"error": "evidence HD-DUP already exists"})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"evidence": map[string]any{
				"evidenceId":       req["evidenceId"],
				"caseIdHash":       "deadbeef",
				"status":           "CREATED",
				"createdBy":        req["actor"],
				"currentCustodian": req["actor"],
			},
			"transactionId": "11111111-2222-3333-4444-555555555555",
		})
	})

	mux.HandleFunc("/api/v1/evidence/HD-001", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"evidence": map[string]any{
				"evidenceId": "HD-001",
				"status":     "TRANSFERRED",
			},
		})
	})

	mux.HandleFunc("/api/v1/evidence/HD-404", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": "evidence HD-404 not found"})
	})

	mux.HandleFunc("/api/v1/evidence/HD-001/events", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"events": []map[string]any{
				{"evidenceId": "HD-001", "eventType": "CREATED", "performedBy": "alice", "timestamp": 1000},
				{"evidenceId": "HD-001", "eventType": "TRANSFERRED", "performedBy": "mgr", "toCustodian": "bob", "timestamp": 2000},
			},
			"count": 2,
		})
	})

	mux.HandleFunc("/api/v1/evidence/HD-001/transfer", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"evidence": map[string]any{
				"evidenceId":       "HD-001",
				"status":           "TRANSFERRED",
				"currentCustodian": "bob",
			},
			"transactionId": "tx-" + auth,
		})
	})

	mux.HandleFunc("/api/v1/evidence/HD-001/verify", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"evidenceId": "HD-001",
			"integrity": map[string]any{
				"outcome":      "tampered",
				"recordedHash": "aaaa",
				"computedHash": "bbbb",
			},
		})
	})

	mux.HandleFunc("/api/v1/evidence/HD-001/image", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			f, hdr, err := r.FormFile("image")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]any{"error": "multipart field \"image\" is required"})
				return
			}
			defer f.Close()
			data, _ := io.ReadAll(f)
			sum := sha256.Sum256(data)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{
				"evidenceId":  "HD-001",
				"sha256":      hex.EncodeToString(sum[:]),
				"size":        len(data),
				"contentType": "application/octet-stream",
				"filename":    hdr.Filename,
			})
			return
		}
		w.Header().Set("X-Checksum-Sha256", "cafef00d")
		w.Write([]byte("image-bytes"))
	})

	return httptest.NewServer(mux)
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestCreateEvidence(t *testing.T) {
	srv := stubCustodyServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)
	res, err := c.CreateEvidence(context.Background(), client.CreateEvidenceRequest{
		EvidenceID:  "HD-001",
		CaseID:      "CASE-77",
		Description: "drive",
		Actor:       "alice",
		Role:        "ForensicTechnician",
	})
	if err != nil {
		t.Fatalf("create evidence: %v", err)
	}
	if res.Evidence.Status != "CREATED" {
		t.Errorf("expected CREATED, got %s", res.Evidence.Status)
	}
	if res.TransactionID == "" {
		t.Error("expected a transaction id")
	}
}

func TestCreateEvidence_ConflictTyped(t *testing.T) {
	srv := stubCustodyServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)
	_, err := c.CreateEvidence(context.Background(), client.CreateEvidenceRequest{
		EvidenceID: "HD-DUP",
		CaseID:     "CASE-77",
	})
	if err == nil {
		t.Fatal("expected error for duplicate")
	}
	if !client.IsConflict(err) {
		t.Errorf("expected conflict APIError, got %v", err)
	}
	apiErr, ok := err.(*client.APIError)
	if !ok || apiErr.Message != "evidence HD-DUP already exists" {
		t.Errorf("unexpected error payload: %v", err)
	}
}

func TestGetEvidence_NotFoundTyped(t *testing.T) {
	srv := stubCustodyServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)
	_, err := c.GetEvidence(context.Background(), "HD-404")
	if !client.IsNotFound(err) {
		t.Fatalf("expected not-found APIError, got %v", err)
	}
}

func TestGetEvents(t *testing.T) {
	srv := stubCustodyServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)
	events, err := c.GetEvents(context.Background(), "HD-001")
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != "CREATED" || events[1].ToCustodian != "bob" {
		t.Errorf("unexpected trail: %+v", events)
	}
	if events[0].PerformedBy != "alice" {
		t.Errorf("expected performedBy alice, got %q", events[0].PerformedBy)
	}
}

func TestTransfer_SendsBearerToken(t *testing.T) {
	srv := stubCustodyServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL, client.WithBearerToken("sekrit"))
	res, err := c.Transfer(context.Background(), "HD-001", client.TransferRequest{
		ToCustodian: "bob",
		Actor:       "mgr",
		Role:        "EvidenceManager",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.TransactionID != "tx-Bearer sekrit" {
		t.Errorf("bearer token not attached, got %q", res.TransactionID)
	}
}

func TestVerify(t *testing.T) {
	srv := stubCustodyServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)
	report, err := c.Verify(context.Background(), "HD-001")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.Outcome != "tampered" {
		t.Errorf("expected tampered, got %s", report.Outcome)
	}
}

func TestUploadImage_ComputesDigestServerSide(t *testing.T) {
	srv := stubCustodyServer(t)
	defer srv.Close()

	data := []byte("dd-image-bytes")
	sum := sha256.Sum256(data)

	c := client.MustNew(srv.URL)
	res, err := c.UploadImage(context.Background(), "HD-001", "drive.img", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.SHA256 != hex.EncodeToString(sum[:]) {
		t.Errorf("expected digest %x, got %s", sum, res.SHA256)
	}
	if res.Filename != "drive.img" {
		t.Errorf("expected filename drive.img, got %s", res.Filename)
	}
}

func TestDownloadImage(t *testing.T) {
	srv := stubCustodyServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)
	var buf bytes.Buffer
	sum, err := c.DownloadImage(context.Background(), "HD-001", &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if buf.String() != "image-bytes" {
		t.Errorf("unexpected body %q", buf.String())
	}
	if sum != "cafef00d" {
		t.Errorf("expected checksum header, got %q", sum)
	}
}

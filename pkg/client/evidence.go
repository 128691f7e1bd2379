package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// Evidence is an evidence record as returned by the API.
type Evidence struct {
	EvidenceID       string `json:"evidenceId"`
	CaseIDHash       string `json:"caseIdHash"`
	Description      string `json:"description"`
	ImageHash        string `json:"imageHash,omitempty"`
	ImageFilename    string `json:"imageFilename,omitempty"`
	Status           string `json:"status"`
	CreatedBy        string `json:"createdBy"`
	Role             string `json:"role"`
	CurrentCustodian string `json:"currentCustodian"`
	CreatedAt        int64  `json:"createdAt"`
	UpdatedAt        int64  `json:"updatedAt"`
}

// Event is one entry of an evidence item's custody trail.
type Event struct {
	EvidenceID    string    `json:"evidenceId"`
	EventType     string    `json:"eventType"`
	PerformedBy   string    `json:"performedBy"`
	Role          string    `json:"role,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	FromCustodian string    `json:"fromCustodian,omitempty"`
	ToCustodian   string    `json:"toCustodian,omitempty"`
	ImageHash     string    `json:"imageHash,omitempty"`
	ImageFilename string    `json:"imageFilename,omitempty"`
	CertInfo      *CertInfo `json:"certInfo,omitempty"`
	Timestamp     int64     `json:"timestamp"`
	TransactionID string    `json:"transactionId"`
}

// CertInfo is the client certificate provenance recorded on an event.
type CertInfo struct {
	Subject string `json:"subject"`
	Issuer  string `json:"issuer"`
}

// HistoryEntry is one persisted version of an evidence record.
type HistoryEntry struct {
	TxID      string    `json:"transactionId"`
	Timestamp int64     `json:"timestamp"`
	IsDelete  bool      `json:"isDelete"`
	Record    *Evidence `json:"record,omitempty"`
}

// IntegrityReport is the result of an artifact integrity check.
type IntegrityReport struct {
	Outcome      string `json:"outcome"` // verified | tampered | unavailable
	RecordedHash string `json:"recordedHash,omitempty"`
	ComputedHash string `json:"computedHash,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// UploadResult describes a stored artifact.
type UploadResult struct {
	EvidenceID  string `json:"evidenceId"`
	SHA256      string `json:"sha256"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
}

// WriteResult is the response to a successful custody mutation.
type WriteResult struct {
	Evidence      *Evidence `json:"evidence"`
	TransactionID string    `json:"transactionId"`
}

// CreateEvidenceRequest is the payload for CreateEvidence.
type CreateEvidenceRequest struct {
	EvidenceID    string `json:"evidenceId"`
	CaseID        string `json:"caseId"`
	Description   string `json:"description"`
	ImageHash     string `json:"imageHash,omitempty"`
	ImageFilename string `json:"imageFilename,omitempty"`
	Custodian     string `json:"custodian,omitempty"`
	Actor         string `json:"actor,omitempty"`
	Role          string `json:"role,omitempty"`
}

// CheckInRequest is the payload for CheckIn.
type CheckInRequest struct {
	Custodian string `json:"custodian,omitempty"`
	Notes     string `json:"notes,omitempty"`
	Actor     string `json:"actor,omitempty"`
	Role      string `json:"role,omitempty"`
}

// TransferRequest is the payload for Transfer.
type TransferRequest struct {
	ToCustodian   string `json:"toCustodian"`
	FromCustodian string `json:"fromCustodian,omitempty"`
	Notes         string `json:"notes,omitempty"`
	Actor         string `json:"actor,omitempty"`
	Role          string `json:"role,omitempty"`
}

// RemoveRequest is the payload for Remove.
type RemoveRequest struct {
	Notes string `json:"notes,omitempty"`
	Actor string `json:"actor,omitempty"`
	Role  string `json:"role,omitempty"`
}

// CreateEvidence registers a new evidence record.
func (c *Client) CreateEvidence(ctx context.Context, req CreateEvidenceRequest) (*WriteResult, error) {
	var result WriteResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/evidence", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetEvidence fetches the current record for an evidence id.
func (c *Client) GetEvidence(ctx context.Context, id string) (*Evidence, error) {
	var envelope struct {
		Evidence *Evidence `json:"evidence"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/evidence/"+id, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Evidence, nil
}

// GetEvents fetches the custody trail for an evidence id, oldest first.
func (c *Client) GetEvents(ctx context.Context, id string) ([]Event, error) {
	var envelope struct {
		Events []Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/evidence/"+id+"/events", nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Events, nil
}

// GetHistory fetches the store-native version history for an evidence id.
func (c *Client) GetHistory(ctx context.Context, id string) ([]HistoryEntry, error) {
	var envelope struct {
		History []HistoryEntry `json:"history"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/evidence/"+id+"/history", nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.History, nil
}

// CheckIn records a custody check-in for an evidence id.
func (c *Client) CheckIn(ctx context.Context, id string, req CheckInRequest) (*WriteResult, error) {
	var result WriteResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/evidence/"+id+"/checkin", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Transfer records a custody transfer for an evidence id.
func (c *Client) Transfer(ctx context.Context, id string, req TransferRequest) (*WriteResult, error) {
	var result WriteResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/evidence/"+id+"/transfer", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Remove marks an evidence item as removed from active custody.
func (c *Client) Remove(ctx context.Context, id string, req RemoveRequest) (*WriteResult, error) {
	var result WriteResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/evidence/"+id+"/remove", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Verify runs an integrity check of the stored artifact against the hash
// recorded on the evidence record.
func (c *Client) Verify(ctx context.Context, id string) (*IntegrityReport, error) {
	var envelope struct {
		Integrity *IntegrityReport `json:"integrity"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/evidence/"+id+"/verify", nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Integrity, nil
}

// UploadImage stores the disk image for an evidence id and returns the
// server-computed SHA-256. Artifacts are write-once.
func (c *Client) UploadImage(ctx context.Context, id, filename string, r io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, fmt.Errorf("copy upload data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/evidence/"+id+"/image", &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// DownloadImage streams the stored disk image into w and returns the
// server-reported SHA-256 checksum.
func (c *Client) DownloadImage(ctx context.Context, id string, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/evidence/"+id+"/image", nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		return "", decodeAPIError(resp.StatusCode, resp.Body)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("stream artifact: %w", err)
	}
	return resp.Header.Get("X-Checksum-Sha256"), nil
}

// doJSON performs a JSON round-trip: reqBody is encoded when non-nil and the
// response is decoded into respBody.
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody any) error {
	var rd io.Reader
	if reqBody != nil {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if respBody == nil {
		return nil
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do executes an HTTP request, attaching the Bearer token if present.
// Non-2xx responses are returned as *APIError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, apiErrorFromBody(resp.StatusCode, body)
	}
	return body, nil
}

func decodeAPIError(status int, r io.Reader) error {
	body, _ := io.ReadAll(io.LimitReader(r, 1<<16))
	return apiErrorFromBody(status, body)
}

func apiErrorFromBody(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &APIError{Status: status, Message: payload.Error}
	}
	return &APIError{Status: status, Message: string(body)}
}

package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/evidlock/custodyledger/internal/artifact"
)

// UploadImage handles POST /evidence/:id/image — stores the disk image for
// an evidence id and returns its SHA-256.
//
// Artifacts are write-once. Uploading before creating the record is allowed:
// the caller binds the returned digest into the record at create time.
func (h *EvidenceHandler) UploadImage(c *gin.Context) {
	id := c.Param("id")

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"image\" is required"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload: " + err.Error()})
		return
	}
	defer f.Close() //nolint:errcheck

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := h.artifacts.Put(c.Request.Context(), id, f, contentType)
	if err != nil {
		if errors.Is(err, artifact.ErrAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "artifact already stored for " + id})
			return
		}
		h.logger.Error("store artifact", zap.String("evidence_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "artifact upload failed"})
		return
	}

	h.logger.Info("artifact stored",
		zap.String("evidence_id", id),
		zap.String("sha256", info.SHA256),
		zap.Int64("size", info.Size))

	c.JSON(http.StatusCreated, gin.H{
		"evidenceId":  id,
		"sha256":      info.SHA256,
		"size":        info.Size,
		"contentType": info.ContentType,
		"filename":    fileHeader.Filename,
	})
}

// DownloadImage handles GET /evidence/:id/image — streams the stored disk
// image back to the caller.
func (h *EvidenceHandler) DownloadImage(c *gin.Context) {
	id := c.Param("id")

	info, rc, err := h.artifacts.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no artifact stored for " + id})
			return
		}
		h.logger.Error("fetch artifact", zap.String("evidence_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "artifact download failed"})
		return
	}
	defer rc.Close() //nolint:errcheck

	filename := id
	if rec, err := h.engine.Get(c.Request.Context(), id); err == nil && rec.ImageFilename != "" {
		filename = rec.ImageFilename
	}

	extraHeaders := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filename),
		"X-Checksum-Sha256":   info.SHA256,
	}
	c.DataFromReader(http.StatusOK, info.Size, info.ContentType, rc, extraHeaders)
}

// VerifyEvidence handles GET /evidence/:id/verify — compares the stored
// artifact's digest with the hash recorded on the evidence record.
func (h *EvidenceHandler) VerifyEvidence(c *gin.Context) {
	id := c.Param("id")

	rec, err := h.engine.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "verify evidence", err)
		return
	}

	report, err := h.verifier.Verify(c.Request.Context(), id, rec.ImageHash)
	if err != nil {
		h.logger.Error("integrity check", zap.String("evidence_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "integrity check failed"})
		return
	}

	RecordIntegrityCheck(string(report.Outcome))

	c.JSON(http.StatusOK, gin.H{
		"evidenceId": id,
		"integrity":  report,
	})
}

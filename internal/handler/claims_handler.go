package handler

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"claimsqa/internal/csvexport"
	"claimsqa/internal/domain"
	"claimsqa/internal/service"
)

// ProjectName is reported by the root endpoint.
const ProjectName = "Intelligent Claims QA Service"

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// uploadFields are the multipart field names accepted for the document, in order.
var uploadFields = []string{"document", "file"}

// ClaimsHandler handles document intake, history and question endpoints.
type ClaimsHandler struct {
	claimsService service.ClaimsService
	version       string
	maxUpload     int64
}

// NewClaimsHandler creates a new ClaimsHandler. maxUpload bounds the request
// body in bytes; zero disables the bound.
func NewClaimsHandler(claimsService service.ClaimsService, version string, maxUpload int64) *ClaimsHandler {
	return &ClaimsHandler{claimsService: claimsService, version: version, maxUpload: maxUpload}
}

// Root handles GET /
func (h *ClaimsHandler) Root(c *gin.Context) {
	RespondOK(c, gin.H{"project": ProjectName, "version": h.version})
}

// Extract handles POST /extract
func (h *ClaimsHandler) Extract(c *gin.Context) {
	if h.maxUpload > 0 {
		// Multipart framing gets 1MB on top of the file limit.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)
	}

	file, header, err := formFile(c)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			HandleError(c, domain.ErrFileTooLarge)
			return
		}
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "multipart field \"document\" is required")
		return
	}
	defer func() { _ = file.Close() }()

	rec, err := h.claimsService.Extract(c.Request.Context(), &service.ExtractInput{
		FileName:    header.Filename,
		ContentType: uploadContentType(header),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, rec)
}

// History handles GET /extract_history
func (h *ClaimsHandler) History(c *gin.Context) {
	records, err := h.claimsService.History(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}

	byID := make(map[string]domain.ExtractionRecord, len(records))
	for _, rec := range records {
		byID[rec.DocumentID] = rec
	}
	RespondOK(c, byID)
}

// ExportHistoryCSV handles GET /extract_history/export.csv
func (h *ClaimsHandler) ExportHistoryCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.claimsService.ExportHistoryCSV(c.Request.Context(), &buf); err != nil {
		HandleError(c, err)
		return
	}

	filename := csvexport.BuildFilename("extract_history", "csv")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// GetDocument handles GET /documents/:id
func (h *ClaimsHandler) GetDocument(c *gin.Context) {
	rec, err := h.claimsService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, rec)
}

// ExportWorkbook handles GET /documents/:id/export.xlsx
func (h *ClaimsHandler) ExportWorkbook(c *gin.Context) {
	id := c.Param("id")
	var buf bytes.Buffer
	if err := h.claimsService.ExportWorkbook(c.Request.Context(), id, &buf); err != nil {
		HandleError(c, err)
		return
	}

	filename := csvexport.BuildFilename("claim_"+id, "xlsx")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// DownloadArtifact handles GET /documents/:id/searchable.pdf
func (h *ClaimsHandler) DownloadArtifact(c *gin.Context) {
	art, err := h.claimsService.DownloadArtifact(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, art.FileName))
	c.Data(http.StatusOK, art.ContentType, art.Data)
}

type askRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
	Question   string `json:"question"`
}

// Ask handles POST /ask
func (h *ClaimsHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "document_id and question are required")
		return
	}

	answer, err := h.claimsService.Ask(c.Request.Context(), &service.AskInput{
		DocumentID: req.DocumentID,
		Question:   req.Question,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, answer)
}

func formFile(c *gin.Context) (multipart.File, *multipart.FileHeader, error) {
	var lastErr error
	for _, field := range uploadFields {
		file, header, err := c.Request.FormFile(field)
		if err == nil {
			return file, header, nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, nil, err
		}
		lastErr = err
	}
	return nil, nil, lastErr
}

// uploadContentType returns the declared part type. The extension is only
// consulted when the client declared no type at all.
func uploadContentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return mime.TypeByExtension(strings.ToLower(filepath.Ext(header.Filename)))
}

package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ivolkov/statement-ingest/internal/api/middleware"
	"github.com/ivolkov/statement-ingest/internal/domain"
	"github.com/ivolkov/statement-ingest/internal/jobs"
	"github.com/ivolkov/statement-ingest/internal/storage"
	"github.com/ivolkov/statement-ingest/internal/store"
)

// StatementsHandler handles statement-related endpoints.
type StatementsHandler struct {
	store     store.Store
	storage   storage.Service
	publisher jobs.Publisher
	bucket    string
	fetch     *http.Client
	log       zerolog.Logger
}

// NewStatementsHandler creates a new statements handler. The bucket names
// the object-storage bucket uploads land in.
func NewStatementsHandler(st store.Store, sg storage.Service, publisher jobs.Publisher, bucket string, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{
		store:     st,
		storage:   sg,
		publisher: publisher,
		bucket:    bucket,
		fetch:     &http.Client{Timeout: 30 * time.Second},
		log:       log,
	}
}

// uploadRequest is the body of POST /api/statements. Exactly one of
// fileData (base64) and fileUrl must be set.
type uploadRequest struct {
	Filename  string `json:"filename"`
	FileType  string `json:"fileType"`
	FileData  string `json:"fileData"`
	FileURL   string `json:"fileUrl"`
	AccountID string `json:"accountId"`
}

// Upload handles POST /api/statements.
func (h *StatementsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var req uploadRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 2*domain.MaxUploadBytes)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest, "Invalid request body")
		return
	}

	if req.Filename == "" {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest, "filename is required")
		return
	}
	if (req.FileData == "") == (req.FileURL == "") {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest, "exactly one of fileData and fileUrl is required")
		return
	}

	mimeType := req.FileType
	if mimeType == "" {
		mimeType = domain.MIMETypeFromFilename(req.Filename)
	}
	if !domain.AllowedMIMEType(mimeType) {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest,
			fmt.Sprintf("unsupported file type %q: only PDF, JPEG and PNG statements are accepted", mimeType))
		return
	}

	data, err := h.fileBytes(&req)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest, err.Error())
		return
	}
	if len(data) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest, "file is empty")
		return
	}
	if len(data) > domain.MaxUploadBytes {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest,
			fmt.Sprintf("file exceeds the %d MB size limit", domain.MaxUploadBytes>>20))
		return
	}

	if req.AccountID != "" {
		if _, err := h.store.GetAccount(ctx, userID, req.AccountID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				middleware.WriteError(w, http.StatusNotFound, middleware.CodeNotFound, "Account not found")
				return
			}
			h.log.Error().Err(err).Msg("Failed to verify account")
			middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "Failed to verify account")
			return
		}
	}

	object := storage.ObjectPath(userID, req.Filename)
	uri, err := h.storage.Upload(ctx, h.bucket, object, data, mimeType)
	if err != nil {
		h.log.Error().Err(err).Str("object", object).Msg("Failed to upload statement file")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "Failed to store file")
		return
	}

	st := &domain.Statement{
		ID:         uuid.New().String(),
		UserID:     userID,
		Filename:   req.Filename,
		MIMEType:   mimeType,
		StorageURI: uri,
		Status:     domain.StatusUploaded,
		AccountID:  req.AccountID,
		UploadedAt: time.Now(),
	}
	if err := h.store.InsertStatement(ctx, st); err != nil {
		h.log.Error().Err(err).Str("statement_id", st.ID).Msg("Failed to insert statement")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "Failed to save statement")
		return
	}

	job := &jobs.ProcessStatementJob{
		StatementID: st.ID,
		UserID:      userID,
	}
	if err := h.publisher.PublishProcessStatement(ctx, job); err != nil {
		h.log.Error().Err(err).Str("statement_id", st.ID).Msg("Failed to enqueue processing job")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "Failed to enqueue processing")
		return
	}

	h.log.Info().
		Str("statement_id", st.ID).
		Str("job_id", job.JobID).
		Str("gcs_uri", uri).
		Int("bytes", len(data)).
		Msg("Statement uploaded")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":     true,
		"statementId": st.ID,
		"jobId":       job.JobID,
	})
}

// fileBytes returns the statement bytes from the request, decoding inline
// base64 data or fetching the remote URL.
func (h *StatementsHandler) fileBytes(req *uploadRequest) ([]byte, error) {
	if req.FileData != "" {
		payload := req.FileData
		// Tolerate data URLs from browser FileReader output.
		if idx := strings.Index(payload, ";base64,"); idx >= 0 {
			payload = payload[idx+len(";base64,"):]
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("fileData is not valid base64")
		}
		return data, nil
	}

	if !strings.HasPrefix(req.FileURL, "http://") && !strings.HasPrefix(req.FileURL, "https://") {
		return nil, fmt.Errorf("fileUrl must be an http or https URL")
	}
	resp, err := h.fetch.Get(req.FileURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fileUrl")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fileUrl responded with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, domain.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read fileUrl response")
	}
	return data, nil
}

// ListRecent handles GET /api/statements/recent.
func (h *StatementsHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	items, err := h.store.ListRecentStatements(ctx, userID, 5)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list recent statements")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "Failed to list statements")
		return
	}

	out := make([]statementWithAccountJSON, 0, len(items))
	for _, item := range items {
		out = append(out, renderStatementWithAccount(item))
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statements": out,
		"count":      len(out),
	})
}

// Get handles GET /api/statements/{id}.
func (h *StatementsHandler) Get(w http.ResponseWriter, r *http.Request, statementID string) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	st, err := h.store.GetStatement(ctx, userID, statementID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.CodeNotFound, "Statement not found")
			return
		}
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to get statement")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "Failed to get statement")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, renderStatement(st))
}

// ListTransactions handles GET /api/statements/{id}/transactions.
func (h *StatementsHandler) ListTransactions(w http.ResponseWriter, r *http.Request, statementID string) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	// Ownership check before exposing transactions.
	if _, err := h.store.GetStatement(ctx, userID, statementID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.CodeNotFound, "Statement not found")
			return
		}
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to get statement")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "Failed to get statement")
		return
	}

	txs, err := h.store.ListTransactionsByStatement(ctx, statementID)
	if err != nil {
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "Failed to list transactions")
		return
	}

	out := make([]transactionJSON, 0, len(txs))
	for _, tx := range txs {
		out = append(out, renderTransaction(tx))
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

// Reprocess handles POST /api/statements/{id}/reprocess.
func (h *StatementsHandler) Reprocess(w http.ResponseWriter, r *http.Request, statementID string) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	st, err := h.store.GetStatement(ctx, userID, statementID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.CodeNotFound, "Statement not found")
			return
		}
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to get statement")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "Failed to get statement")
		return
	}

	if !st.Status.CanTransitionTo(domain.StatusProcessing, true) {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest,
			fmt.Sprintf("statement is %s and cannot be reprocessed", st.Status))
		return
	}

	job := &jobs.ProcessStatementJob{
		StatementID: st.ID,
		UserID:      userID,
		Reprocess:   true,
	}
	if err := h.publisher.PublishProcessStatement(ctx, job); err != nil {
		h.log.Error().Err(err).Str("statement_id", st.ID).Msg("Failed to enqueue reprocessing job")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "Failed to enqueue processing")
		return
	}

	h.log.Info().Str("statement_id", st.ID).Str("job_id", job.JobID).Msg("Statement reprocessing enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":     true,
		"statementId": st.ID,
		"jobId":       job.JobID,
	})
}

// linkRequest is the body of POST /api/statements/link.
type linkRequest struct {
	StatementID string `json:"statementId"`
	AccountID   string `json:"accountId"`
}

// Link handles POST /api/statements/link.
func (h *StatementsHandler) Link(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest, "Invalid request body")
		return
	}
	if req.StatementID == "" || req.AccountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest, "statementId and accountId are required")
		return
	}

	if _, err := h.store.GetStatement(ctx, userID, req.StatementID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.CodeNotFound, "Statement not found")
			return
		}
		h.log.Error().Err(err).Str("statement_id", req.StatementID).Msg("Failed to get statement")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "Failed to get statement")
		return
	}
	if _, err := h.store.GetAccount(ctx, userID, req.AccountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.CodeNotFound, "Account not found")
			return
		}
		h.log.Error().Err(err).Str("account_id", req.AccountID).Msg("Failed to get account")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "Failed to get account")
		return
	}

	if err := h.store.LinkStatementAccount(ctx, req.StatementID, req.AccountID); err != nil {
		h.log.Error().Err(err).Str("statement_id", req.StatementID).Msg("Failed to link statement")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal, "Failed to link statement")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

package receipt

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MWInnova/scan-receipts/internal/flow"
	"github.com/MWInnova/scan-receipts/internal/scanning"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// jsonError writes a JSON error body the UI renders as a modal notice
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// statusFor maps errors onto HTTP statuses: illegal transitions are
// conflicts, bad uploads are bad requests, extraction failures are
// upstream failures
func statusFor(err error) int {
	var invalid flow.ErrInvalidTransition
	switch {
	case errors.As(err, &invalid):
		return http.StatusConflict
	case errors.Is(err, scanning.ErrUnsupportedType), errors.Is(err, ErrEmptyUpload):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// handleIndex serves the embedded HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleState returns the current view state and draft
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.State())
}

// handleBeginCapture opens the capture overlay
func (s *Server) handleBeginCapture(w http.ResponseWriter, r *http.Request) {
	if err := s.service.BeginCapture(); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, s.service.State())
}

// handleCancelCapture closes the capture overlay; the client calls this
// for both the cancel button and camera access denial
func (s *Server) handleCancelCapture(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelCapture(); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, s.service.State())
}

// handleScan runs extraction on an uploaded image and returns the draft
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	draft, err := s.service.ProcessImage(r.Context(), req.Image)
	if err != nil {
		slog.Error("Error processing image", "error", err)
		jsonError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, draft)
}

// handleConfirmDraft turns the reviewed draft into a pending record
func (s *Server) handleConfirmDraft(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := s.service.ConfirmDraft(req)
	if err != nil {
		slog.Error("Error confirming draft", "error", err)
		jsonError(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// handleDiscardDraft drops the draft without saving
func (s *Server) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DiscardDraft(); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListReceipts returns all receipts, newest first
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, receipts)
}

// handleUpdateReceipt patches a stored receipt
func (s *Server) handleUpdateReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		jsonError(w, "Receipt ID required", http.StatusBadRequest)
		return
	}

	var patch Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.service.UpdateReceipt(id, patch); err != nil {
		if errors.Is(err, ErrInvalidPatch) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		jsonError(w, "Receipt not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteReceipt removes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		jsonError(w, "Receipt ID required", http.StatusBadRequest)
		return
	}
	if err := s.service.DeleteReceipt(id); err != nil {
		jsonError(w, "Receipt not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetReceiptImage serves the archived image for a receipt
func (s *Server) handleGetReceiptImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		jsonError(w, "Receipt ID required", http.StatusBadRequest)
		return
	}
	data, mime, err := s.service.GetReceiptImage(id)
	if err != nil {
		jsonError(w, "Image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Write(data)
}

// handleSync runs the simulated sync and returns the updated list
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Sync(r.Context()); err != nil {
		slog.Error("Error syncing receipts", "error", err)
		jsonError(w, err.Error(), statusFor(err))
		return
	}

	receipts, err := s.service.ListReceipts()
	if err != nil {
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/importer"
)

const (
	// multipartOverhead covers boundaries and part headers around the file.
	multipartOverhead = 1 << 20

	// multipartMemory is held in memory before parts spill to disk.
	multipartMemory = 32 << 20
)

// ConfirmRequest is the body of POST /{moduleKey}/confirm.
type ConfirmRequest struct {
	ValidRows []core.TypedRow `json:"validRows"`
}

// ConfirmResponse is returned with 202 Accepted once the job is queued.
type ConfirmResponse struct {
	JobID string `json:"jobId"`
}

// ModulesResponse lists the importable modules.
type ModulesResponse struct {
	Modules []importer.ModuleInfo `json:"modules"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.healthCheck != nil {
		if err := s.healthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ModulesResponse{Modules: s.service.ListModules()})
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.ImportFields(chi.URLParam(r, "moduleKey"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	tf, err := s.service.DownloadTemplate(chi.URLParam(r, "moduleKey"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tf)
}

// handlePreview validates an uploaded workbook (multipart field "file").
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	limit := s.service.Limits().MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, r, fmt.Errorf("%w: request exceeds %d bytes", core.ErrFileTooLarge, maxErr.Limit))
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	// One byte past the limit is enough for the service to refuse the file.
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	result, err := s.service.UploadPreview(r.Context(), chi.URLParam(r, "moduleKey"), data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleConfirm queues the client's valid rows and answers 202 at once.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	// Typed rows serialize larger than the workbook they came from.
	r.Body = http.MaxBytesReader(w, r.Body, 4*s.service.Limits().MaxFileSize)

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, r, fmt.Errorf("%w: request exceeds %d bytes", core.ErrFileTooLarge, maxErr.Limit))
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	jobID, err := s.service.ConfirmImport(r.Context(), chi.URLParam(r, "moduleKey"), req.ValidRows)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/imports/jobs/"+jobID)
	writeJSON(w, http.StatusAccepted, ConfirmResponse{JobID: jobID})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.JobStatus(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.CancelImport(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

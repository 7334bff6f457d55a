// Package importer is the service facade of the spreadsheet import
// pipeline. It serves template downloads and field listings, builds
// previews from uploaded workbooks, and turns confirmed rows into queued
// jobs for the background workers.
package importer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/jobs"
	"github.com/JonMunkholm/sheetimport/internal/logging"
	"github.com/JonMunkholm/sheetimport/internal/sheet"
)

// Limits bounds the work a single preview may do.
type Limits struct {
	MaxFileSize int64
	MaxRows     int
}

// DefaultLimits are used for zero Limits fields.
var DefaultLimits = Limits{
	MaxFileSize: 10 << 20,
	MaxRows:     5000,
}

// Service implements the import API.
type Service struct {
	store      jobs.Store
	dispatcher jobs.Dispatcher
	limits     Limits

	previews    *jobs.Pool
	previewWait time.Duration

	now   func() time.Time
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLimits overrides the preview limits.
func WithLimits(l Limits) Option {
	return func(s *Service) {
		if l.MaxFileSize > 0 {
			s.limits.MaxFileSize = l.MaxFileSize
		}
		if l.MaxRows > 0 {
			s.limits.MaxRows = l.MaxRows
		}
	}
}

// WithPreviewPool bounds how many previews are parsed at once. A preview
// waits up to maxWait for a slot before failing with core.ErrBusy.
func WithPreviewPool(pool *jobs.Pool, maxWait time.Duration) Option {
	return func(s *Service) {
		s.previews = pool
		s.previewWait = maxWait
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the job id generator, for tests.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService creates a Service.
func NewService(store jobs.Store, dispatcher jobs.Dispatcher, opts ...Option) *Service {
	s := &Service{
		store:      store,
		dispatcher: dispatcher,
		limits:     DefaultLimits,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the effective preview limits.
func (s *Service) Limits() Limits {
	return s.limits
}

// ModuleInfo summarizes one importable module.
type ModuleInfo struct {
	ModuleKey  string `json:"moduleKey"`
	Label      string `json:"label"`
	FieldCount int    `json:"fieldCount"`
}

// ListModules returns every registered module sorted by key.
func (s *Service) ListModules() []ModuleInfo {
	all := core.All()
	out := make([]ModuleInfo, len(all))
	for i, m := range all {
		out[i] = ModuleInfo{ModuleKey: m.ModuleKey, Label: m.Label, FieldCount: len(m.Fields)}
	}
	return out
}

// FieldsResponse is the body of the fields endpoint.
type FieldsResponse struct {
	ModuleKey string           `json:"moduleKey"`
	Label     string           `json:"label"`
	Fields    []core.FieldInfo `json:"fields"`
}

// ImportFields returns the schema fields of moduleKey in schema order.
func (s *Service) ImportFields(moduleKey string) (FieldsResponse, error) {
	schema, err := core.GetFields(moduleKey)
	if err != nil {
		return FieldsResponse{}, err
	}
	return FieldsResponse{ModuleKey: schema.ModuleKey, Label: schema.Label, Fields: schema.Fields}, nil
}

// TemplateFile is a generated template ready for download.
type TemplateFile struct {
	FileName      string `json:"fileName"`
	ContentBase64 string `json:"contentBase64"`
}

// DownloadTemplate generates the blank workbook for moduleKey.
func (s *Service) DownloadTemplate(moduleKey string) (TemplateFile, error) {
	schema, err := core.GetFields(moduleKey)
	if err != nil {
		return TemplateFile{}, err
	}
	data, err := sheet.Template(schema)
	if err != nil {
		return TemplateFile{}, fmt.Errorf("generate template for %s: %w", moduleKey, err)
	}
	return TemplateFile{
		FileName:      sheet.TemplateFileName(schema),
		ContentBase64: base64.StdEncoding.EncodeToString(data),
	}, nil
}

// UploadPreview validates every row of the workbook without writing
// anything. Unreadable or oversized files fail outright; row problems are
// reported in the result.
func (s *Service) UploadPreview(ctx context.Context, moduleKey string, data []byte) (core.PreviewResult, error) {
	schema, err := core.GetFields(moduleKey)
	if err != nil {
		return core.PreviewResult{}, err
	}
	if int64(len(data)) > s.limits.MaxFileSize {
		return core.PreviewResult{}, fmt.Errorf("%w: %d bytes exceeds the %d byte limit",
			core.ErrFileTooLarge, len(data), s.limits.MaxFileSize)
	}

	if s.previews != nil {
		if err := s.previews.Acquire(ctx, s.previewWait); err != nil {
			if errors.Is(err, jobs.ErrPoolBusy) {
				return core.PreviewResult{}, fmt.Errorf("%w: %v", core.ErrBusy, err)
			}
			return core.PreviewResult{}, err
		}
		defer s.previews.Release()
	}

	logger := logging.WithFields(ctx, "module", moduleKey, "file_size", len(data))

	wb, err := sheet.Read(data, s.limits.MaxRows)
	if err != nil {
		logger.Info("preview rejected", "error", err)
		return core.PreviewResult{}, err
	}

	result := BuildPreview(schema, wb)
	if result.ErrorCount > 0 {
		encoded, err := sheet.AnnotateBase64(data, wb, result.Errors)
		if err != nil {
			return core.PreviewResult{}, fmt.Errorf("build error file: %w", err)
		}
		result.ErrorFileBase64 = encoded
	}

	logger.Info("preview built",
		"total_rows", result.TotalRows,
		"valid", result.ValidCount,
		"invalid", result.ErrorCount,
	)
	return result, nil
}

// BuildPreview validates the rows of a parsed workbook against schema.
// The error file is left empty.
func BuildPreview(schema core.ModuleImportSchema, wb *sheet.Sheet) core.PreviewResult {
	v := core.NewRowValidator(schema)
	result := core.PreviewResult{
		ValidRows: []core.TypedRow{},
		Errors:    []core.RowValidationError{},
	}

	for _, row := range wb.Rows {
		typed, errs := v.ValidateRow(wb.Uploaded(row))
		result.TotalRows++
		if len(errs) > 0 {
			result.ErrorCount++
			result.Errors = append(result.Errors, errs...)
			continue
		}
		result.ValidCount++
		result.ValidRows = append(result.ValidRows, typed)
	}
	return result
}

// ConfirmImport re-validates rows, stores them as a queued job and hands
// the job to the dispatcher. It returns without waiting for processing.
//
// Rows are never trusted as valid: if any fails validation the whole batch
// is refused with a *core.BatchValidationError and no job is created.
func (s *Service) ConfirmImport(ctx context.Context, moduleKey string, rows []core.TypedRow) (string, error) {
	schema, err := core.GetFields(moduleKey)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", core.ErrEmptyBatch
	}
	if len(rows) > s.limits.MaxRows {
		return "", fmt.Errorf("%w: %d rows exceeds the limit of %d", core.ErrTooManyRows, len(rows), s.limits.MaxRows)
	}

	valid, errs := core.NewRowValidator(schema).RevalidateRows(rows)
	if len(errs) > 0 {
		return "", &core.BatchValidationError{Errors: errs}
	}

	job := core.ImportJob{
		ID:        s.newID(),
		ModuleKey: moduleKey,
		Status:    core.JobQueued,
		TotalRows: len(valid),
		CreatedAt: s.now(),
	}
	if err := s.store.Create(ctx, job, valid); err != nil {
		return "", fmt.Errorf("create import job: %w", err)
	}

	logger := logging.ForJob(ctx, job.ID, moduleKey)
	logger.Info("import job queued", "total_rows", job.TotalRows)

	// A lost dispatch leaves the job queued; the sweeper dispatches it again.
	if err := s.dispatcher.Dispatch(ctx, job.ID); err != nil {
		logger.Error("dispatch import job", "error", err)
	}
	return job.ID, nil
}

// JobStatus returns the polling view of a job.
func (s *Service) JobStatus(ctx context.Context, jobID string) (core.JobStatusView, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return core.JobStatusView{}, err
	}
	return job.View(), nil
}

// CancelImport stops a job. A queued job fails at once; a processing job
// stops before its next row. Finished jobs yield core.ErrJobTerminal.
func (s *Service) CancelImport(ctx context.Context, jobID string) (core.JobStatusView, error) {
	job, err := s.store.RequestCancel(ctx, jobID, s.now())
	if err != nil {
		return core.JobStatusView{}, err
	}
	logging.ForJob(ctx, job.ID, job.ModuleKey).Info("import cancel requested", "status", job.Status)
	return job.View(), nil
}

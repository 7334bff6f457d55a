package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	_ "github.com/JonMunkholm/sheetimport/internal/core/modules"
	"github.com/JonMunkholm/sheetimport/internal/importer"
	"github.com/JonMunkholm/sheetimport/internal/jobs"
)

const vendors = "purchasing_vendors"

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			CORSAllowedOrigins: []string{"*"},
			RequestTimeout:     5 * time.Second,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) (*Server, *jobs.MemoryStore, *recordingDispatcher) {
	t.Helper()
	store := jobs.NewMemoryStore()
	d := &recordingDispatcher{}
	svc := importer.NewService(store, d,
		importer.WithIDGenerator(func() string { return "job-1" }),
		importer.WithLimits(importer.Limits{MaxFileSize: 64 << 10, MaxRows: 100}),
	)
	s := NewServer(svc, cfg, opts...)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, store, d
}

func vendorWorkbook(t *testing.T, badEmailLine int) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	rows := [][]any{{"Vendor Code", "Name", "Contact Email", "Payment Terms", "Active"}}
	for i := 0; i < 4; i++ {
		email := "ap@example.com"
		if i+2 == badEmailLine {
			email = "nope"
		}
		rows = append(rows, []any{"V-10" + string(rune('0'+i)), "Vendor", email, "net30", "yes"})
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func multipartBody(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile(field, "vendors.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func validVendorRows() []core.TypedRow {
	return []core.TypedRow{
		{Row: 2, Values: map[string]any{"vendor_code": "V-1", "name": "Acme", "contact_email": "a@acme.example", "active": true}},
		{Row: 3, Values: map[string]any{"vendor_code": "V-2", "name": "Bolt", "contact_email": "b@bolt.example", "payment_terms": "net60"}},
	}
}

func confirmRequest(t *testing.T, rows []core.TypedRow) *http.Request {
	t.Helper()
	body, err := json.Marshal(ConfirmRequest{ValidRows: rows})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/imports/"+vendors+"/confirm", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandlePreview(t *testing.T) {
	s, _, _ := newTestServer(t, testConfig())

	body, ct := multipartBody(t, "file", vendorWorkbook(t, 4))
	req := httptest.NewRequest(http.MethodPost, "/api/imports/"+vendors+"/preview", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, s, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[core.PreviewResult](t, rec)
	assert.Equal(t, 4, got.TotalRows)
	assert.Equal(t, 3, got.ValidCount)
	assert.Equal(t, 1, got.ErrorCount)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, 4, got.Errors[0].Row)
	assert.Equal(t, "Contact Email", got.Errors[0].Column)
	assert.NotEmpty(t, got.ErrorFileBase64)
}

func TestHandlePreview_Errors(t *testing.T) {
	s, _, _ := newTestServer(t, testConfig())

	tests := []struct {
		name       string
		module     string
		field      string
		data       []byte
		wantStatus int
		wantCode   string
	}{
		{"unknown module", "nope", "file", vendorWorkbook(t, 0), http.StatusNotFound, "IMP001"},
		{"wrong field name", vendors, "upload", vendorWorkbook(t, 0), http.StatusBadRequest, "FILE004"},
		{"not a spreadsheet", vendors, "file", []byte("a,b,c\n1,2,3\n"), http.StatusBadRequest, "FILE002"},
		{"file too large", vendors, "file", bytes.Repeat([]byte("x"), 65<<10), http.StatusRequestEntityTooLarge, "FILE001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.field, tt.data)
			req := httptest.NewRequest(http.MethodPost, "/api/imports/"+tt.module+"/preview", body)
			req.Header.Set("Content-Type", ct)
			rec := do(t, s, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestHandlePreview_NotMultipart(t *testing.T) {
	s, _, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/imports/"+vendors+"/preview", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := do(t, s, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "REQ001", decode[ErrorResponse](t, rec).Code)
}

func TestHandleConfirm(t *testing.T) {
	s, store, d := newTestServer(t, testConfig())

	rec := do(t, s, confirmRequest(t, validVendorRows()))

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "job-1", decode[ConfirmResponse](t, rec).JobID)
	assert.Equal(t, "/api/imports/jobs/job-1", rec.Header().Get("Location"))
	assert.Equal(t, []string{"job-1"}, d.ids)

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, core.JobQueued, job.Status)
	assert.Equal(t, 2, job.TotalRows)
}

func TestHandleConfirm_Errors(t *testing.T) {
	tampered := validVendorRows()
	tampered[1].Values["contact_email"] = "not-an-email"

	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		wantStatus int
		wantCode   string
	}{
		{
			name: "malformed json",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/imports/"+vendors+"/confirm", strings.NewReader(`{"validRows":`))
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "REQ001",
		},
		{
			name:       "empty batch",
			req:        func(t *testing.T) *http.Request { return confirmRequest(t, nil) },
			wantStatus: http.StatusBadRequest,
			wantCode:   "IMP002",
		},
		{
			name:       "row fails revalidation",
			req:        func(t *testing.T) *http.Request { return confirmRequest(t, tampered) },
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "VAL010",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store, d := newTestServer(t, testConfig())

			rec := do(t, s, tt.req(t))

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rec).Code)
			assert.Empty(t, d.ids)
			_, err := store.Get(context.Background(), "job-1")
			assert.True(t, errors.Is(err, core.ErrJobNotFound), "no job may be created")
		})
	}
}

func TestHandleConfirm_ReturnsRowErrors(t *testing.T) {
	s, _, _ := newTestServer(t, testConfig())
	rows := validVendorRows()
	rows[1].Values["contact_email"] = "not-an-email"

	rec := do(t, s, confirmRequest(t, rows))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, 3, resp.Errors[0].Row)
	assert.Equal(t, "Contact Email", resp.Errors[0].Column)
}

func TestHandleJobStatus(t *testing.T) {
	s, store, _ := newTestServer(t, testConfig())
	do(t, s, confirmRequest(t, validVendorRows()))

	ctx := context.Background()
	now := time.Now()
	_, err := store.Claim(ctx, "job-1", now)
	require.NoError(t, err)
	_, err = store.RecordRow(ctx, "job-1", jobs.RowOutcome{Row: 2}, 50)
	require.NoError(t, err)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports/jobs/job-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[core.JobStatusView](t, rec)
	assert.Equal(t, core.JobProcessing, view.Status)
	assert.Equal(t, 50, view.Progress)
	assert.Nil(t, view.Result)

	_, err = store.RecordRow(ctx, "job-1", jobs.RowOutcome{Row: 3, Err: "duplicate value"}, 100)
	require.NoError(t, err)
	_, err = store.Complete(ctx, "job-1", now)
	require.NoError(t, err)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports/jobs/job-1", nil))
	view = decode[core.JobStatusView](t, rec)
	assert.Equal(t, core.JobCompleted, view.Status)
	require.NotNil(t, view.Result)
	assert.Equal(t, 1, view.Result.Created)
	assert.Equal(t, 1, view.Result.Failed)
	assert.Equal(t, []core.RowError{{Row: 3, Error: "duplicate value"}}, view.Result.RowErrors)
}

func TestHandleJobStatus_NotFound(t *testing.T) {
	s, _, _ := newTestServer(t, testConfig())

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports/jobs/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "IMP003", decode[ErrorResponse](t, rec).Code)
}

func TestHandleCancelJob(t *testing.T) {
	s, _, _ := newTestServer(t, testConfig())
	do(t, s, confirmRequest(t, validVendorRows()))

	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/imports/jobs/job-1/cancel", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[core.JobStatusView](t, rec)
	assert.Equal(t, core.JobFailed, view.Status)
	assert.Equal(t, core.ErrImportCancelled.Error(), view.Error)

	rec = do(t, s, httptest.NewRequest(http.MethodPost, "/api/imports/jobs/job-1/cancel", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "IMP004", decode[ErrorResponse](t, rec).Code)
}

func TestHandleFieldsTemplateModules(t *testing.T) {
	s, _, _ := newTestServer(t, testConfig())

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports/"+vendors+"/fields", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	fields := decode[importer.FieldsResponse](t, rec)
	require.NotEmpty(t, fields.Fields)
	assert.Equal(t, "vendor_code", fields.Fields[0].Key)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports/"+vendors+"/template", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	tf := decode[importer.TemplateFile](t, rec)
	assert.Equal(t, vendors+"_import_template.xlsx", tf.FileName)
	assert.NotEmpty(t, tf.ContentBase64)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports/nope/template", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports/modules", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	modules := decode[ModulesResponse](t, rec)
	var keys []string
	for _, m := range modules.Modules {
		keys = append(keys, m.ModuleKey)
	}
	assert.Contains(t, keys, vendors)
}

func TestHealth(t *testing.T) {
	healthy := true
	s, _, _ := newTestServer(t, testConfig(), WithHealthCheck(func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("db down")
	}))

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrUnknownModule, http.StatusNotFound},
		{core.ErrJobNotFound, http.StatusNotFound},
		{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{core.ErrTooManyRows, http.StatusBadRequest},
		{core.ErrEmptyFile, http.StatusBadRequest},
		{core.ErrJobTerminal, http.StatusConflict},
		{core.ErrBusy, http.StatusServiceUnavailable},
		{&core.BatchValidationError{}, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "statusFor(%v)", tt.err)
	}
}

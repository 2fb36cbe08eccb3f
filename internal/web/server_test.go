package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonMunkholm/landrecords/internal/clock/clocktest"
	"github.com/JonMunkholm/landrecords/internal/config"
	"github.com/JonMunkholm/landrecords/internal/core"
	"github.com/JonMunkholm/landrecords/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails Replace while failing is set.
type flakyStore struct {
	*memory.Store
	failing atomic.Bool
}

func (f *flakyStore) Replace(ctx context.Context, key string, u core.Update) (*core.Dataset, error) {
	if f.failing.Load() {
		return nil, errors.New("connection refused")
	}
	return f.Store.Replace(ctx, key, u)
}

type fakeExtractor struct {
	fields map[string]any
}

func (f fakeExtractor) Extract(ctx context.Context, text string, schema []core.ColumnSchema) (map[string]any, error) {
	return f.fields, nil
}

type testEnv struct {
	srv   *Server
	store *flakyStore
	clock *clocktest.Manual
	cfg   *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
		Import: config.ImportConfig{MaxFileSize: 1 << 20, MaxConcurrent: 2, MaxWaitTime: time.Second},
		Rate:   config.RateLimitConfig{Enabled: false},
	}
}

func newTestEnv(t *testing.T, mutate func(*config.Config, *core.ServiceConfig)) *testEnv {
	t.Helper()
	cfg := testConfig()
	clock := clocktest.New(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	svcCfg := core.ServiceConfig{
		Debounce:    500 * time.Millisecond,
		PushTimeout: time.Second,
		MaxFileSize: cfg.Import.MaxFileSize,
		MaxImports:  cfg.Import.MaxConcurrent,
		ImportWait:  cfg.Import.MaxWaitTime,
		Clock:       clock,
	}
	if mutate != nil {
		mutate(cfg, &svcCfg)
	}

	store := &flakyStore{Store: memory.New()}
	svc := core.NewService(store, svcCfg)
	srv := NewServer(svc, cfg)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	return &testEnv{srv: srv, store: store, clock: clock, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createVillage(t *testing.T) core.Dataset {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/villages", map[string]string{"name": "Kovilpatti", "nameTamil": "கோவில்பட்டி"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var d core.Dataset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	return d
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "ok", decodeBody[map[string]any](t, rec)["status"])
}

func TestListVillages_SeedsEmptyStore(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, sc *core.ServiceConfig) { sc.Seed = true })

	rec := env.do(t, http.MethodGet, "/api/villages", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		Villages []core.Summary `json:"villages"`
		Count    int            `json:"count"`
	}](t, rec)
	assert.Equal(t, 36, body.Count)
	assert.Len(t, body.Villages, 36)
}

func TestListVillages_Search(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, sc *core.ServiceConfig) { sc.Seed = true })

	type listBody struct {
		Villages []core.Summary `json:"villages"`
		Count    int            `json:"count"`
	}

	rec := env.do(t, http.MethodGet, "/api/villages?q=MANIYACHI", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[listBody](t, rec)
	require.Equal(t, 2, body.Count)
	for _, v := range body.Villages {
		assert.Contains(t, strings.ToLower(v.Name), "maniyachi")
	}

	rec = env.do(t, http.MethodGet, "/api/villages?q="+url.QueryEscape("கோவில்பட்டி"), nil)
	body = decodeBody[listBody](t, rec)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "Kovilpatti", body.Villages[0].Name)
}

func TestCreateVillage(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("created with default columns", func(t *testing.T) {
		d := env.createVillage(t)
		assert.NotEmpty(t, d.Key)
		assert.Len(t, d.Schema, 5)
		assert.Empty(t, d.Records)
	})

	t.Run("names required", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/villages", map[string]string{"name": "  "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VAL003", decodeBody[ErrorResponse](t, rec).Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/villages", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		env.srv.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetVillage_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/villages/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NF001", decodeBody[ErrorResponse](t, rec).Code)
}

func TestRecords_EditAndFlush(t *testing.T) {
	env := newTestEnv(t, nil)
	d := env.createVillage(t)
	base := "/api/villages/" + d.Key

	rec := env.do(t, http.MethodPost, base+"/records", recordRequest{Fields: map[string]any{
		"areaName":    "North",
		"valuePerSqm": "1500",
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decodeBody[core.Record](t, rec)
	assert.Equal(t, "North", added.Fields["areaName"])
	assert.Equal(t, 1500.0, added.Fields["valuePerSqm"])
	assert.Equal(t, "", added.Fields["ownerName"])

	status := decodeBody[core.SyncStatus](t, env.do(t, http.MethodGet, base+"/sync", nil))
	assert.Equal(t, core.StateDirty, status.State)

	stored, err := env.store.Load(context.Background(), d.Key)
	require.NoError(t, err)
	assert.Empty(t, stored.Records, "nothing pushed before the debounce elapses")

	rec = env.do(t, http.MethodPost, base+"/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.StateClean, decodeBody[core.SyncStatus](t, rec).State)

	stored, err = env.store.Load(context.Background(), d.Key)
	require.NoError(t, err)
	require.Len(t, stored.Records, 1)
	assert.Equal(t, added.ID, stored.Records[0].ID)
}

func TestRecords_UpdateIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	d := env.createVillage(t)
	base := "/api/villages/" + d.Key

	added := decodeBody[core.Record](t, env.do(t, http.MethodPost, base+"/records", recordRequest{}))

	rec := env.do(t, http.MethodPut, base+"/records/"+added.ID, recordRequest{Fields: map[string]any{
		"areaName":    "South",
		"valuePerSqm": "lots",
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	got := decodeBody[core.Dataset](t, env.do(t, http.MethodGet, base, nil))
	require.Len(t, got.Records, 1)
	assert.Equal(t, "", got.Records[0].Fields["areaName"])

	rec = env.do(t, http.MethodPut, base+"/records/"+added.ID, recordRequest{Fields: map[string]any{
		"areaName":    "South",
		"valuePerSqm": 42,
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[core.Record](t, rec)
	assert.Equal(t, "South", updated.Fields["areaName"])
	assert.Equal(t, 42.0, updated.Fields["valuePerSqm"])

	rec = env.do(t, http.MethodPut, base+"/records/"+added.ID, recordRequest{Fields: map[string]any{"nope": 1}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL002", decodeBody[ErrorResponse](t, rec).Code)
}

func TestRecords_Delete(t *testing.T) {
	env := newTestEnv(t, nil)
	d := env.createVillage(t)
	base := "/api/villages/" + d.Key

	added := decodeBody[core.Record](t, env.do(t, http.MethodPost, base+"/records", recordRequest{}))

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, base+"/records/"+added.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, base+"/records/"+added.ID, nil).Code)
}

func TestRecordTemplate(t *testing.T) {
	env := newTestEnv(t, nil)
	d := env.createVillage(t)

	rec := env.do(t, http.MethodGet, "/api/villages/"+d.Key+"/records/template", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	tmpl := decodeBody[recordRequest](t, rec)
	assert.Len(t, tmpl.Fields, 5)
	assert.Equal(t, 0.0, tmpl.Fields["valuePerSqm"])
}

func TestColumns_AddAndRename(t *testing.T) {
	env := newTestEnv(t, nil)
	d := env.createVillage(t)
	base := "/api/villages/" + d.Key
	env.do(t, http.MethodPost, base+"/records", recordRequest{})

	rec := env.do(t, http.MethodPost, base+"/columns", map[string]string{"name": "Patta Number", "type": "number"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	col := decodeBody[core.ColumnSchema](t, rec)
	assert.Equal(t, core.ColumnNumber, col.Type)

	got := decodeBody[core.Dataset](t, env.do(t, http.MethodGet, base, nil))
	assert.Equal(t, 0.0, got.Records[0].Fields[col.ID], "existing records are back-filled")

	rec = env.do(t, http.MethodPut, base+"/columns/"+col.ID, map[string]string{"name": "Patta No."})
	require.Equal(t, http.StatusOK, rec.Code)
	renamed := decodeBody[core.ColumnSchema](t, rec)
	assert.Equal(t, col.ID, renamed.ID)
	assert.Equal(t, "Patta No.", renamed.Name)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, base+"/columns", map[string]string{"name": "X", "type": "date"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, base+"/columns/missing", map[string]string{"name": "X"}).Code)
}

func TestImport_RawBody(t *testing.T) {
	env := newTestEnv(t, nil)
	d := env.createVillage(t)

	csv := "Area,Value\nNorth,100\nSouth,\n"
	req := httptest.NewRequest(http.MethodPost, "/api/villages/"+d.Key+"/import?filename=rates.csv", strings.NewReader(csv))
	rec := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[importResponse](t, rec)
	assert.True(t, resp.Saved)
	assert.Equal(t, core.FormatDelimitedText, resp.Format)
	assert.Equal(t, 2, resp.Records)
	require.Len(t, resp.Columns, 2)
	assert.Equal(t, core.ColumnText, resp.Columns[0].Type)
	assert.Equal(t, core.ColumnNumber, resp.Columns[1].Type)

	stored, err := env.store.Load(context.Background(), d.Key)
	require.NoError(t, err)
	assert.Len(t, stored.Records, 2)
}

func TestImport_Multipart(t *testing.T) {
	env := newTestEnv(t, nil)
	d := env.createVillage(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "rates.tsv")
	require.NoError(t, err)
	fw.Write([]byte("Area\tOwner\nNorth\tMuthu\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/villages/"+d.Key+"/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[importResponse](t, rec)
	assert.Equal(t, core.FormatTabSeparated, resp.Format)
	assert.Equal(t, 1, resp.Records)
}

func TestImport_Failures(t *testing.T) {
	env := newTestEnv(t, nil)
	d := env.createVillage(t)
	base := "/api/villages/" + d.Key
	env.do(t, http.MethodPost, base+"/records", recordRequest{Fields: map[string]any{"areaName": "kept"}})

	post := func(path string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		rec := httptest.NewRecorder()
		env.srv.Router().ServeHTTP(rec, req)
		return rec
	}

	t.Run("no file", func(t *testing.T) {
		rec := post(base+"/import", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "FILE004", decodeBody[ErrorResponse](t, rec).Code)
	})

	t.Run("unsupported format", func(t *testing.T) {
		rec := post(base+"/import?filename=deed.pdf", []byte("%PDF-1.7"))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "FILE002", decodeBody[ErrorResponse](t, rec).Code)
	})

	t.Run("too large", func(t *testing.T) {
		big := bytes.Repeat([]byte("a,b\n"), int(env.cfg.Import.MaxFileSize))
		rec := post(base+"/import?filename=big.csv", big)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "FILE001", decodeBody[ErrorResponse](t, rec).Code)
	})

	got := decodeBody[core.Dataset](t, env.do(t, http.MethodGet, base, nil))
	require.Len(t, got.Records, 1, "failed imports leave the village untouched")
	assert.Equal(t, "kept", got.Records[0].Fields["areaName"])
}

func TestImport_SaveFailureKeepsData(t *testing.T) {
	env := newTestEnv(t, nil)
	d := env.createVillage(t)
	base := "/api/villages/" + d.Key
	env.store.failing.Store(true)

	req := httptest.NewRequest(http.MethodPost, base+"/import?filename=a.csv", strings.NewReader("Area\nNorth\n"))
	rec := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decodeBody[importResponse](t, rec)
	assert.False(t, resp.Saved)
	require.NotNil(t, resp.Error)
	assert.Equal(t, core.StateSaveFailed, resp.Sync.State)

	rec = env.do(t, http.MethodPost, base+"/sync", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	env.store.failing.Store(false)
	rec = env.do(t, http.MethodPost, base+"/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := env.store.Load(context.Background(), d.Key)
	require.NoError(t, err)
	assert.Len(t, stored.Records, 1)
}

func TestExport(t *testing.T) {
	env := newTestEnv(t, nil)
	d := env.createVillage(t)
	base := "/api/villages/" + d.Key
	env.do(t, http.MethodPost, base+"/records", recordRequest{Fields: map[string]any{"areaName": "North", "valuePerSqm": 1500}})

	rec := env.do(t, http.MethodGet, base+"/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Kovilpatti_land_records.csv")
	assert.Contains(t, rec.Body.String(), "North")
	assert.Contains(t, rec.Body.String(), "1500")

	rec = env.do(t, http.MethodGet, base+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "default export is a workbook")

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, base+"/export?format=pdf", nil).Code)
}

func TestDeleteVillage(t *testing.T) {
	env := newTestEnv(t, nil)
	d := env.createVillage(t)
	base := "/api/villages/" + d.Key
	env.do(t, http.MethodPost, base+"/records", recordRequest{})

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, base, nil).Code)
	assert.Equal(t, 0, env.srv.service.SessionCount())
}

func TestCloseSession(t *testing.T) {
	env := newTestEnv(t, nil)
	d := env.createVillage(t)
	base := "/api/villages/" + d.Key
	env.do(t, http.MethodPost, base+"/records", recordRequest{})
	require.Equal(t, 1, env.srv.service.SessionCount())

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, base+"/close", nil).Code)
	assert.Equal(t, 0, env.srv.service.SessionCount())

	stored, err := env.store.Load(context.Background(), d.Key)
	require.NoError(t, err)
	assert.Len(t, stored.Records, 1, "closing flushes pending edits")
}

func TestExtract(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		env := newTestEnv(t, nil)
		d := env.createVillage(t)

		rec := env.do(t, http.MethodPost, "/api/villages/"+d.Key+"/extract", map[string]string{"text": "North area"})

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "EXT001", decodeBody[ErrorResponse](t, rec).Code)
	})

	t.Run("prefills template", func(t *testing.T) {
		env := newTestEnv(t, func(_ *config.Config, sc *core.ServiceConfig) {
			sc.Extractor = fakeExtractor{fields: map[string]any{"areaName": "North", "valuePerSqm": "1,500", "bogus": "x"}}
		})
		d := env.createVillage(t)

		rec := env.do(t, http.MethodPost, "/api/villages/"+d.Key+"/extract", map[string]string{"text": "North area, 1,500 per sq.m"})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		fields := decodeBody[recordRequest](t, rec).Fields
		assert.Equal(t, "North", fields["areaName"])
		assert.NotContains(t, fields, "bogus")
		assert.Len(t, fields, 5)

		got := decodeBody[core.Dataset](t, env.do(t, http.MethodGet, "/api/villages/"+d.Key, nil))
		assert.Empty(t, got.Records, "extraction does not add a record")
	})

	t.Run("blank text", func(t *testing.T) {
		env := newTestEnv(t, func(_ *config.Config, sc *core.ServiceConfig) {
			sc.Extractor = fakeExtractor{}
		})
		d := env.createVillage(t)

		rec := env.do(t, http.MethodPost, "/api/villages/"+d.Key+"/extract", map[string]string{"text": "  "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config, _ *core.ServiceConfig) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, ImportLimit: 1}
	})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil).Code)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decodeBody[ErrorResponse](t, rec).Code)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s := &Server{}
	rl := s.newRateLimiter(1, time.Minute)
	defer rl.stop()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"), "limits are per client")

	now = now.Add(2 * time.Minute)
	assert.True(t, rl.allow("10.0.0.1"))

	now = now.Add(5 * time.Minute)
	rl.sweep()
	assert.Empty(t, rl.visitors)
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config, _ *core.ServiceConfig) {
		c.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	})

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/villages", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/villages", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{core.ErrTooManyImports, http.StatusTooManyRequests},
		{&core.ParseError{Err: errors.New("bad zip")}, http.StatusUnprocessableEntity},
		{core.ErrUnknownColumn, http.StatusBadRequest},
		{core.ErrNoFile, http.StatusBadRequest},
		{core.ErrExtractorUnavailable, http.StatusServiceUnavailable},
		{&core.SyncError{Key: "k", Err: errors.New("connection reset")}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("extractor rate limit: quota"), http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

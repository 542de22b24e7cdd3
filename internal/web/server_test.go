package web

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/dbpipeline/internal/config"
	"github.com/JonMunkholm/dbpipeline/internal/core"
	"github.com/JonMunkholm/dbpipeline/internal/store"
	"github.com/JonMunkholm/dbpipeline/internal/table"
)

const flightsCSV = "year,month,day,dep_time,arr_time,carrier,flight,origin,air_time,tailnum\n" +
	"2013,1,1,517,830,UA,1545,ewr,227,N14228\n" +
	"2013,1,1,1533.0,1850,AA,1714,LGA,200,N24211\n" +
	"2013,1,2,2400,12,B6,725,jfk,NA,N804JB\n" +
	"2013,1,3,600,900,NA,100,EWR,100,N1\n"

const metadataCSV = "tabela,cols_originais,cols_renamed,tipo_original,tipo_formatted,key,raw_null_tolerance,std_str,corrige_hr\n" +
	"nyflights,carrier,companhia,string,string,1,0,1,0\n" +
	"nyflights,flight,numero_voo,int,int,1,0,0,0\n" +
	"nyflights,origin,origem,string,string,0,0,1,0\n" +
	"nyflights,dep_time,datetime_partida,float,datetime,0,0.05,0,1\n" +
	"nyflights,arr_time,datetime_chegada,float,datetime,0,0.05,0,1\n" +
	"nyflights,air_time,tempo_voo,float,float,0,0.1,0,0\n"

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()

	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "NyflightsDB.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		Store: config.StoreConfig{Table: "nyflights"},
		Pipeline: config.PipelineConfig{
			Coercion:      "fail",
			CSVEncoding:   "utf-8",
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
			Timeout:       time.Minute,
		},
		Server: config.ServerConfig{RequestTimeout: time.Minute},
		Upload: config.UploadConfig{MaxFileSize: 10 << 20},
	}
	if mutate != nil {
		mutate(cfg)
	}
	return NewServer(core.NewService(st, cfg), cfg)
}

type upload struct {
	data, dataName string
	meta, metaName string
	fields         map[string]string
}

func defaultUpload() upload {
	return upload{
		data: flightsCSV, dataName: "flights.csv",
		meta: metadataCSV, metaName: "metadados.csv",
	}
}

func pipelineRequest(t *testing.T, u upload) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if u.dataName != "" {
		fw, err := mw.CreateFormFile("data", u.dataName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(u.data))
		require.NoError(t, err)
	}
	if u.metaName != "" {
		fw, err := mw.CreateFormFile("metadata", u.metaName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(u.meta))
		require.NoError(t, err)
	}
	for k, v := range u.fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/pipeline", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", "pipeline-test")
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

// ---- Health Tests ----

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Runs.MaxConcurrent)
	assert.Equal(t, 0, resp.Runs.Active)
}

// ---- Pipeline Tests ----

func TestRunPipeline_SaveFetchAndLog(t *testing.T) {
	s := newTestServer(t, nil)

	rec := serve(s, pipelineRequest(t, defaultUpload()))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result core.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "nyflights", result.Table)
	assert.Equal(t, 4, result.RowsIn)
	assert.Equal(t, 3, result.RowsOut)
	assert.Equal(t, 1, result.DroppedRows)
	assert.Contains(t, result.Columns, "companhia")
	assert.Contains(t, result.Columns, core.ColStatus)

	// tables
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var tables []store.TableInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tables))
	require.Len(t, tables, 1)
	assert.Equal(t, "nyflights", tables[0].Name)
	assert.Equal(t, int64(3), tables[0].Rows)

	// json fetch with limit
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/tables/nyflights?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched struct {
		Name    string `json:"name"`
		Columns []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"columns"`
		Rows [][]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, "nyflights", fetched.Name)
	assert.Len(t, fetched.Rows, 2)
	assert.Len(t, fetched.Columns, len(result.Columns))

	// csv fetch
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/tables/nyflights?format=csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "nyflights.csv")
	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, result.Columns, records[0])

	// run log
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, result.RunID, runs[0].ID)
	assert.Equal(t, store.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, "http 192.0.2.1", runs[0].Source)
}

func TestRunPipeline_FormOverrides(t *testing.T) {
	s := newTestServer(t, nil)

	u := defaultUpload()
	u.fields = map[string]string{"table": "voos_limpos", "coercion": "null"}
	rec := serve(s, pipelineRequest(t, u))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/tables/voos_limpos?limit=1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/tables/nyflights", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunPipeline_Errors(t *testing.T) {
	tests := []struct {
		name       string
		upload     func(*upload)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing metadata",
			upload:     func(u *upload) { u.metaName = "" },
			wantStatus: http.StatusBadRequest,
			wantCode:   "RUN003",
		},
		{
			name:       "missing data",
			upload:     func(u *upload) { u.dataName = "" },
			wantStatus: http.StatusBadRequest,
			wantCode:   "RUN003",
		},
		{
			name:       "unsupported metadata file",
			upload:     func(u *upload) { u.metaName = "metadados.txt" },
			wantStatus: http.StatusBadRequest,
			wantCode:   "META002",
		},
		{
			name: "column missing from data",
			upload: func(u *upload) {
				u.meta += "nyflights,distance,distancia,int,int,0,0,0,0\n"
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "VAL001",
		},
		{
			name:       "empty data",
			upload:     func(u *upload) { u.data = "" },
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "VAL003",
		},
		{
			name:       "reserved table",
			upload:     func(u *upload) { u.fields = map[string]string{"table": "pipeline_runs"} },
			wantStatus: http.StatusBadRequest,
			wantCode:   "STORE002",
		},
		{
			name:       "unknown coercion",
			upload:     func(u *upload) { u.fields = map[string]string{"coercion": "maybe"} },
			wantStatus: http.StatusBadRequest,
			wantCode:   "RUN004",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			u := defaultUpload()
			tt.upload(&u)

			rec := serve(s, pipelineRequest(t, u))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestRunPipeline_NotMultipart(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/pipeline", strings.NewReader(`{"data":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(s, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UPL002", decodeError(t, rec).Code)
}

func TestRunPipeline_TooLarge(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Upload.MaxFileSize = 128 })

	rec := serve(s, pipelineRequest(t, defaultUpload()))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "UPL001", decodeError(t, rec).Code)
}

func TestRunPipeline_APIKey(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}
	})

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "nope", http.StatusForbidden},
		{"valid key", "k2", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := pipelineRequest(t, defaultUpload())
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := serve(s, req)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}

	// reads stay open
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunPipeline_TrustedProxySource(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.TrustedProxies = []string{"192.0.2.0/24"}
	})

	req := pipelineRequest(t, defaultUpload())
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 192.0.2.1")
	rec := serve(s, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/runs?limit=1", nil))
	var runs []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "http 203.0.113.9", runs[0].Source)
}

// ---- Read Endpoint Tests ----

func TestListTables_Empty(t *testing.T) {
	s := newTestServer(t, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestFetchTable_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"unknown table", "/api/tables/voos", http.StatusNotFound, "STORE001"},
		{"invalid name", "/api/tables/bad-name", http.StatusBadRequest, "STORE002"},
		{"reserved name", "/api/tables/pipeline_tables", http.StatusBadRequest, "STORE002"},
		{"bad format", "/api/tables/nyflights?format=xml", http.StatusBadRequest, "RUN004"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

// ---- Status Mapping Tests ----

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"busy", fmt.Errorf("run: %w", core.ErrTooManyRuns), http.StatusServiceUnavailable},
		{"not found", store.ErrTableNotFound, http.StatusNotFound},
		{"timeout", fmt.Errorf("run timed out after 1s: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"invalid name", store.ErrInvalidTableName, http.StatusBadRequest},
		{"invalid metadata", core.ErrInvalidMetadata, http.StatusBadRequest},
		{"invalid option", core.ErrInvalidOption, http.StatusBadRequest},
		{"no input", core.ErrNoInput, http.StatusBadRequest},
		{"mismatch", &core.ColumnMismatchError{Stage: "data_clean", Missing: []string{"x"}}, http.StatusUnprocessableEntity},
		{"empty csv", table.ErrEmptyCSV, http.StatusUnprocessableEntity},
		{"parse error", &csv.ParseError{Line: 2, Err: csv.ErrFieldCount}, http.StatusUnprocessableEntity},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

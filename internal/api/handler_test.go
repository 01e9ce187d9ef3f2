package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"sitebook/internal/config"
	"sitebook/internal/importer"
	"sitebook/internal/model"
	"sitebook/internal/store"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.New(store.DriverSQLite, filepath.Join(t.TempDir(), "sitebook.db"))
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ingestor, err := importer.NewIngestor(config.DefaultConfig().Ingest)
	if err != nil {
		t.Fatalf("ingestor: %v", err)
	}
	h := NewHandler(st, importer.NewCoordinator(st, ingestor, nil, nil), nil)

	r := gin.New()
	h.RegisterRoutes(r.Group("/api"))
	return r
}

func estimateFile(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{
		{"名称", "数量", "単位", "単価", "金額"},
		{"鉄筋工", 1.5, "t", 120000, nil},
		{"型枠工", 20, "m2", 4500, 90000},
	}
	for i, row := range rows {
		axis, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", axis, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, path, filename string, data []byte, projectID string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if projectID != "" {
		_ = w.WriteField("project_id", projectID)
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		part.Write(data)
	}
	w.Close()
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func do(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestImportLifecycle(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	w := do(r, uploadRequest(t, "/api/imports", "見積.xlsx", estimateFile(t), "P-1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	var imp model.Import
	if err := json.Unmarshal(w.Body.Bytes(), &imp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if imp.LineCount != 2 || imp.Status != model.ImportStatusDraft || imp.ProjectID != "P-1" {
		t.Fatalf("import=%+v", imp)
	}
	if got := *imp.Lines[0].Amount; got != 180000 {
		t.Fatalf("amount=%v, want 180000", got)
	}

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/imports/"+imp.ID, nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"sheetsProcessed"`) {
		t.Fatalf("get status=%d body=%s", w.Code, w.Body.String())
	}

	w = do(r, httptest.NewRequest(http.MethodPost, "/api/imports/"+imp.ID+"/commit", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("commit status=%d body=%s", w.Code, w.Body.String())
	}
	var commit struct {
		ImportID  string `json:"importId"`
		LineCount int    `json:"lineCount"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &commit); err != nil {
		t.Fatalf("decode commit: %v", err)
	}
	if commit.ImportID != imp.ID || commit.LineCount != 2 || commit.Status != "committed" {
		t.Fatalf("commit=%+v", commit)
	}

	w = do(r, httptest.NewRequest(http.MethodPost, "/api/imports/"+imp.ID+"/commit", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("second commit status=%d, want 409", w.Code)
	}

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/imports/"+imp.ID+"/lines", nil))
	var lines struct {
		Lines []model.LineItem `json:"lines"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &lines); err != nil || len(lines.Lines) != 2 {
		t.Fatalf("lines=%s err=%v", w.Body.String(), err)
	}

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/imports?project_id=P-1", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), imp.ID) {
		t.Fatalf("list status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestCreateImport_ParseErrorStillCreated(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	w := do(r, uploadRequest(t, "/api/imports", "broken.xlsx", []byte("not a workbook"), ""))
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"reasonCode":"parse_error"`) {
		t.Fatalf("body=%s", w.Body.String())
	}
}

func TestCreateImport_BadRequests(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	if w := do(r, uploadRequest(t, "/api/imports", "", nil, "P-1")); w.Code != http.StatusBadRequest {
		t.Fatalf("missing file status=%d", w.Code)
	}
	if w := do(r, uploadRequest(t, "/api/imports", "a.xlsx", estimateFile(t), "../x")); w.Code != http.StatusBadRequest {
		t.Fatalf("bad project status=%d", w.Code)
	}
}

func TestUnknownImport(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/imports/nope", nil),
		httptest.NewRequest(http.MethodGet, "/api/imports/nope/lines", nil),
		httptest.NewRequest(http.MethodPost, "/api/imports/nope/commit", nil),
		httptest.NewRequest(http.MethodPost, "/api/imports/nope/reingest", nil),
	} {
		if w := do(r, req); w.Code != http.StatusNotFound {
			t.Fatalf("%s %s status=%d, want 404", req.Method, req.URL.Path, w.Code)
		}
	}
}

func TestStreamImport(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	w := do(r, uploadRequest(t, "/api/imports/stream", "a.xlsx", estimateFile(t), ""))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%q", ct)
	}

	var types []string
	sc := bufio.NewScanner(strings.NewReader(w.Body.String()))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt importer.ProgressEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		types = append(types, evt.Type)
	}
	if len(types) == 0 || types[len(types)-1] != importer.EventDone {
		t.Fatalf("events=%v", types)
	}
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t)
	w := do(r, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.Database != "sqlite3" || resp.Classifier != "disabled" {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.Thresholds.MinKeyFields != 2 || resp.Thresholds.EmptyRowLimitBeforeNext != 20 {
		t.Fatalf("thresholds=%+v", resp.Thresholds)
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"PriceServer/internal/domain/models"
	"PriceServer/internal/repository"
	"PriceServer/internal/service/jobs"
	"PriceServer/internal/service/ratelimit"
	"PriceServer/internal/usecase"
	"PriceServer/pkg/cache"
	"PriceServer/pkg/logger"
	"PriceServer/pkg/metrics"
	"PriceServer/pkg/queue"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type heldScheduler struct {
	mu    sync.Mutex
	tasks []queue.Task
}

func (s *heldScheduler) Submit(t queue.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
	return nil
}

func (s *heldScheduler) runAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, t := range tasks {
		_ = t.Run(context.Background())
	}
}

type testAPI struct {
	e         *echo.Echo
	store     *repository.MemorySeriesStore
	scheduler *heldScheduler
	exports   *ExportsEchoHandler
}

func newTestAPI(t *testing.T, limiter *ratelimit.Limiter) *testAPI {
	t.Helper()
	lg := logger.NewNop()
	store := repository.NewMemorySeriesStore()
	registry := jobs.NewMemoryRegistry()
	engine := usecase.NewQueryEngine(store, metrics.Nop{}, 1000)
	worker := usecase.NewExportWorker(engine, registry, repository.NopJobEvents{}, metrics.Nop{}, lg,
		usecase.ExportWorkerConfig{Dir: t.TempDir(), MaxRows: 1000, ChunkSize: 10})
	sched := &heldScheduler{}
	exportSvc := usecase.NewExportService(registry, worker, sched, repository.NopJobEvents{}, metrics.Nop{}, lg)
	ingest := usecase.NewIngestService(store, metrics.Nop{}, lg, 100)
	instruments := usecase.NewInstrumentService(repository.NewMemoryInstrumentRepo(), cache.Nop{}, time.Minute, lg)

	var mw echo.MiddlewareFunc
	if limiter != nil {
		mw = limiter.Middleware()
	}
	exports := NewExportsEchoHandler(lg, exportSvc, mw)
	exports.pollInterval = 10 * time.Millisecond

	e := echo.New()
	NewPricesEchoHandler(lg, engine, ingest, 1).WithQueryTimeout(5 * time.Second).RegisterRoutes(e)
	exports.RegisterRoutes(e)
	NewInstrumentsEchoHandler(lg, instruments).RegisterRoutes(e)

	return &testAPI{e: e, store: store, scheduler: sched, exports: exports}
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (a *testAPI) do(t *testing.T, method, target string, body io.Reader, contentType string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, target, err, rec.Body.String())
		}
		if env.Status != rec.Code {
			t.Fatalf("envelope status %d != http status %d", env.Status, rec.Code)
		}
	}
	return rec, env
}

func (a *testAPI) seedEURUSD(t *testing.T) {
	t.Helper()
	_, err := a.store.InsertTicks(context.Background(), []models.Tick{
		{InstrumentID: 1, Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Bid: decimal.RequireFromString("1.10000"), Ask: decimal.RequireFromString("1.10002")},
		{InstrumentID: 1, Timestamp: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), Bid: decimal.RequireFromString("1.10001"), Ask: decimal.RequireFromString("1.10003")},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPrices_TickQuery(t *testing.T) {
	a := newTestAPI(t, nil)
	a.seedEURUSD(t)

	rec, env := a.do(t, http.MethodGet, "/prices/tick/1?limit=1&offset=1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body=%s", rec.Code, rec.Body.String())
	}
	var page models.TickPageResponse
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 || page.Page != 2 || page.Size != 1 || len(page.Items) != 1 {
		t.Fatalf("page = %+v", page)
	}
	if page.Items[0].Bid.String() != "1.10001" {
		t.Fatalf("bid = %s", page.Items[0].Bid)
	}

	rec, _ = a.do(t, http.MethodGet, "/prices/tick/1?from_date=2024-01-01T00:00:30Z&to_date=2024-01-02", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Fatalf("range query: %d %s", rec.Code, rec.Body.String())
	}
}

func TestPrices_QueryValidation(t *testing.T) {
	a := newTestAPI(t, nil)
	for _, target := range []string{
		"/prices/tick/1?limit=-5",
		"/prices/tick/1?limit=abc",
		"/prices/tick/1?from_date=not-a-date",
		"/prices/tick/x",
		"/prices/ohlc/1?timeframe=H2",
		"/prices/ohlc/1?price_type=BID",
	} {
		rec, _ := a.do(t, http.MethodGet, target, nil, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: code = %d", target, rec.Code)
		}
	}
}

func multipartBody(t *testing.T, fields map[string]string, csv string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if csv != "" {
		fw, err := w.CreateFormFile("file", "data.csv")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(csv)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf, w.FormDataContentType()
}

func TestPrices_Upload(t *testing.T) {
	a := newTestAPI(t, nil)

	body, ct := multipartBody(t, map[string]string{"instrument_id": "3"},
		"timestamp,bid,ask,volume\n2024-01-01 00:00:00,1.27000,1.27002,100000\n")
	rec, env := a.do(t, http.MethodPost, "/prices/tick/upload", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("tick upload: %d %s", rec.Code, rec.Body.String())
	}
	var up models.UploadResponse
	if err := json.Unmarshal(env.Data, &up); err != nil || up.Inserted != 1 || up.InstrumentID != 3 {
		t.Fatalf("upload = %+v (%v)", up, err)
	}

	body, ct = multipartBody(t, map[string]string{"instrument_id": "3", "timeframe": "D1"},
		"timestamp,open,high,low,close,volume\n2024-01-01 00:00:00,42000,42500,41500,42200,1000\n")
	rec, _ = a.do(t, http.MethodPost, "/prices/ohlc/upload", body, ct)
	if rec.Code != http.StatusOK {
		t.Fatalf("ohlc upload: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = a.do(t, http.MethodGet, "/prices/ohlc/3?timeframe=D1&price_type=OHLC", nil, "")
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Fatalf("uploaded bar not queryable: %s", rec.Body.String())
	}

	body, ct = multipartBody(t, map[string]string{"instrument_id": "3"}, "timestamp,bid,ask\n2024-01-01,bad,1\n")
	rec, _ = a.do(t, http.MethodPost, "/prices/tick/upload", body, ct)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "line 2") {
		t.Fatalf("bad csv: %d %s", rec.Code, rec.Body.String())
	}

	body, ct = multipartBody(t, map[string]string{"instrument_id": "3"}, "")
	rec, _ = a.do(t, http.MethodPost, "/prices/tick/upload", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing file: %d", rec.Code)
	}

	body, ct = multipartBody(t, map[string]string{"instrument_id": "3", "timeframe": "H7"}, "timestamp,open,high,low,close\n")
	rec, _ = a.do(t, http.MethodPost, "/prices/ohlc/upload", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad timeframe: %d", rec.Code)
	}
}

func TestExports_Lifecycle(t *testing.T) {
	a := newTestAPI(t, nil)
	a.seedEURUSD(t)

	rec, env := a.do(t, http.MethodPost, "/prices/tick/1/export", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}
	var job models.ExportJobResponse
	if err := json.Unmarshal(env.Data, &job); err != nil {
		t.Fatal(err)
	}
	if job.JobID == "" || job.Status != "pending" || job.DownloadURL != nil {
		t.Fatalf("submitted = %+v", job)
	}

	rec, env = a.do(t, http.MethodGet, "/prices/export/"+job.JobID+"/status", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"status":"pending"`) {
		t.Fatalf("status: %d %s", rec.Code, rec.Body.String())
	}

	rec, env = a.do(t, http.MethodGet, "/prices/export/"+job.JobID+"/download", nil, "")
	if rec.Code != http.StatusAccepted || !strings.Contains(string(env.Data), "Export not ready") {
		t.Fatalf("early download: %d %s", rec.Code, rec.Body.String())
	}

	a.scheduler.runAll()

	rec, env = a.do(t, http.MethodGet, "/prices/export/"+job.JobID+"/status", nil, "")
	var st models.ExportJobResponse
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatal(err)
	}
	if st.Status != "completed" || st.DownloadURL == nil || *st.DownloadURL != "/prices/export/"+job.JobID+"/download" {
		t.Fatalf("final status = %+v", st)
	}

	rec, _ = a.do(t, http.MethodGet, *st.DownloadURL, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download: %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %s", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, job.JobID+".csv") {
		t.Fatalf("content disposition = %s", cd)
	}
	want := "id,instrument_id,timestamp,bid,ask,volume\n" +
		"1,1,2024-01-01T00:00:00Z,1.10000000,1.10002000,\n" +
		"2,1,2024-01-01T00:01:00Z,1.10001000,1.10003000,\n"
	if rec.Body.String() != want {
		t.Fatalf("csv =\n%s", rec.Body.String())
	}
}

func TestExports_OHLCSubmitValidation(t *testing.T) {
	a := newTestAPI(t, nil)
	for _, target := range []string{
		"/prices/ohlc/1/export?timeframe=H3",
		"/prices/ohlc/1/export?from_date=2024-02-01&to_date=2024-01-01",
		"/prices/tick/1/export?to_date=garbage",
	} {
		rec, _ := a.do(t, http.MethodPost, target, nil, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: code = %d %s", target, rec.Code, rec.Body.String())
		}
	}
	rec, _ := a.do(t, http.MethodPost, "/prices/ohlc/1/export?timeframe=H1&price_type=OHLC", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("valid ohlc submit: %d %s", rec.Code, rec.Body.String())
	}
}

func TestExports_UnknownJob(t *testing.T) {
	a := newTestAPI(t, nil)
	for _, suffix := range []string{"status", "download", "watch"} {
		rec, _ := a.do(t, http.MethodGet, "/prices/export/does-not-exist/"+suffix, nil, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: code = %d", suffix, rec.Code)
		}
	}
}

func TestExports_RateLimited(t *testing.T) {
	a := newTestAPI(t, ratelimit.New(0, 2))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec, _ := a.do(t, http.MethodPost, "/prices/tick/1/export", nil, "")
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusAccepted || codes[1] != http.StatusAccepted || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestExports_Watch(t *testing.T) {
	a := newTestAPI(t, nil)
	a.seedEURUSD(t)
	srv := httptest.NewServer(a.e)
	defer srv.Close()

	_, env := a.do(t, http.MethodPost, "/prices/tick/1/export", nil, "")
	var job models.ExportJobResponse
	if err := json.Unmarshal(env.Data, &job); err != nil {
		t.Fatal(err)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/prices/export/" + job.JobID + "/watch"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var frame models.ExportJobResponse
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Status != "pending" {
		t.Fatalf("first frame = %+v", frame)
	}

	a.scheduler.runAll()

	for frame.Status != "completed" {
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("waiting for completion: %v", err)
		}
	}
	if frame.DownloadURL == nil {
		t.Fatal("completed frame without download url")
	}

	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.CloseNormalClosure {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func TestInstruments_CRUD(t *testing.T) {
	a := newTestAPI(t, nil)

	body := `{"symbol":"EURUSD","name":"Euro / US Dollar","asset_type":"CURRENCY"}`
	rec, env := a.do(t, http.MethodPost, "/assets", strings.NewReader(body), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var inst models.Instrument
	if err := json.Unmarshal(env.Data, &inst); err != nil || inst.ID == 0 {
		t.Fatalf("created = %+v (%v)", inst, err)
	}

	rec, _ = a.do(t, http.MethodPost, "/assets", strings.NewReader(body), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: %d", rec.Code)
	}

	rec, _ = a.do(t, http.MethodPost, "/assets", strings.NewReader(`{"symbol":"X","name":"X","asset_type":"BOND"}`), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad asset type: %d", rec.Code)
	}

	rec, env = a.do(t, http.MethodPut, "/assets/1", strings.NewReader(`{"name":"Euro"}`), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"name":"Euro"`) {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}

	rec, env = a.do(t, http.MethodGet, "/assets?page=1&size=10", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"total":1`) {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = a.do(t, http.MethodDelete, "/assets/1", nil, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	for _, m := range []string{http.MethodGet, http.MethodDelete} {
		rec, _ = a.do(t, m, "/assets/1", nil, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s after delete: %d", m, rec.Code)
		}
	}
	rec, _ = a.do(t, http.MethodPut, "/assets/1", strings.NewReader(`{"name":"Gone"}`), echo.MIMEApplicationJSON)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("update after delete: %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	e := echo.New()
	failing := errors.New("dial tcp: connection refused")
	NewHealthEchoHandler("price-server", "1.2.3",
		HealthCheck{Name: "series", Check: func(context.Context) error { return nil }},
	).RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"version":"1.2.3"`) {
		t.Fatalf("healthy: %d %s", rec.Code, rec.Body.String())
	}

	e = echo.New()
	NewHealthEchoHandler("price-server", "1.2.3",
		HealthCheck{Name: "postgres", Check: func(context.Context) error { return failing }},
	).RegisterRoutes(e)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("degraded: %d %s", rec.Code, rec.Body.String())
	}
}

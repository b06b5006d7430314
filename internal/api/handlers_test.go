package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/pquerna/otp/totp"

	"perpsignals/internal/indicator"
	"perpsignals/internal/model"
	"perpsignals/internal/scoring"
	"perpsignals/internal/strategy"
)

const testTOTPSecret = "JBSWY3DPEHPK3PXP"

const validStrategyDoc = `{
	"name": "rsi-dip",
	"symbol": "BTC",
	"rules": [
		{"id": "r1", "type": "Condition", "condition": {"indicator": "Rsi", "comparison": "LessThan", "threshold": 30}}
	],
	"aggregation": {"method": "Sum", "thresholds": {"long_min": 0.5, "short_max": -0.5}}
}`

type fakeSignals struct {
	latest map[string]*model.SignalOutput
	recent map[string][]model.SignalOutput
	err    error
}

func (f *fakeSignals) LatestSignal(ctx context.Context, symbol string) (*model.SignalOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.latest[symbol], nil
}

func (f *fakeSignals) RecentSignals(ctx context.Context, symbol string, count int64) ([]model.SignalOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	sigs := f.recent[symbol]
	if int64(len(sigs)) > count {
		sigs = sigs[:count]
	}
	return sigs, nil
}

func (f *fakeSignals) SubscribeSignals(ctx context.Context) (*goredis.PubSub, error) {
	return nil, errors.New("no pubsub in tests")
}

type fakeStrategies struct {
	byName map[string]*strategy.Strategy
}

func (f *fakeStrategies) Strategies() []*strategy.Strategy {
	out := make([]*strategy.Strategy, 0, len(f.byName))
	for _, st := range f.byName {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (f *fakeStrategies) UpsertStrategy(ctx context.Context, raw []byte) (*strategy.Strategy, error) {
	st, err := strategy.Parse(raw)
	if err != nil {
		return nil, err
	}
	f.byName[st.Name] = st
	return st, nil
}

func (f *fakeStrategies) RemoveStrategy(ctx context.Context, name string) error {
	if _, ok := f.byName[name]; !ok {
		return strategy.ErrNotFound
	}
	delete(f.byName, name)
	return nil
}

type fakeSnapshots struct {
	views map[string]SnapshotView
}

func (f *fakeSnapshots) Snapshot(symbol string) (SnapshotView, bool) {
	v, ok := f.views[symbol]
	return v, ok
}

func newTestDeps() Deps {
	now := time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)
	sig := &model.SignalOutput{
		Symbol: "BTC", Direction: model.Long, Confidence: 0.72,
		Score: 3.5, Price: 64250, TS: now,
		Reasons: []model.Reason{{Source: "r1", Detail: "RSI oversold", Weight: 1, Contribution: 1}},
	}
	snap := &indicator.Snapshot{
		Rsi: &indicator.RSIValue{Value: 28.4, Period: 14, State: indicator.RSIOversold},
		Ema: &indicator.EMAValue{Fast: 64310, Slow: 64180, FastPeriod: 9, SlowPeriod: 21, State: indicator.EMABullishCross},
	}
	return Deps{
		Signals: &fakeSignals{
			latest: map[string]*model.SignalOutput{"BTC": sig},
			recent: map[string][]model.SignalOutput{"BTC": {*sig, *sig, *sig}},
		},
		Snapshots: &fakeSnapshots{views: map[string]SnapshotView{
			"BTC": {Symbol: "BTC", Price: 64250, TS: now, Snap: snap, Category: scoring.Aggregate(snap)},
		}},
		Strategies: &fakeStrategies{byName: map[string]*strategy.Strategy{}},
		TOTPSecret: testTOTPSecret,
		Symbols:    []string{"BTC", "ETH"},
	}
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte, totpCode string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if totpCode != "" {
		req.Header.Set("X-TOTP-Code", totpCode)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("response is not valid JSON: %v\nbody: %s", err, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer("127.0.0.1:0", newTestDeps())
	rec := doRequest(t, s, http.MethodGet, "/api/v1/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var body struct {
		Status  string `json:"status"`
		Symbols int    `json:"symbols"`
	}
	decodeBody(t, rec, &body)
	if body.Status != "ok" {
		t.Errorf("status field: got %q, want ok", body.Status)
	}
	if body.Symbols != 2 {
		t.Errorf("symbols: got %d, want 2", body.Symbols)
	}
}

func TestSymbolsEndpoint(t *testing.T) {
	s := NewServer("127.0.0.1:0", newTestDeps())
	rec := doRequest(t, s, http.MethodGet, "/api/v1/symbols", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var body struct {
		Symbols []string `json:"symbols"`
		Count   int      `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 2 || len(body.Symbols) != 2 {
		t.Errorf("symbols: got %v count=%d, want 2", body.Symbols, body.Count)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/symbols", nil, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status: got %d, want 405", rec.Code)
	}
}

func TestLatestSignal(t *testing.T) {
	s := NewServer("127.0.0.1:0", newTestDeps())

	t.Run("found", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/signals/latest?symbol=BTC", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d, want 200\nbody: %s", rec.Code, rec.Body.String())
		}
		var sig model.SignalOutput
		decodeBody(t, rec, &sig)
		if sig.Symbol != "BTC" || sig.Direction != model.Long {
			t.Errorf("signal: got %s/%s, want BTC/Long", sig.Symbol, sig.Direction)
		}
		if sig.Confidence != 0.72 {
			t.Errorf("confidence: got %v, want 0.72", sig.Confidence)
		}
	})

	t.Run("missing symbol param", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/signals/latest", nil, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status: got %d, want 400", rec.Code)
		}
	})

	t.Run("unknown symbol", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/signals/latest?symbol=DOGE", nil, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status: got %d, want 404", rec.Code)
		}
	})

	t.Run("store error", func(t *testing.T) {
		deps := newTestDeps()
		deps.Signals = &fakeSignals{err: errors.New("connection refused")}
		errSrv := NewServer("127.0.0.1:0", deps)
		rec := doRequest(t, errSrv, http.MethodGet, "/api/v1/signals/latest?symbol=BTC", nil, "")
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status: got %d, want 502", rec.Code)
		}
	})
}

func TestRecentSignals(t *testing.T) {
	s := NewServer("127.0.0.1:0", newTestDeps())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/signals/recent?symbol=BTC", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var body struct {
		Symbol  string               `json:"symbol"`
		Count   int                  `json:"count"`
		Signals []model.SignalOutput `json:"signals"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 3 || len(body.Signals) != 3 {
		t.Errorf("count: got %d/%d signals, want 3", body.Count, len(body.Signals))
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/signals/recent?symbol=BTC&count=2", nil, "")
	decodeBody(t, rec, &body)
	if body.Count != 2 {
		t.Errorf("clamped count: got %d, want 2", body.Count)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/signals/recent", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing symbol status: got %d, want 400", rec.Code)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	s := NewServer("127.0.0.1:0", newTestDeps())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/snapshot?symbol=BTC", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Symbol     string  `json:"symbol"`
		Price      float64 `json:"price"`
		Indicators struct {
			Rsi *struct {
				Value float64 `json:"value"`
				State string  `json:"state"`
			} `json:"rsi"`
			Macd *json.RawMessage `json:"macd"`
		} `json:"indicators"`
		Unavailable []string `json:"unavailable"`
		Category    struct {
			Bias      string `json:"bias"`
			Direction string `json:"direction"`
		} `json:"category"`
	}
	decodeBody(t, rec, &body)
	if body.Symbol != "BTC" || body.Price != 64250 {
		t.Errorf("header: got %s @ %v, want BTC @ 64250", body.Symbol, body.Price)
	}
	if body.Indicators.Rsi == nil || body.Indicators.Rsi.Value != 28.4 {
		t.Errorf("rsi: got %+v, want value 28.4", body.Indicators.Rsi)
	}
	if body.Indicators.Macd != nil {
		t.Error("macd should be absent from a snapshot that never computed it")
	}
	found := false
	for _, id := range body.Unavailable {
		if id == string(indicator.IDMacd) {
			found = true
		}
	}
	if !found {
		t.Errorf("unavailable should list Macd, got %v", body.Unavailable)
	}
	if body.Category.Bias == "" {
		t.Error("category bias missing")
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/snapshot?symbol=DOGE", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown symbol status: got %d, want 404", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/snapshot", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing symbol status: got %d, want 400", rec.Code)
	}
}

func TestStrategyCRUD(t *testing.T) {
	s := NewServer("127.0.0.1:0", newTestDeps())
	code, err := totp.GenerateCode(testTOTPSecret, time.Now())
	if err != nil {
		t.Fatalf("generate TOTP code: %v", err)
	}

	// Empty list to start.
	rec := doRequest(t, s, http.MethodGet, "/api/v1/strategies", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: got %d, want 200", rec.Code)
	}
	var list struct {
		Strategies []*strategy.Strategy `json:"strategies"`
	}
	decodeBody(t, rec, &list)
	if len(list.Strategies) != 0 {
		t.Fatalf("initial list: got %d strategies, want 0", len(list.Strategies))
	}

	// Create.
	rec = doRequest(t, s, http.MethodPost, "/api/v1/strategies", []byte(validStrategyDoc), code)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert status: got %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	var created strategy.Strategy
	decodeBody(t, rec, &created)
	if created.Name != "rsi-dip" || created.Symbol != "BTC" {
		t.Errorf("created: got %s/%s, want rsi-dip/BTC", created.Name, created.Symbol)
	}

	// Listed and fetchable by name.
	rec = doRequest(t, s, http.MethodGet, "/api/v1/strategies", nil, "")
	decodeBody(t, rec, &list)
	if len(list.Strategies) != 1 {
		t.Fatalf("list after upsert: got %d, want 1", len(list.Strategies))
	}
	rec = doRequest(t, s, http.MethodGet, "/api/v1/strategies/rsi-dip", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("get by name status: got %d, want 200", rec.Code)
	}

	// Delete, then delete again.
	rec = doRequest(t, s, http.MethodDelete, "/api/v1/strategies/rsi-dip", nil, code)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status: got %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, s, http.MethodDelete, "/api/v1/strategies/rsi-dip", nil, code)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status: got %d, want 404", rec.Code)
	}
}

func TestStrategyUpsertInvalidConfig(t *testing.T) {
	s := NewServer("127.0.0.1:0", newTestDeps())
	code, err := totp.GenerateCode(testTOTPSecret, time.Now())
	if err != nil {
		t.Fatalf("generate TOTP code: %v", err)
	}

	rec := doRequest(t, s, http.MethodPost, "/api/v1/strategies", []byte(`{"name":"broken"}`), code)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400\nbody: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &body)
	if body.Error == "" {
		t.Error("expected an error message")
	}
}

func TestStrategyTOTPGate(t *testing.T) {
	t.Run("no code", func(t *testing.T) {
		s := NewServer("127.0.0.1:0", newTestDeps())
		rec := doRequest(t, s, http.MethodPost, "/api/v1/strategies", []byte(validStrategyDoc), "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status: got %d, want 401", rec.Code)
		}
	})

	t.Run("wrong code", func(t *testing.T) {
		s := NewServer("127.0.0.1:0", newTestDeps())
		rec := doRequest(t, s, http.MethodPost, "/api/v1/strategies", []byte(validStrategyDoc), "000000")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status: got %d, want 401", rec.Code)
		}
	})

	t.Run("no secret configured", func(t *testing.T) {
		deps := newTestDeps()
		deps.TOTPSecret = ""
		s := NewServer("127.0.0.1:0", deps)
		rec := doRequest(t, s, http.MethodPost, "/api/v1/strategies", []byte(validStrategyDoc), "")
		if rec.Code != http.StatusForbidden {
			t.Errorf("status: got %d, want 403", rec.Code)
		}
	})

	t.Run("reads stay open", func(t *testing.T) {
		deps := newTestDeps()
		deps.TOTPSecret = ""
		s := NewServer("127.0.0.1:0", deps)
		rec := doRequest(t, s, http.MethodGet, "/api/v1/strategies", nil, "")
		if rec.Code != http.StatusOK {
			t.Errorf("status: got %d, want 200", rec.Code)
		}
	})
}

func TestCORSPreflight(t *testing.T) {
	s := NewServer("127.0.0.1:0", newTestDeps())
	rec := doRequest(t, s, http.MethodOptions, "/api/v1/strategies", nil, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin: got %q, want *", got)
	}
}

package exchange

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"trade_engine/internal/models"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Credentials{APIKey: "key", APISecret: "secret", Passphrase: "pass"}, srv.URL)
	c.pollEvery = time.Millisecond
	c.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return c
}

func TestSubmitAndPoll(t *testing.T) {
	var polls int32
	var c *Client
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v5/trade/order", func(w http.ResponseWriter, r *http.Request) {
		ts := r.Header.Get("OK-ACCESS-TIMESTAMP")
		var body []byte
		if r.Method == http.MethodPost {
			body, _ = io.ReadAll(r.Body)
		}
		if got, want := r.Header.Get("OK-ACCESS-SIGN"), c.sign(ts, r.Method, r.URL.RequestURI(), string(body)); got != want {
			http.Error(w, "bad sign", http.StatusUnauthorized)
			return
		}
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"42","sCode":"0"}]}`))
			return
		}
		if atomic.AddInt32(&polls, 1) < 3 {
			_, _ = w.Write([]byte(`{"code":"0","data":[{"ordId":"42","state":"live"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":"0","data":[{"ordId":"42","state":"filled","accFillSz":"0.5","avgPx":"100.1","fee":"-0.05"}]}`))
	})
	c = newTestClient(t, mux)

	fill, err := c.SubmitAndPoll(context.Background(), "BTC-USDT", "buy", 0.5)
	if err != nil {
		t.Fatalf("SubmitAndPoll: %v", err)
	}
	if fill.State != OrderFilled || fill.Filled != 0.5 || fill.AvgPrice != 100.1 || fill.Fee != 0.05 {
		t.Fatalf("fill = %+v", fill)
	}
	if polls != 3 {
		t.Fatalf("polls = %d, want 3", polls)
	}
}

func TestPlaceMarketRejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"1","msg":"All operations failed","data":[{"ordId":"","sCode":"51008","sMsg":"insufficient balance"}]}`))
	}))
	if _, err := c.PlaceMarket(context.Background(), "BTC-USDT", "buy", 1); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBalance(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ccy") != "USDT" {
			t.Errorf("ccy = %q", r.URL.Query().Get("ccy"))
		}
		_, _ = w.Write([]byte(`{"code":"0","data":[{"details":[{"ccy":"USDT","availBal":"1234.5"}]}]}`))
	}))
	bal, err := c.Balance(context.Background(), "usdt")
	if err != nil || bal != 1234.5 {
		t.Fatalf("balance = %v, %v", bal, err)
	}
}

func TestUnconfiguredClient(t *testing.T) {
	c := NewClient(Credentials{}, "")
	if _, err := c.Balance(context.Background(), "USDT"); err != ErrNotConfigured {
		t.Fatalf("err = %v", err)
	}
}

func TestOrderConsumerSkipsOtherVenues(t *testing.T) {
	c := NewClient(Credentials{}, "")
	oc := NewOrderConsumer(c)
	err := oc.Deliver(context.Background(), models.Signal{Exchange: "binance", Action: models.ActionBuy, SuggestedQuantity: 1})
	if err != nil {
		t.Fatalf("binance signal should be skipped: %v", err)
	}
}

func TestOrderConsumerRoundsAndProtects(t *testing.T) {
	var (
		placed    string
		algoBody  string
		cancelled int32
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v5/public/instruments", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"0","data":[{"instId":"BTC-USDT","state":"live","lotSz":"0.001","minSz":"0.001","tickSz":"0.1"}]}`))
	})
	mux.HandleFunc("/api/v5/trade/order", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			b, _ := io.ReadAll(r.Body)
			placed = string(b)
			_, _ = w.Write([]byte(`{"code":"0","data":[{"ordId":"7","sCode":"0"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":"0","data":[{"ordId":"7","state":"filled","accFillSz":"0.123","avgPx":"100","fee":"-0.01"}]}`))
	})
	mux.HandleFunc("/api/v5/trade/order-algo", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		algoBody = string(b)
		_, _ = w.Write([]byte(`{"code":"0","data":[{"algoId":"a1","sCode":"0"}]}`))
	})
	mux.HandleFunc("/api/v5/trade/cancel-algos", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&cancelled, 1)
		_, _ = w.Write([]byte(`{"code":"0","data":[]}`))
	})
	oc := NewOrderConsumer(newTestClient(t, mux))

	buy := models.Signal{ID: "s", Exchange: "okx", Symbol: "BTC-USDT", Action: models.ActionBuy,
		SuggestedQuantity: 0.12345, StopLoss: 99.04, TakeProfit: 102.06}
	if err := oc.Deliver(context.Background(), buy); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(placed, `"sz":"0.123"`) {
		t.Fatalf("order body = %s", placed)
	}
	for _, want := range []string{`"ordType":"oco"`, `"slTriggerPx":"99"`, `"tpTriggerPx":"102.1"`, `"sz":"0.123"`} {
		if !strings.Contains(algoBody, want) {
			t.Fatalf("algo body %s lacks %s", algoBody, want)
		}
	}

	sell := buy
	sell.Action = models.ActionSell
	if err := oc.Deliver(context.Background(), sell); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&cancelled) != 1 {
		t.Fatalf("protection should be cancelled before selling")
	}
}

func TestInstrumentRounding(t *testing.T) {
	inst := Instrument{LotSz: 0.01, TickSz: 0.5}
	if got := inst.RoundSize(1.239); got != 1.23 {
		t.Fatalf("RoundSize = %v", got)
	}
	if got := inst.RoundPrice(100.74); got != 100.5 {
		t.Fatalf("RoundPrice = %v", got)
	}
}

package indicator

import (
	"math"
	"testing"

	"trade_engine/internal/models"
)

const eps = 1e-9

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > eps {
			t.Fatalf("sma[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if SMA([]float64{1, 2}, 3) != nil {
		t.Fatalf("short input should give nil")
	}
}

func TestSMALength(t *testing.T) {
	for _, tc := range []struct{ n, p int }{{10, 1}, {10, 10}, {50, 7}} {
		if got := len(SMA(ramp(tc.n, 1, 1), tc.p)); got != tc.n-tc.p+1 {
			t.Fatalf("n=%d p=%d: len = %d", tc.n, tc.p, got)
		}
	}
}

func TestRSIMonotonic(t *testing.T) {
	up := RSI(ramp(30, 100, 1), 14)
	for i, v := range up {
		if v != 100 {
			t.Fatalf("rising rsi[%d] = %v, want 100", i, v)
		}
	}
	down := RSI(ramp(30, 100, -1), 14)
	for i, v := range down {
		if v != 0 {
			t.Fatalf("falling rsi[%d] = %v, want 0", i, v)
		}
	}
	if len(up) != 30-14 {
		t.Fatalf("len = %d", len(up))
	}
}

func TestRSIFlatReads100(t *testing.T) {
	got := RSI([]float64{5, 5, 5, 5}, 3)
	if len(got) != 1 || got[0] != 100 {
		t.Fatalf("flat rsi = %v", got)
	}
}

func TestEMASeededWithSMA(t *testing.T) {
	values := []float64{2, 4, 6, 8}
	got := EMA(values, 3)
	if len(got) != 2 || got[0] != 4 {
		t.Fatalf("ema = %v", got)
	}
	want := 0.5*8 + 0.5*4
	if math.Abs(got[1]-want) > eps {
		t.Fatalf("ema[1] = %v, want %v", got[1], want)
	}
}

func TestMACDOnConstantSeries(t *testing.T) {
	m := MACD(ramp(60, 10, 0), 12, 26, 9)
	if len(m.Line) != 60-26+1 || len(m.Signal) != len(m.Line)-8 {
		t.Fatalf("lengths line=%d signal=%d", len(m.Line), len(m.Signal))
	}
	for _, v := range m.Histogram {
		if math.Abs(v) > eps {
			t.Fatalf("histogram on constant series = %v", v)
		}
	}
}

func TestBollinger(t *testing.T) {
	b := Bollinger([]float64{1, 2, 3}, 3, 2)
	sd := math.Sqrt(2.0 / 3.0)
	if math.Abs(b.Middle[0]-2) > eps || math.Abs(b.Upper[0]-(2+2*sd)) > eps || math.Abs(b.Lower[0]-(2-2*sd)) > eps {
		t.Fatalf("bands = %+v", b)
	}
}

func TestROC(t *testing.T) {
	got := ROC([]float64{100, 100, 100, 100, 105, 110}, 4)
	if len(got) != 2 || math.Abs(got[0]-0.05) > eps || math.Abs(got[1]-0.10) > eps {
		t.Fatalf("roc = %v", got)
	}
}

func TestComputeInsufficientData(t *testing.T) {
	_, err := Compute(RSIName, ramp(10, 1, 1), map[string]float64{ParamPeriod: 14})
	if !models.IsInsufficientData(err) {
		t.Fatalf("want InsufficientDataError, got %v", err)
	}
	if _, err := Compute("vwap", ramp(10, 1, 1), nil); !models.IsConfiguration(err) {
		t.Fatalf("want ConfigurationError, got %v", err)
	}
}

func TestComputeAlignment(t *testing.T) {
	closes := ramp(40, 50, 0.5)
	for _, name := range []string{SMAName, EMAName, RSIName, MACDName, MACDSignalName, MACDHistogramName,
		BollingerUpperName, BollingerMiddleName, BollingerLowerName, StdDevName, ROCName} {
		s, err := Compute(name, closes, nil)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if s.Offset+s.Len() != len(closes) {
			t.Fatalf("%s: offset %d + len %d != %d", name, s.Offset, s.Len(), len(closes))
		}
		if math.IsNaN(s.At(len(closes) - 1)) || !math.IsNaN(s.At(s.Offset-1)) {
			t.Fatalf("%s: misaligned", name)
		}
	}
}

func TestComputeDeterministic(t *testing.T) {
	closes := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7, 9, 3, 2, 3, 8, 4}
	a, _ := Compute(RSIName, closes, map[string]float64{ParamPeriod: 5})
	b, _ := Compute(RSIName, closes, map[string]float64{ParamPeriod: 5})
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			t.Fatalf("rsi[%d] differs: %v vs %v", i, a.Values[i], b.Values[i])
		}
	}
}

func TestRollingMatchesBatch(t *testing.T) {
	closes := []float64{44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.1, 45.9, 46.5, 46.2, 46.6, 46.9, 46.3}
	rsi := RSI(closes, 5)
	sma := SMA(closes, 5)

	rr := NewRollingRSI(5)
	rs := NewRollingSMA(5)
	for i, v := range closes {
		rr.Push(v)
		rs.Push(v)
		if i < 5 {
			if rr.Ready() {
				t.Fatalf("rsi ready too early at %d", i)
			}
			continue
		}
		if rr.Value() != rsi[i-5] {
			t.Fatalf("rolling rsi at %d = %v, batch %v", i, rr.Value(), rsi[i-5])
		}
		if math.Abs(rs.Value()-sma[i-4]) > eps {
			t.Fatalf("rolling sma at %d = %v, batch %v", i, rs.Value(), sma[i-4])
		}
	}
}

func TestTrackerMatchesCompute(t *testing.T) {
	closes := []float64{44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.1, 45.9, 46.5, 46.2, 46.6, 46.9, 46.3}
	for _, name := range []string{SMAName, RSIName} {
		params := map[string]float64{ParamPeriod: 4}
		tr, err := NewTracker(name, params)
		if err != nil {
			t.Fatal(err)
		}
		for n := 1; n <= len(closes); n++ {
			tr.Push(closes[n-1])
			got := tr.Series(n)
			want, err := Compute(name, closes[:n], params)
			if err != nil {
				if got.Len() != 0 {
					t.Fatalf("%s: tracker has values before lookback at %d", name, n)
				}
				continue
			}
			for back := 0; back < 2 && back < want.Len(); back++ {
				i := n - 1 - back
				if math.Abs(got.At(i)-want.At(i)) > eps {
					t.Fatalf("%s at %d: tracker %v, batch %v", name, i, got.At(i), want.At(i))
				}
			}
		}
	}
}

func TestTrackerRejectsWindowedIndicator(t *testing.T) {
	if _, err := NewTracker(MACDName, nil); err == nil {
		t.Fatal("macd has no rolling form")
	}
	if Incremental(BollingerUpperName) || !Incremental(SMAName) || !Incremental(RSIName) {
		t.Fatal("incremental set is sma and rsi")
	}
}

func TestRollingSMAStaysExactOverLongRuns(t *testing.T) {
	r := NewRollingSMA(3)
	for i := 0; i < 100000; i++ {
		r.Push(0.1 * float64(i%7))
	}
	// last three pushes: i = 99997, 99998, 99999 -> i%7 = 2, 3, 4
	if math.Abs(r.Value()-0.3) > 1e-12 {
		t.Fatalf("sma = %.15f, want 0.3", r.Value())
	}
}

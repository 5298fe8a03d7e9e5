package marketdata

import (
	"context"
	"testing"
)

func TestSyntheticProvider_DefaultsBasePrice(t *testing.T) {
	p := NewSyntheticProvider(0)
	if p.basePrice != 100 {
		t.Errorf("expected default base price 100, got %f", p.basePrice)
	}
}

func TestSyntheticProvider_Klines_ReturnsRequestedLength(t *testing.T) {
	p := NewSyntheticProvider(50)
	klines, err := p.Klines(context.Background(), "BTCUSDT", "1h", 20)
	if err != nil {
		t.Fatalf("Klines: %v", err)
	}
	if len(klines) != 20 {
		t.Fatalf("expected 20 klines, got %d", len(klines))
	}
	for i, k := range klines {
		if k.High < k.Open && k.High < k.Close {
			t.Errorf("kline %d: high %f below both open %f and close %f", i, k.High, k.Open, k.Close)
		}
		if k.Low > k.Open && k.Low > k.Close {
			t.Errorf("kline %d: low %f above both open %f and close %f", i, k.Low, k.Open, k.Close)
		}
		if k.Volume <= 0 {
			t.Errorf("kline %d: expected positive volume, got %f", i, k.Volume)
		}
	}
}

func TestSyntheticProvider_Klines_DefaultsLimit(t *testing.T) {
	p := NewSyntheticProvider(100)
	klines, err := p.Klines(context.Background(), "ETHUSDT", "5m", 0)
	if err != nil {
		t.Fatalf("Klines: %v", err)
	}
	if len(klines) != 100 {
		t.Errorf("expected default limit of 100, got %d", len(klines))
	}
}

func TestSyntheticProvider_SameBucketIsDeterministic(t *testing.T) {
	p := NewSyntheticProvider(100)
	a, err := p.Klines(context.Background(), "BTCUSDT", "1h", 5)
	if err != nil {
		t.Fatalf("Klines (a): %v", err)
	}
	b, err := p.Klines(context.Background(), "BTCUSDT", "1h", 5)
	if err != nil {
		t.Fatalf("Klines (b): %v", err)
	}
	for i := range a {
		if a[i].Close != b[i].Close {
			t.Errorf("candle %d: expected deterministic close within the same bucket, got %f vs %f", i, a[i].Close, b[i].Close)
		}
	}
}

func TestTimeframeDuration_KnownAndDefault(t *testing.T) {
	cases := map[string]bool{"1m": true, "5m": true, "15m": true, "1h": true, "4h": true, "1d": true, "unknown": true}
	for tf := range cases {
		if d := timeframeDuration(tf); d <= 0 {
			t.Errorf("timeframe %q: expected positive duration, got %v", tf, d)
		}
	}
}

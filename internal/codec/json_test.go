package codec

import (
	"math"
	"testing"
)

func TestMarshalRejectsNaN(t *testing.T) {
	if _, err := Marshal(map[string]any{"v": math.NaN()}); err == nil {
		t.Fatal("expected error for NaN value")
	}
	if _, err := Marshal([]float64{math.Inf(1)}); err == nil {
		t.Fatal("expected error for +Inf value")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	b, err := Marshal(map[string]string{"status": "success"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out map[string]string
	if err := Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["status"] != "success" {
		t.Fatalf("got %q", out["status"])
	}
}

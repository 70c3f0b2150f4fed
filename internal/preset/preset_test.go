package preset

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Preset
		wantErr bool
	}{
		{"adaptive", "adaptive", Adaptive, false},
		{"mixed case", "Warm", Warm, false},
		{"padded", "  punchy ", Punchy, false},
		{"unknown", "loud", None, true},
		{"empty", "", None, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownPreset) {
					t.Fatalf("Parse(%q) error = %v, want ErrUnknownPreset", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPresetRoundTripText(t *testing.T) {
	for _, p := range All {
		text, err := p.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", p, err)
		}
		var back Preset
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if back != p {
			t.Errorf("round trip of %v gave %v", p, back)
		}
	}
}

func TestPriorCoversAllPresets(t *testing.T) {
	sum := 0.0
	for _, p := range All {
		v, ok := Prior[p]
		if !ok {
			t.Fatalf("prior missing %v", p)
		}
		sum += v
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("prior sums to %f, want 1", sum)
	}
}

func TestValid(t *testing.T) {
	if None.Valid() {
		t.Error("None should not be valid")
	}
	if Preset(42).Valid() {
		t.Error("out of range preset should not be valid")
	}
	for _, p := range All {
		if !p.Valid() {
			t.Errorf("%v should be valid", p)
		}
	}
}

package scheduler

import "testing"

func TestParseAvgRTT(t *testing.T) {
	cases := []struct {
		in      string
		wantMs  float64
		wantErr bool
	}{
		{"2s350ms", 2350, false},
		{"350ms", 350, false},
		{"2s", 2000, false},
		{"0ms", 0, false},
		{"", 0, true},
		{"garbage", 0, true},
	}
	for _, c := range cases {
		got, err := parseAvgRTT(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseAvgRTT(%q) expected error, got %v", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseAvgRTT(%q) unexpected error: %v", c.in, err)
			continue
		}
		if got != c.wantMs {
			t.Errorf("parseAvgRTT(%q) = %v, want %v", c.in, got, c.wantMs)
		}
	}
}

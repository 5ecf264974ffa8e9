package cli

import "testing"

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		secs float64
		want string
	}{
		{0, "0ms"},
		{0.001, "1ms"},
		{0.1, "100ms"},
		{0.999, "999ms"},
		{1, "1.0s"},
		{1.5, "1.5s"},
		{5, "5.0s"},
		{59, "59.0s"},
		{60, "1m0.0s"},
		{61, "1m1.0s"},
		{90, "1m30.0s"},
		{120, "2m0.0s"},
		{125.5, "2m5.5s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := FormatDuration(tt.secs)
			if got != tt.want {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.secs, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1, "1 B"},
		{100, "100 B"},
		{1023, "1023 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{10240, "10.00 KB"},
		{1048576, "1.00 MB"},
		{1572864, "1.50 MB"},
		{10485760, "10.00 MB"},
		{1073741824, "1.00 GB"},
		{1610612736, "1.50 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := FormatBytes(tt.bytes)
			if got != tt.want {
				t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

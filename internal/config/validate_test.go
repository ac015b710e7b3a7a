package config

import "testing"

func TestValidateClampsFrameRate(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero", 0, 1},
		{"negative", -5, 1},
		{"too high", 144, 60},
		{"valid", 30, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.FrameRate = tt.in
			cfg.Validate()
			if cfg.FrameRate != tt.want {
				t.Fatalf("FrameRate = %d, want %d", cfg.FrameRate, tt.want)
			}
		})
	}
}

func TestValidateUnknownContainerFallsBack(t *testing.T) {
	cfg := Default()
	cfg.Container = "mov"
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected validation error for unknown container")
	}
	if cfg.Container != "mp4" {
		t.Fatalf("Container = %q, want mp4", cfg.Container)
	}
}

func TestValidateNormalizesContainerCase(t *testing.T) {
	cfg := Default()
	cfg.Container = "MKV"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if cfg.Container != "mkv" {
		t.Fatalf("Container = %q, want mkv", cfg.Container)
	}
}

func TestValidateDefaultsAreValid(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("default config should validate cleanly, got: %v", errs)
	}
}

package tileflat

import "testing"

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"defaults", func(*Options) {}, false},
		{"ppi too low", func(o *Options) { o.PPI = 10 }, true},
		{"ppi too high", func(o *Options) { o.PPI = 1001 }, true},
		{"quality", func(o *Options) { o.Quality = 1.5 }, true},
		{"jpg alias", func(o *Options) { o.Format = "JPG" }, false},
		{"unknown format", func(o *Options) { o.Format = "gif" }, true},
		{"unknown snap", func(o *Options) { o.PaddingSnap = "quarter" }, true},
		{"negative chunk", func(o *Options) { o.Chunk.PixelSize = -1 }, true},
		{"inverted thresholds", func(o *Options) { o.Thresholds.PreferredMin = 5000 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			err := o.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOptionsValidateFillsDefaults(t *testing.T) {
	o := Options{PPI: 100, Format: "jpg"}
	if err := o.Validate(); err != nil {
		t.Fatal(err)
	}
	if o.Format != FormatJPEG {
		t.Errorf("Format = %q, want %q", o.Format, FormatJPEG)
	}
	if o.Thresholds != DefaultChunkThresholds() {
		t.Errorf("Thresholds = %+v, want defaults", o.Thresholds)
	}
	if o.Name != "flattened" {
		t.Errorf("Name = %q, want flattened", o.Name)
	}
}

func TestOptionsResolution(t *testing.T) {
	o := DefaultOptions()
	if got := o.Resolution(100); got != 1 {
		t.Errorf("Resolution(100) = %v, want 1", got)
	}
	o.PPI = 200
	if got := o.Resolution(50); got != 4 {
		t.Errorf("Resolution(50) = %v, want 4", got)
	}
	if got := o.Resolution(0); got != 1 {
		t.Errorf("Resolution(0) = %v, want 1", got)
	}
}

package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "FILINGDRIFT_API_KEY", "DATABASE_PATH", "MAX_QUEUE_SIZE", "JOB_TTL", "STEM_TOKENS"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.Port != "8090" || cfg.DatabasePath != "filingdrift.db" || cfg.MaxQueueSize != 100 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.JobTTL != time.Hour || cfg.StemTokens || !cfg.PDFFallbackPdftotext {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate to require an API key")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("FILINGDRIFT_API_KEY", "k")
	t.Setenv("MAX_QUEUE_SIZE", "-3")
	t.Setenv("JOB_TTL", "15m")
	t.Setenv("STEM_TOKENS", "true")
	t.Setenv("PDF_FALLBACK_PDFTOTEXT", "false")
	t.Setenv("MAX_UPLOAD_BYTES", "not-a-number")

	cfg := Load()
	if cfg.MaxQueueSize != 100 {
		t.Errorf("non-positive queue size should fall back, got %d", cfg.MaxQueueSize)
	}
	if cfg.JobTTL != 15*time.Minute || !cfg.StemTokens || cfg.PDFFallbackPdftotext {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.MaxUploadBytes != 104857600 {
		t.Errorf("bad MAX_UPLOAD_BYTES should fall back, got %d", cfg.MaxUploadBytes)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

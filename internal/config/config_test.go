package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"healthbot/internal/domain"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MaxConcurrentMessages(t *testing.T) {
	cfg := Defaults()
	cfg.General.MaxConcurrentMessages = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxConcurrentMessages=0")
	}

	cfg.General.MaxConcurrentMessages = 100
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxConcurrentMessages=100 should be valid: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_InvalidTimezone(t *testing.T) {
	cfg := Defaults()
	cfg.General.Timezone = "Mars/Olympus_Mons"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestValidate_ChunkOverlap(t *testing.T) {
	cfg := Defaults()
	cfg.Knowledge.ChunkOverlap = cfg.Knowledge.ChunkSize
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error when overlap >= chunk size")
	}
}

func TestValidate_ReminderStore(t *testing.T) {
	for _, store := range []string{"memory", "sqlite"} {
		cfg := Defaults()
		cfg.Reminders.Store = store
		if err := Validate(cfg); err != nil {
			t.Fatalf("store %q should be valid: %v", store, err)
		}
	}

	cfg := Defaults()
	cfg.Reminders.Store = "redis"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown store")
	}
}

func TestValidate_EmptyCandidateLanguages(t *testing.T) {
	cfg := Defaults()
	cfg.Speech.CandidateLanguages = nil
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty candidate languages")
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := Defaults()
	original.Generator.Model = "gemini-test"

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Generator.Model != "gemini-test" {
		t.Fatalf("expected 'gemini-test', got %q", loaded.Generator.Model)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("HB_TEST_MODEL", "from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{"generator":{"model":"${HB_TEST_MODEL}","apiBase":"${HB_UNSET_BASE:-http://llm.local/v1}"}}`), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Generator.Model != "from-env" {
		t.Fatalf("expected env substitution, got %q", cfg.Generator.Model)
	}
	if cfg.Generator.APIBase != "http://llm.local/v1" {
		t.Fatalf("expected default substitution, got %q", cfg.Generator.APIBase)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Knowledge.Collection != "health_kb" {
		t.Fatalf("expected default collection, got %q", cfg.Knowledge.Collection)
	}
}

// --- Environment ---

func TestExpandEnvVars_KeepsUnknown(t *testing.T) {
	if got := ExpandEnvVars("${HB_DEFINITELY_UNSET}"); got != "${HB_DEFINITELY_UNSET}" {
		t.Fatalf("unset variable without default should be kept, got %q", got)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("META_ACCESS_TOKEN", "tok")
	t.Setenv("META_PHONE_NUMBER_ID", "12345")
	t.Setenv("VERIFY_TOKEN", "verify")
	t.Setenv("DIALOGFLOW_PROJECT_ID", "health-agent")
	t.Setenv("GEMINI_API_KEY", "gem")
	t.Setenv("SERVER_DOMAIN", "bot.example.org/")
	t.Setenv("PORT", "8088")

	cfg := Defaults()
	ApplyEnv(cfg)

	if cfg.Channels.WhatsApp.AccessToken != "tok" || cfg.Channels.WhatsApp.PhoneNumberID != "12345" {
		t.Fatalf("whatsapp env not applied: %+v", cfg.Channels.WhatsApp)
	}
	if cfg.Server.PublicBaseURL != "https://bot.example.org" {
		t.Fatalf("unexpected public base URL %q", cfg.Server.PublicBaseURL)
	}
	if cfg.Server.Port != 8088 {
		t.Fatalf("expected port 8088, got %d", cfg.Server.Port)
	}
	if missing := cfg.Missing(); len(missing) != 0 {
		t.Fatalf("expected nothing missing, got %v", missing)
	}
}

func TestMissing_ReportsConfigMissing(t *testing.T) {
	cfg := Defaults()
	if len(cfg.Missing()) == 0 {
		t.Fatal("defaults should lack credentials")
	}
	if err := cfg.MissingError(); !errors.Is(err, domain.ErrConfigMissing) {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
}

func TestFlexStringList_Mixed(t *testing.T) {
	var f FlexStringList
	if err := f.UnmarshalJSON([]byte(`["123", 456]`)); err != nil {
		t.Fatal(err)
	}
	if len(f) != 2 || f[0] != "123" || f[1] != "456" {
		t.Fatalf("unexpected list %v", f)
	}
}

func TestLocation_Fallback(t *testing.T) {
	g := GeneralConfig{Timezone: ""}
	if g.Location().String() != "UTC" {
		t.Fatalf("expected UTC, got %s", g.Location())
	}
	g.Timezone = "Asia/Kolkata"
	if g.Location().String() != "Asia/Kolkata" {
		t.Fatalf("expected Asia/Kolkata, got %s", g.Location())
	}
}

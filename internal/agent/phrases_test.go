package agent

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPhrases_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phrases.yaml")
	data := "thinking: \"Un momento...\"\ntime_layout: \"2006-01-02 15:04\"\nno_reminders: \"   \"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPhrases(path)
	if err != nil {
		t.Fatal(err)
	}
	def := DefaultPhrases()
	if p.Thinking != "Un momento..." {
		t.Errorf("thinking: got %q", p.Thinking)
	}
	if p.TimeLayout != "2006-01-02 15:04" {
		t.Errorf("time layout: got %q", p.TimeLayout)
	}
	if p.NoReminders != def.NoReminders {
		t.Errorf("blank value must keep default, got %q", p.NoReminders)
	}
	if p.SettingReminder != def.SettingReminder {
		t.Errorf("missing key must keep default, got %q", p.SettingReminder)
	}
}

func TestLoadPhrases_Errors(t *testing.T) {
	if p, err := LoadPhrases(""); err != nil || p != DefaultPhrases() {
		t.Fatalf("empty path: %+v %v", p, err)
	}
	if _, err := LoadPhrases(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("thinking: [unclosed"), 0o644)
	if _, err := LoadPhrases(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFill(t *testing.T) {
	got := Fill("{index}. {task} at {time}", "index", "2", "task", "walk", "time", "7:30 AM")
	if got != "2. walk at 7:30 AM" {
		t.Fatalf("got %q", got)
	}
	if Fill("no placeholders") != "no placeholders" {
		t.Fatal("template without pairs must be unchanged")
	}
	if Fill("{task}", "other", "x") != "{task}" {
		t.Fatal("unknown placeholders must be left alone")
	}
}

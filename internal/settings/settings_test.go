package settings

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const bixlerSettings = `<settings>
  <dl_settings>
    <dl_settings name="System">
      <dl_setting var="telemetry_mode_Ap" min="0" max="5" step="1" shortname="tele_AP"/>
      <dl_setting var="autopilot.launch" min="0" max="1" step="1"/>
    </dl_settings>
    <dl_settings name="Mode">
      <dl_setting var="autopilot_mode_auto2" min="0" max="19" step="1" shortname="auto2"/>
      <dl_setting var="kill_throttle" min="0" max="1" step="1" shortname="kill"/>
    </dl_settings>
  </dl_settings>
</settings>
`

type names map[int]string

func (n names) Name(acID int) (string, bool) {
	s, ok := n[acID]
	return s, ok
}

func writeSettings(t *testing.T, home, name, content string) {
	t.Helper()
	dir := filepath.Join(home, "var", "aircrafts", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "settings.xml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParse(t *testing.T) {
	table, err := Parse(strings.NewReader(bixlerSettings))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(table.Settings) != 4 {
		t.Fatalf("expected 4 settings, got %d", len(table.Settings))
	}

	tests := []struct {
		name    string
		want    int
		present bool
	}{
		{"tele_AP", 0, true},
		{"autopilot.launch", 1, true},
		{"auto2", 2, true},
		{"kill", 3, true},
		{"autopilot_mode_auto2", 0, false}, // addressed by shortname only
		{"missing", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := table.Lookup(tt.name)
			if ok != tt.present {
				t.Fatalf("Lookup(%q) present = %v, want %v", tt.name, ok, tt.present)
			}
			if ok && got != tt.want {
				t.Errorf("Lookup(%q) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, doc := range []string{"", "<settings><dl_setting var=\"x\">"} {
		if _, err := Parse(strings.NewReader(doc)); err == nil {
			t.Errorf("Parse(%q): expected error", doc)
		}
	}
}

func TestResolverIndex(t *testing.T) {
	home := t.TempDir()
	writeSettings(t, home, "Bixler", bixlerSettings)
	r := NewResolver(home, names{3: "Bixler", 4: "Microjet"})

	idx, err := r.Index(3, "auto2")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if idx != 2 {
		t.Errorf("auto2 index = %d, want 2", idx)
	}

	if _, err := r.Index(3, "nav_radius"); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("expected ErrSettingNotFound, got %v", err)
	}
	if _, err := r.Index(99, "auto2"); !errors.Is(err, ErrUnknownVehicle) {
		t.Errorf("expected ErrUnknownVehicle, got %v", err)
	}
	if _, err := r.Index(4, "auto2"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected missing settings file error, got %v", err)
	}
}

func TestResolverCaches(t *testing.T) {
	home := t.TempDir()
	writeSettings(t, home, "Bixler", bixlerSettings)
	r := NewResolver(home, names{3: "Bixler"})

	if _, err := r.Index(3, "auto2"); err != nil {
		t.Fatalf("Index: %v", err)
	}

	// Rewrite with auto2 first; the cached table is still served.
	writeSettings(t, home, "Bixler", `<settings><dl_setting var="m" shortname="auto2"/></settings>`)
	if idx, _ := r.Index(3, "auto2"); idx != 2 {
		t.Errorf("cached index = %d, want 2", idx)
	}

	r.Purge()
	if idx, _ := r.Index(3, "auto2"); idx != 0 {
		t.Errorf("reloaded index = %d, want 0", idx)
	}
}

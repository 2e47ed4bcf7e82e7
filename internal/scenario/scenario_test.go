package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefinitionValidate(t *testing.T) {
	cases := []struct {
		name    string
		def     Definition
		wantErr string
	}{
		{"empty name", Definition{Type: TypeNetworkOutage}, "name is required"},
		{"path in name", Definition{Name: "../x", Type: TypeNetworkOutage}, "plain file name"},
		{"unknown type", Definition{Name: "x", Type: "meteor_strike"}, "unknown type"},
		{"bad mode", Definition{Name: "x", Type: TypeNetworkOutage, Mode: "glacial"}, "no mode"},
		{"severity elsewhere", Definition{Name: "x", Type: TypeHighLoad, Severity: SeverityMild}, "severity only applies"},
		{"bad severity", Definition{Name: "x", Type: TypeEnvironmental, Severity: "apocalyptic"}, "unknown severity"},
		{"port zero", Definition{Name: "x", Type: TypeHighLoad, Ports: []int{0}}, "out of range"},
		{"ports and range", Definition{Name: "x", Type: TypeHighLoad, Ports: []int{30000}, PortStart: 1, PortEnd: 2}, "exclusive"},
		{"inverted range", Definition{Name: "x", Type: TypeHighLoad, PortStart: 200, PortEnd: 100}, "bad port range"},
		{"negative duration", Definition{Name: "x", Type: TypeHighLoad, DurationMS: -1}, "negative duration"},
		{"growth below one", Definition{Name: "x", Type: TypeCascadingFailure, GrowthFactor: 0.5}, "growth factor"},
		{"share above one", Definition{Name: "x", Type: TypeCascadingFailure, MaxShare: 1.5}, "max share"},
	}
	for _, tc := range cases {
		err := tc.def.Validate()
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("%s: error %q does not mention %q", tc.name, err, tc.wantErr)
		}
	}
}

func TestDefinitionValidateFillsDefaults(t *testing.T) {
	d := Definition{Name: "x", Type: TypeNetworkOutage}
	if err := d.Validate(); err != nil {
		t.Fatal(err)
	}
	if d.Mode != "immediate" {
		t.Errorf("default mode = %q, want immediate", d.Mode)
	}

	e := Definition{Name: "x", Type: TypeEnvironmental}
	if err := e.Validate(); err != nil {
		t.Fatal(err)
	}
	if e.Mode != "weather" || e.Severity != SeverityModerate {
		t.Errorf("environmental defaults = %q/%q", e.Mode, e.Severity)
	}

	c := Definition{Name: "x", Type: TypeCascadingFailure}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.GrowthFactor != 2 || c.MaxShare != 0.5 {
		t.Errorf("cascade defaults = %v/%v", c.GrowthFactor, c.MaxShare)
	}

	if d.Duration() != 5*time.Minute {
		t.Errorf("default duration = %v", d.Duration())
	}
	d.DurationMS = 1500
	if d.Duration() != 1500*time.Millisecond {
		t.Errorf("duration = %v, want 1.5s", d.Duration())
	}
}

func TestDefaultDefinitionsValid(t *testing.T) {
	defs := DefaultDefinitions()
	if len(defs) != 6 {
		t.Fatalf("got %d defaults, want 6", len(defs))
	}
	seen := map[string]bool{}
	for i := range defs {
		if err := defs[i].Validate(); err != nil {
			t.Errorf("%s: %v", defs[i].Name, err)
		}
		if seen[defs[i].Type] {
			t.Errorf("duplicate default for type %s", defs[i].Type)
		}
		seen[defs[i].Type] = true
	}
}

func TestStoreSaveGetDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	def := Definition{Name: "lab-outage", Type: TypeNetworkOutage, Ports: []int{30001, 30002}}
	if err := s.Save(&def); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "lab-outage.json")); err != nil {
		t.Fatalf("scenario file not written: %v", err)
	}

	got, ok := s.Get("lab-outage")
	if !ok {
		t.Fatal("Get missed a saved definition")
	}
	if got.Mode != "immediate" || got.CreatedAt.IsZero() {
		t.Errorf("stored definition = %+v", got)
	}
	got.Ports[0] = 9
	if again, _ := s.Get("lab-outage"); again.Ports[0] != 30001 {
		t.Error("Get returned a shared Ports slice")
	}

	// A fresh store on the same directory sees the definition.
	s2, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s2.Get("lab-outage"); !ok {
		t.Error("reloaded store lost the definition")
	}

	if err := s.Delete("lab-outage"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get("lab-outage"); ok {
		t.Error("definition survived Delete")
	}
	if _, err := os.Stat(filepath.Join(dir, "lab-outage.json")); !os.IsNotExist(err) {
		t.Error("scenario file survived Delete")
	}
	if err := s.Delete("lab-outage"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("second Delete = %v, want ErrNotExist", err)
	}
}

func TestStoreSavePreservesCreatedAt(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	def := Definition{Name: "x", Type: TypeHighLoad}
	if err := s.Save(&def); err != nil {
		t.Fatal(err)
	}
	first, _ := s.Get("x")

	update := Definition{Name: "x", Type: TypeHighLoad, Mode: "bursty"}
	if err := s.Save(&update); err != nil {
		t.Fatal(err)
	}
	second, _ := s.Get("x")
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.Mode != "bursty" {
		t.Errorf("update not applied: %+v", second)
	}
}

func TestStoreListSorted(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := s.Save(&Definition{Name: name, Type: TypeHighLoad}); err != nil {
			t.Fatal(err)
		}
	}
	got := s.List()
	if len(got) != 3 || got[0].Name != "alpha" || got[1].Name != "mid" || got[2].Name != "zeta" {
		t.Fatalf("List = %v", got)
	}
}

func TestStoreSeedDefaults(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if n := s.SeedDefaults(); n != 6 {
		t.Errorf("first seed added %d, want 6", n)
	}
	if n := s.SeedDefaults(); n != 0 {
		t.Errorf("second seed added %d, want 0", n)
	}
	if _, ok := s.Get("rain-fade"); !ok {
		t.Error("seeded definition missing")
	}
}

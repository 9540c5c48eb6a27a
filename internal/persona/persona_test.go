package persona

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCatalog_Builtin(t *testing.T) {
	cat, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	all := cat.All()
	if len(all) < 8 {
		t.Fatalf("built-in catalog has %d personas, want at least 8", len(all))
	}

	p, ok, err := cat.Get(context.Background(), "newton")
	if err != nil || !ok {
		t.Fatalf("Get(newton) = %v, %v", ok, err)
	}
	if p.Name != "Isaac Newton" || p.Scores.Truth != 100 {
		t.Errorf("newton = %+v", p)
	}
}

func TestFindCandidates_FiltersByCategory(t *testing.T) {
	cat, err := ParseCatalog([]byte(`
personas:
  - {id: a, name: A, category: natural_science, domain: physics}
  - {id: b, name: B, category: humanities, domain: art}
  - {id: c, name: C, category: natural_science, domain: biology}
`))
	if err != nil {
		t.Fatalf("ParseCatalog failed: %v", err)
	}
	ctx := context.Background()

	got, err := cat.FindCandidates(ctx, "natural_science")
	if err != nil {
		t.Fatalf("FindCandidates failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("natural_science = %+v, want a, c", got)
	}

	got, _ = cat.FindCandidates(ctx, "art")
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("domain match = %+v, want b", got)
	}

	got, _ = cat.FindCandidates(ctx, "interdisciplinary")
	if len(got) != 3 {
		t.Errorf("interdisciplinary = %d personas, want all 3", len(got))
	}

	got, _ = cat.FindCandidates(ctx, "law")
	if len(got) != 0 {
		t.Errorf("law = %+v, want none", got)
	}
}

func TestFindCandidates_CancelledContext(t *testing.T) {
	cat, _ := LoadCatalog("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cat.FindCandidates(ctx, ""); err == nil {
		t.Error("FindCandidates with cancelled ctx expected error")
	}
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid yaml", "personas: [\n"},
		{"missing name", "personas:\n  - {id: a}"},
		{"duplicate id", "personas:\n  - {id: a, name: A}\n  - {id: a, name: B}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCatalog([]byte(tt.data)); err == nil {
				t.Error("ParseCatalog() expected error")
			}
		})
	}
}

func TestParseCatalog_ClampsScores(t *testing.T) {
	cat, err := ParseCatalog([]byte("personas:\n  - {id: a, name: A, scores: {truth: 150, beauty: -3}}"))
	if err != nil {
		t.Fatalf("ParseCatalog failed: %v", err)
	}
	p := cat.All()[0]
	if p.Scores.Truth != 100 || p.Scores.Beauty != 0 {
		t.Errorf("Scores = %+v, want clamped", p.Scores)
	}
}

func TestLoadCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.yaml")
	if err := os.WriteFile(path, []byte("personas:\n  - {id: z, name: Zed, category: humanities}"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	if len(cat.All()) != 1 {
		t.Errorf("All() = %d, want 1", len(cat.All()))
	}
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadCatalog(missing) expected error")
	}
}

func TestScripted_CyclesTemplates(t *testing.T) {
	s := &Scripted{Persona: Persona{Domain: "physics", Expertise: []string{"optics"}}}
	ctx := context.Background()

	first, err := s.ProduceText(ctx, "light")
	if err != nil {
		t.Fatalf("ProduceText failed: %v", err)
	}
	second, _ := s.ProduceText(ctx, "light")
	if first == second {
		t.Error("successive calls returned the same text")
	}
	if !strings.Contains(first, "optics") || !strings.Contains(first, "light") {
		t.Errorf("text = %q, want expertise and prompt", first)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.ProduceText(cancelled, "x"); err == nil {
		t.Error("ProduceText with cancelled ctx expected error")
	}
}

func TestScriptedVoices_OnePerPersona(t *testing.T) {
	v := ScriptedVoices()
	a1 := v.For(Persona{ID: "a"})
	a2 := v.For(Persona{ID: "a"})
	b := v.For(Persona{ID: "b"})
	if a1 != a2 {
		t.Error("same persona should get the same source")
	}
	if a1 == b {
		t.Error("different personas should get different sources")
	}
}

package provenance

import (
	"testing"
)

func mustSeries(t *testing.T, name, unit string) *Series {
	t.Helper()
	s, err := NewSeries(name, unit, []float64{0, 1, 2}, []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("Failed to create series: %v", err)
	}
	return s
}

func TestGraphRegister(t *testing.T) {
	g := NewGraph()
	s := mustSeries(t, "temperature", "degC")

	if err := g.Register(s); err != nil {
		t.Fatalf("Failed to register series: %v", err)
	}

	// Registering the same series again is a no-op
	if err := g.Register(s); err != nil {
		t.Fatalf("Failed to re-register series: %v", err)
	}

	if g.Len() != 1 {
		t.Errorf("Expected 1 series, got %d", g.Len())
	}

	info, ok := g.Lookup(s.ID)
	if !ok {
		t.Fatal("Expected series to be found")
	}
	if info.Name != "temperature" || info.Length != 3 || info.MaxTime != 2 {
		t.Errorf("Unexpected node info: %+v", info)
	}
}

func TestGraphRejectsUnknownOrigin(t *testing.T) {
	g := NewGraph()
	parent := mustSeries(t, "flow", "l/s")

	child, err := parent.Derive("derivative", nil, parent.Timestamps, parent.Values, InterpolationInfo{})
	if err != nil {
		t.Fatalf("Failed to derive: %v", err)
	}

	// Parent not registered yet
	if err := g.Register(child); err == nil {
		t.Error("Expected error for unregistered origin")
	}

	if err := g.Register(parent); err != nil {
		t.Fatalf("Failed to register parent: %v", err)
	}
	if err := g.Register(child); err != nil {
		t.Fatalf("Failed to register child: %v", err)
	}
}

func TestGraphAncestry(t *testing.T) {
	g := NewGraph()
	a := mustSeries(t, "a", "m")
	b := mustSeries(t, "b", "m")

	ab, err := DeriveFrom([]*Series{a, b}, "ab", "m", "synchronize", nil, a.Timestamps, a.Values, InterpolationInfo{})
	if err != nil {
		t.Fatalf("Failed to derive: %v", err)
	}
	d, err := ab.Derive("derivative", map[string]any{"order": 1}, ab.Timestamps, ab.Values, InterpolationInfo{})
	if err != nil {
		t.Fatalf("Failed to derive: %v", err)
	}

	for _, s := range []*Series{a, b, ab, d} {
		if err := g.Register(s); err != nil {
			t.Fatalf("Failed to register %s: %v", s.Name, err)
		}
	}

	ancestors := g.Ancestors(d.ID)
	if len(ancestors) != 3 {
		t.Fatalf("Expected 3 ancestors, got %d", len(ancestors))
	}
	if ancestors[0] != ab.ID {
		t.Errorf("Expected nearest ancestor %s, got %s", ab.ID, ancestors[0])
	}

	desc := g.Descendants(a.ID)
	if len(desc) != 2 {
		t.Errorf("Expected 2 descendants, got %d", len(desc))
	}

	if got := g.Ancestors(a.ID); len(got) != 0 {
		t.Errorf("Original series should have no ancestors, got %v", got)
	}
}

func TestGraphFind(t *testing.T) {
	g := NewGraph()
	temp := mustSeries(t, "temperature", "degC")
	press := mustSeries(t, "pressure", "bar")
	deriv, _ := temp.Derive("derivative", nil, temp.Timestamps, temp.Values, InterpolationInfo{})

	for _, s := range []*Series{temp, press, deriv} {
		if err := g.Register(s); err != nil {
			t.Fatalf("Failed to register: %v", err)
		}
	}

	if got := g.Find(map[string]string{"unit": "degC"}); len(got) != 2 {
		t.Errorf("Expected 2 degC series, got %d", len(got))
	}
	if got := g.Find(map[string]string{"unit": "degC", "operation": "derivative"}); len(got) != 1 || got[0] != deriv.ID {
		t.Errorf("Expected only the derivative, got %v", got)
	}
	if got := g.Find(map[string]string{"unit": "psi"}); got != nil {
		t.Errorf("Expected no match, got %v", got)
	}
	if got := g.Find(nil); len(got) != 3 {
		t.Errorf("Expected all 3 series, got %d", len(got))
	}
}

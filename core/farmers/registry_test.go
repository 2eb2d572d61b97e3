package farmers

import (
	"testing"

	"github.com/shareprinto/dispatcher/core/model"
)

func TestMemoryRegistry_Upsert(t *testing.T) {
	r := NewMemoryRegistry()
	if err := r.Upsert(model.Farmer{ID: "f1", Rating: 4}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := r.Upsert(model.Farmer{Rating: 4}); err == nil {
		t.Fatalf("farmer without id accepted")
	}
	f, ok := r.Get("f1")
	if !ok || f.Rating != 4 {
		t.Fatalf("get failed: %#v", f)
	}
}

func TestMemoryRegistry_Seed(t *testing.T) {
	r := NewMemoryRegistry(
		model.Farmer{ID: "f2", Rating: 3},
		model.Farmer{ID: "f1", Rating: 5},
		model.Farmer{Rating: 1}, // invalid, dropped
	)
	out := r.List()
	if len(out) != 2 || out[0].ID != "f1" || out[1].ID != "f2" {
		t.Fatalf("seed/list failed: %#v", out)
	}
}

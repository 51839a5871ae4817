package reactor

import "testing"

func TestResultsSlabSetGet(t *testing.T) {
	slab := NewResultsSlab(8)

	if got := slab.Get(3); got != 0 {
		t.Fatalf("zero value Get = %d, want 0", got)
	}

	slab.Set(3, 42)
	if got := slab.Get(3); got != 42 {
		t.Fatalf("Get after Set = %d, want 42", got)
	}

	slab.Set(3, -11) // negative errno-style result
	if got := slab.Get(3); got != -11 {
		t.Fatalf("Get after overwrite = %d, want -11", got)
	}

	// Independent cells.
	slab.Set(0, 100)
	slab.Set(7, 200)
	if slab.Get(0) != 100 || slab.Get(7) != 200 || slab.Get(3) != -11 {
		t.Fatal("cells are not independent")
	}
}

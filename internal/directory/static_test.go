package directory

import (
	"context"
	"reflect"
	"testing"
)

func TestStaticDiscoverReturnsConfiguredPeers(t *testing.T) {
	d := NewStatic([]string{"10.0.0.1:4000", "10.0.0.2:4000"})

	got, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	want := []string{"10.0.0.1:4000", "10.0.0.2:4000"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Discover() = %v, want %v", got, want)
	}
}

func TestStaticDiscoverEmptyMeansCreateNewRing(t *testing.T) {
	d := NewStatic(nil)
	got, err := d.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Discover() = %v, want empty", got)
	}
}

func TestStaticRegisterDeregisterAreNoops(t *testing.T) {
	d := NewStatic(nil)
	if err := d.Register(context.Background(), "node-a", "10.0.0.1:4000"); err != nil {
		t.Errorf("Register failed: %v", err)
	}
	if err := d.Deregister(context.Background(), "node-a"); err != nil {
		t.Errorf("Deregister failed: %v", err)
	}
}

func TestStaticListDoesNotAliasInternalSlice(t *testing.T) {
	d := NewStatic([]string{"a"})
	got, _ := d.List(context.Background())
	got[0] = "mutated"

	got2, _ := d.List(context.Background())
	if got2[0] != "a" {
		t.Errorf("List() returned an aliased slice; second call saw %q", got2[0])
	}
}

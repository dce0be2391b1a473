package registry

import (
	"fmt"
	"sync"
	"testing"
)

type testItem struct {
	ID   string
	Name string
}

func TestBaseRegister(t *testing.T) {
	registry := NewBase[testItem]()

	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "register valid item", id: "test-1", wantErr: false},
		{name: "register item with empty name", id: "", wantErr: true},
		{name: "register duplicate item", id: "test-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.Register(tt.id, testItem{ID: tt.id})
			if (err != nil) != tt.wantErr {
				t.Errorf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBaseGet(t *testing.T) {
	registry := NewBase[testItem]()
	if err := registry.Register("a", testItem{ID: "a", Name: "Item A"}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	item, ok := registry.Get("a")
	if !ok || item.Name != "Item A" {
		t.Errorf("Get(a) = %v, %v; want Item A, true", item, ok)
	}

	if _, ok := registry.Get("missing"); ok {
		t.Error("Get(missing) = true, want false")
	}
}

func TestBaseNamesAndListOrdered(t *testing.T) {
	registry := NewBase[testItem]()
	for _, id := range []string{"c", "a", "b"} {
		if err := registry.Register(id, testItem{ID: id}); err != nil {
			t.Fatalf("Register(%s) error: %v", id, err)
		}
	}

	names := registry.Names()
	want := []string{"a", "b", "c"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}

	items := registry.List()
	for i := range want {
		if items[i].ID != want[i] {
			t.Fatalf("List() order = %v, want %v", items, want)
		}
	}
}

func TestBaseConcurrentAccess(t *testing.T) {
	registry := NewBase[testItem]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("item-%d", n)
			_ = registry.Register(id, testItem{ID: id})
			_, _ = registry.Get(id)
			_ = registry.Names()
		}(i)
	}
	wg.Wait()

	if registry.Count() != 50 {
		t.Errorf("Count() = %d, want 50", registry.Count())
	}
}

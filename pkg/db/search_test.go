package db

import (
	"context"
	"testing"

	"ordkv/pkg/config"
	"ordkv/pkg/types"
)

func TestEngineSearchForwardRange(t *testing.T) {
	ctx := context.Background()
	engine := Open(config.Default(), 4<<20, nil)
	defer engine.Close()

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		if err := engine.Put(ctx, types.Key(k), types.Value(k+"-value"), WriteOptions{}); err != nil {
			t.Fatalf("Put(%q): %v", k, err)
		}
	}

	var got []string
	err := engine.Search(ctx, types.Key("b"), types.Key("e"), SearchOptions{}, func(r SearchResult) error {
		got = append(got, string(r.Key))
		return nil
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("Search results = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Search results = %v, want %v", got, want)
		}
	}
}

func TestEngineSearchRespectsLimit(t *testing.T) {
	ctx := context.Background()
	engine := Open(config.Default(), 4<<20, nil)
	defer engine.Close()

	for _, k := range []string{"a", "b", "c", "d"} {
		engine.Put(ctx, types.Key(k), types.Value(k), WriteOptions{})
	}

	var got []string
	err := engine.Search(ctx, nil, nil, SearchOptions{Limit: 2}, func(r SearchResult) error {
		got = append(got, string(r.Key))
		return nil
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search with Limit=2 returned %d results, want 2", len(got))
	}
}

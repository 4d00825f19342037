package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"tbtr/internal/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	md := map[string]string{"name": "coal"}
	info, err := s.Put(ctx, "saves/coal/1.json", bytes.NewReader([]byte("abc")), core.PutOptions{Metadata: md})
	if err != nil || info.Size != 3 || info.ETag == "" {
		t.Fatalf("put: %+v %v", info, err)
	}
	md["name"] = "changed"
	info.Metadata["name"] = "changed too"

	got, rc, err := s.Get(ctx, "saves/coal/1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != "abc" || got.Metadata["name"] != "coal" {
		t.Fatalf("expected stored copy to be isolated, got %q %+v", body, got)
	}

	tests := []struct {
		name string
		err  error
		op   func() error
	}{
		{name: "duplicate put", err: core.ErrExists, op: func() error {
			_, err := s.Put(ctx, "saves/coal/1.json", bytes.NewReader(nil), core.PutOptions{})
			return err
		}},
		{name: "missing get", err: core.ErrNotFound, op: func() error {
			_, _, err := s.Get(ctx, "nope")
			return err
		}},
		{name: "missing head", err: core.ErrNotFound, op: func() error {
			_, err := s.Head(ctx, "nope")
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.op(); !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}

	if _, err := s.Put(ctx, "", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key to fail")
	}
	if _, err := s.Put(ctx, "saves/grain/1.json", bytes.NewReader(nil), core.PutOptions{}); err != nil {
		t.Fatalf("put grain: %v", err)
	}
	if list, _ := s.List(ctx, "saves/coal/"); len(list) != 1 {
		t.Fatalf("expected one coal save, got %+v", list)
	}
	if ok, _ := s.Delete(ctx, "saves/coal/1.json"); !ok {
		t.Fatalf("expected delete to report existing blob")
	}
	if ok, _ := s.Delete(ctx, "saves/coal/1.json"); ok {
		t.Fatalf("expected second delete to report missing blob")
	}
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver")
	}
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/heimdex/heimdex-composer/internal/db"
	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

func setupTestDB(t *testing.T) *SQLiteRepository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewRepository(database.Conn())
}

func TestSaveAndGetItem(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	raw := media.NewRawResource("/media/a.mp4", "")
	raw.State = media.StateReady
	raw.Metadata = media.Metadata{Duration: 12500 * time.Millisecond, Width: 1280, Height: 720, FrameRate: 29.97}

	derived := media.NewDerivedItem(raw.ID, "tight", []timeline.Interval{
		{Start: 2 * time.Second, End: 3 * time.Second},
		{Start: 500 * time.Millisecond, End: time.Second},
	}, true)

	for _, it := range []media.Item{raw, derived} {
		if err := repo.SaveItem(ctx, it); err != nil {
			t.Fatalf("SaveItem(%s) error = %v", it.Name, err)
		}
	}

	got, err := repo.GetItem(ctx, raw.ID)
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetItem() returned nil")
	}
	if got.Kind != media.KindRaw || got.Path != "/media/a.mp4" || got.Name != "a.mp4" {
		t.Errorf("raw item = %+v", got)
	}
	if got.Metadata != raw.Metadata {
		t.Errorf("Metadata = %+v, want %+v", got.Metadata, raw.Metadata)
	}
	if got.State != media.StateReady || got.Dirty {
		t.Errorf("State = %v dirty=%v, want ready and clean", got.State, got.Dirty)
	}

	got, err = repo.GetItem(ctx, derived.ID)
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if got.BaseID != raw.ID || !got.CutsApplied {
		t.Errorf("derived item = %+v", got)
	}
	if len(got.Cuts) != 2 || got.Cuts[0] != derived.Cuts[0] || got.Cuts[1] != derived.Cuts[1] {
		t.Errorf("Cuts = %v, want %v in stored order", got.Cuts, derived.Cuts)
	}
	if !got.Dirty {
		t.Error("not-ready item loaded clean")
	}
}

func TestGetItem_NotFound(t *testing.T) {
	repo := setupTestDB(t)

	got, err := repo.GetItem(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetItem() = %+v, want nil", got)
	}
}

func TestSaveItem_ReplacesCutsAndTransientState(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	it := media.NewDerivedItem("base", "d", []timeline.Interval{{Start: 0, End: time.Second}}, true)
	if err := repo.SaveItem(ctx, it); err != nil {
		t.Fatalf("SaveItem() error = %v", err)
	}

	it.Cuts = nil
	it.CutsApplied = false
	it.State = media.StateResolvingBase
	if err := repo.SaveItem(ctx, it); err != nil {
		t.Fatalf("second SaveItem() error = %v", err)
	}

	got, err := repo.GetItem(ctx, it.ID)
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if len(got.Cuts) != 0 || got.CutsApplied {
		t.Errorf("cuts not replaced: %+v", got)
	}
	if got.State != media.StateNotReady {
		t.Errorf("State = %v, want not_ready", got.State)
	}
}

func TestListAndDeleteItems(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ids := []string{"c", "a", "b"}
	for i, id := range ids {
		it := media.Item{ID: id, Kind: media.KindRaw, Path: "/m/" + id, CreatedAt: base.Add(time.Duration(i) * time.Millisecond)}
		if err := repo.SaveItem(ctx, it); err != nil {
			t.Fatalf("SaveItem(%s) error = %v", id, err)
		}
	}

	items, err := repo.ListItems(ctx)
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("ListItems() returned %d items, want 3", len(items))
	}
	for i, id := range ids {
		if items[i].ID != id {
			t.Errorf("items[%d] = %s, want %s (creation order)", i, items[i].ID, id)
		}
	}

	if err := repo.DeleteItem(ctx, "a"); err != nil {
		t.Fatalf("DeleteItem() error = %v", err)
	}
	n, err := repo.CountItems(ctx)
	if err != nil {
		t.Fatalf("CountItems() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountItems() = %d, want 2", n)
	}
}

func TestSaveItem_RejectsDuplicateRawPath(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	if err := repo.SaveItem(ctx, media.NewRawResource("/m/a.mp4", "")); err != nil {
		t.Fatalf("SaveItem() error = %v", err)
	}
	if err := repo.SaveItem(ctx, media.NewRawResource("/m/a.mp4", "")); err == nil {
		t.Error("second raw resource with the same path accepted")
	}
}

func TestConfig(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	v, err := repo.GetConfig(ctx, KeyAuthToken)
	if err != nil || v != "" {
		t.Fatalf("GetConfig(missing) = %q, %v", v, err)
	}

	if err := repo.SetConfig(ctx, KeyAuthToken, "one"); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	if err := repo.SetConfig(ctx, KeyAuthToken, "two"); err != nil {
		t.Fatalf("SetConfig() overwrite error = %v", err)
	}
	v, err = repo.GetConfig(ctx, KeyAuthToken)
	if err != nil || v != "two" {
		t.Errorf("GetConfig() = %q, %v, want two", v, err)
	}
}

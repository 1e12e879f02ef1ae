package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koltyakov/flo/internal/domain"
	"github.com/koltyakov/flo/internal/settings"
)

func openMemory(t *testing.T, opts OpenOptions) *Store {
	t.Helper()
	store, err := OpenWithOptions("file:"+t.Name()+"?mode=memory&cache=shared", opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndListDeliveries(t *testing.T) {
	store := openMemory(t, OpenOptions{})
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, url := range []string{"a.js", "b.css", "c.js"} {
		err := store.RecordDelivery(ctx, domain.Delivery{
			ID:          fmt.Sprintf("d%d", i),
			ResourceURL: url,
			Bytes:       10 * (i + 1),
			Clients:     i,
			DeliveredAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.RecentDeliveries(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if got[0].ResourceURL != "c.js" || got[1].ResourceURL != "b.css" {
		t.Fatalf("expected newest first, got %+v", got)
	}
	if got[0].Bytes != 30 || got[0].Clients != 2 {
		t.Fatalf("unexpected row contents: %+v", got[0])
	}
}

func TestPruneDeliveriesKeepsNewest(t *testing.T) {
	store := openMemory(t, OpenOptions{HistoryLimit: 3})
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := range 5 {
		if err := store.RecordDelivery(ctx, domain.Delivery{
			ID:          fmt.Sprintf("d%d", i),
			ResourceURL: fmt.Sprintf("f%d.js", i),
			DeliveredAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatal(err)
		}
	}
	removed, err := store.PruneDeliveries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 rows pruned, got %d", removed)
	}
	got, err := store.RecentDeliveries(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[2].ResourceURL != "f2.js" {
		t.Fatalf("expected the three newest rows, got %+v", got)
	}
}

func TestSettingStoreActsAsConfigStore(t *testing.T) {
	store := openMemory(t, OpenOptions{})
	ctx := context.Background()
	ss := store.SettingStore(ConfigKey)

	cfg, err := settings.Load(ctx, ss)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != settings.DefaultPort {
		t.Fatalf("expected defaults for missing row, got %+v", cfg)
	}

	cfg.Port = 9100
	if err := settings.Save(ctx, ss, cfg); err != nil {
		t.Fatal(err)
	}
	cfg.Port = 9200
	if err := settings.Save(ctx, ss, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := settings.Load(ctx, ss)
	if err != nil {
		t.Fatal(err)
	}
	if got.Port != 9200 {
		t.Fatalf("expected upserted port 9200, got %d", got.Port)
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "path", "flo.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected db file to exist at %s: %v", dbPath, err)
	}
}

package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"settle/apps/settle/internal/model"
)

func TestHTTPClientGetListing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/services/svc-1":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"svc-1","owner_id":"creative-1","category":"design","price":"80.00","extras":[{"id":"fast","title":"Fast","price":"20.00"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, zap.NewNop())

	listing, err := client.GetListing(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if listing.OwnerID != "creative-1" || listing.Price.String() != "80.00" || len(listing.Extras) != 1 {
		t.Errorf("Unexpected listing: %+v", listing)
	}

	if _, err := client.GetListing(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	content := `[{"id":"svc-1","owner_id":"creative-1","category":"design","price":"100.00"}]`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write catalog file: %v", err)
	}

	static, err := LoadFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	listing, err := static.GetListing(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if listing.Price.String() != "100.00" {
		t.Errorf("Expected price 100.00, got %s", listing.Price)
	}
}

package asset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestLocalResource(t *testing.T) {
	_, thisFile, _, _ := runtime.Caller(0)
	res, err := Open(context.Background(), thisFile, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	if res.IsRemote() {
		t.Fatal("expected a local resource")
	}
	if res.Base() != "resource_test.go" {
		t.Fatalf("expected base name resource_test.go; got %s", res.Base())
	}
}

func TestRelativeLocalResource(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data", "head.raw"), []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "job.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	job, err := Open(context.Background(), filepath.Join(dir, "job.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer job.Close()

	data, err := ReadAll(context.Background(), "data/head.raw", job)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 3 {
		t.Fatalf("expected 3 bytes; got %d", len(data))
	}
}

func TestHttpResource(t *testing.T) {
	_, thisFile, _, _ := runtime.Caller(0)
	server := httptest.NewServer(http.FileServer(http.Dir(filepath.Dir(thisFile))))
	defer server.Close()

	res, err := Open(context.Background(), server.URL+"/"+filepath.Base(thisFile), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()
	if !res.IsRemote() {
		t.Fatal("expected a remote resource")
	}

	_, err = Open(context.Background(), server.URL+"/file-not-found.foo", nil)
	if !errors.Is(err, ErrFetch) || !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("expected a 404 fetch error; got %v", err)
	}
}

func TestRelativeRemoteResources(t *testing.T) {
	serverHits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverHits++
		switch r.URL.Path {
		case "/jobs/job.json", "/jobs/volumes/head.raw":
			w.Write([]byte("OK"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	job, err := Open(context.Background(), server.URL+"/jobs/job.json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer job.Close()

	data, err := ReadAll(context.Background(), "volumes/head.raw", job)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "OK" {
		t.Fatalf("expected payload OK; got %q", data)
	}
	if serverHits != 2 {
		t.Fatalf("expected server to receive 2 requests; got %d", serverHits)
	}
}

func TestUnsupportedResourceScheme(t *testing.T) {
	_, err := Open(context.Background(), "gopher://digging.raw", nil)
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme; got %v", err)
	}
}

func TestCanceledFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Open(ctx, server.URL+"/head.raw", nil); !errors.Is(err, ErrFetch) {
		t.Fatalf("expected ErrFetch for a canceled request; got %v", err)
	}
}

func TestStreamResource(t *testing.T) {
	res := FromStream("embedded", strings.NewReader("payload"))
	data, err := res.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" || res.Path() != "embedded" {
		t.Fatalf("unexpected stream resource %q at %s", data, res.Path())
	}
}

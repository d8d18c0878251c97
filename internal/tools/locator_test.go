package tools

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nomusic/nomusic/pkg/logger"
)

type fakeFetcher struct {
	calls  int32
	path   string
	err    error
	delay  chan struct{}
	mu     sync.Mutex
	seen   []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, tool, destDir string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.seen = append(f.seen, tool)
	f.mu.Unlock()
	if f.delay != nil {
		<-f.delay
	}
	if f.err != nil {
		return "", f.err
	}
	return filepath.Join(destDir, f.path), nil
}

func TestLocatorFetchesMissingTool(t *testing.T) {
	log, _ := logger.New(false)
	fetcher := &fakeFetcher{path: "fake-tool"}
	loc := New(Config{BaseDir: t.TempDir(), Fetcher: fetcher, Logger: log})

	path, err := loc.Locate(context.Background(), "does-not-exist-on-path")
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if filepath.Base(path) != "fake-tool" {
		t.Errorf("Locate() = %q, want a path ending in fake-tool", path)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetcher called %d times, want 1", fetcher.calls)
	}
}

func TestLocatorCachesResult(t *testing.T) {
	log, _ := logger.New(false)
	fetcher := &fakeFetcher{path: "fake-tool"}
	loc := New(Config{BaseDir: t.TempDir(), Fetcher: fetcher, Logger: log})

	for i := 0; i < 3; i++ {
		if _, err := loc.Locate(context.Background(), "some-tool"); err != nil {
			t.Fatalf("Locate[%d]: %v", i, err)
		}
	}
	if fetcher.calls != 1 {
		t.Errorf("fetcher called %d times across repeated Locate calls, want 1 (cached)", fetcher.calls)
	}
}

func TestLocatorSerializesConcurrentFetchesPerTool(t *testing.T) {
	log, _ := logger.New(false)
	delay := make(chan struct{})
	fetcher := &fakeFetcher{path: "fake-tool", delay: delay}
	loc := New(Config{BaseDir: t.TempDir(), Fetcher: fetcher, Logger: log})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loc.Locate(context.Background(), "shared-tool")
		}()
	}

	close(delay)
	wg.Wait()

	if fetcher.calls != 1 {
		t.Errorf("concurrent Locate() calls triggered %d fetches, want exactly 1", fetcher.calls)
	}
}

func TestLocatorPropagatesFetchError(t *testing.T) {
	log, _ := logger.New(false)
	fetcher := &fakeFetcher{err: errors.New("network down")}
	loc := New(Config{BaseDir: t.TempDir(), Fetcher: fetcher, Logger: log})

	if _, err := loc.Locate(context.Background(), "unreachable-tool"); err == nil {
		t.Fatal("expected an error when the fetcher fails")
	}
}

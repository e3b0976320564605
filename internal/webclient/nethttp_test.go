package webclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shelfscan/shelfscan/internal/testutil"
	"github.com/shelfscan/shelfscan/internal/webclient"
)

func TestNetHTTPGet(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	wc, err := webclient.NewNetHTTPClient(webclient.DefaultConfig(), &testutil.DummyLogger{}, nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer wc.Close()

	resp, err := wc.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	if string(resp.Body) != "<html><body>hello</body></html>" {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}

	// Error statuses are returned, not turned into errors; that policy
	// belongs to callers.
	resp, err = wc.Get(context.Background(), srv.URL+"/missing")
	if err != nil {
		t.Fatalf("Get 404: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", resp.StatusCode)
	}
}

func TestNetHTTPUserAgent(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	cfg := webclient.DefaultConfig()
	cfg.UserAgent = "shelfscan-test/1.0"
	wc, err := webclient.NewNetHTTPClient(cfg, &testutil.DummyLogger{}, nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer wc.Close()

	if _, err := wc.Get(context.Background(), srv.URL); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotUA != "shelfscan-test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestNetHTTPNilRequest(t *testing.T) {
	t.Parallel()

	wc, err := webclient.NewNetHTTPClient(webclient.DefaultConfig(), &testutil.DummyLogger{}, nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer wc.Close()

	if _, err := wc.Do(context.Background(), nil); err == nil {
		t.Fatal("want error for nil request")
	}
}

func TestNetHTTPScreenshotUnsupported(t *testing.T) {
	t.Parallel()

	wc, err := webclient.NewNetHTTPClient(webclient.DefaultConfig(), &testutil.DummyLogger{}, nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer wc.Close()

	_, err = wc.Screenshot(context.Background(), "https://shop.example.com/", webclient.DefaultScreenshotOptions())
	if !errors.Is(err, webclient.ErrScreenshotUnsupported) {
		t.Errorf("Screenshot = %v, want ErrScreenshotUnsupported", err)
	}
	if webclient.CanScreenshot(wc) {
		t.Error("CanScreenshot(nethttp) = true, want false")
	}
}

func TestCanScreenshotDefaultsToCapable(t *testing.T) {
	t.Parallel()

	// Clients that do not declare the capability are assumed capable and
	// fail at call time instead.
	if !webclient.CanScreenshot(&testutil.DummyWebClient{}) {
		t.Error("CanScreenshot without declaration = false, want true")
	}
}

package webclient_test

import (
	"testing"

	"github.com/shelfscan/shelfscan/internal/logging"
	"github.com/shelfscan/shelfscan/internal/testutil"
	"github.com/shelfscan/shelfscan/internal/webclient"
)

func TestFactoryDefaultsToNetHTTP(t *testing.T) {
	t.Parallel()

	cfg := webclient.DefaultConfig()
	cfg.Backend = ""

	wc, err := webclient.New(cfg, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer wc.Close()

	if _, ok := wc.(*webclient.NetHTTPClient); !ok {
		t.Errorf("default backend = %T, want *NetHTTPClient", wc)
	}
}

func TestFactoryUnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := webclient.DefaultConfig()
	cfg.Backend = "gopher"

	if _, err := webclient.New(cfg, &testutil.DummyLogger{}); err == nil {
		t.Fatal("want error for unregistered backend")
	}
}

func TestRegisterBackendCustom(t *testing.T) {
	t.Parallel()

	custom := &testutil.DummyWebClient{}
	webclient.RegisterBackend("dummy-custom", func(_ webclient.Config, _ logging.Logger) (webclient.WebClient, error) {
		return custom, nil
	})

	cfg := webclient.DefaultConfig()
	cfg.Backend = "dummy-custom"
	wc, err := webclient.New(cfg, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if wc != webclient.WebClient(custom) {
		t.Errorf("factory returned %T, want the registered instance", wc)
	}
}

func TestListBackendsIncludesBuiltins(t *testing.T) {
	t.Parallel()

	names := map[string]bool{}
	for _, n := range webclient.ListBackends() {
		names[n] = true
	}
	if !names[webclient.BackendNetHTTP] || !names[webclient.BackendChromeDP] {
		t.Errorf("ListBackends = %v, want builtins present", names)
	}
}

func TestBackendNameCaseInsensitive(t *testing.T) {
	t.Parallel()

	cfg := webclient.DefaultConfig()
	cfg.Backend = "NetHTTP"

	wc, err := webclient.New(cfg, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer wc.Close()

	if _, ok := wc.(*webclient.NetHTTPClient); !ok {
		t.Errorf("backend = %T, want *NetHTTPClient", wc)
	}
}

package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRunCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/full":
			fmt.Fprint(w, "<p>This beta is full.</p>")
		case "/open":
			fmt.Fprint(w, "<p>Join the beta</p>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := fmt.Sprintf(`
watch:
  fetch_timeout: 2s
  targets:
    - {name: Alpha, url: %[1]s/full}
    - {name: Beta, url: %[1]s/open}
    - {name: Gamma, url: %[1]s/gone}
`, srv.URL)

	output, err := execute(t, "check", "-c", writeConfig(t, cfg))
	if err != nil {
		t.Fatalf("check command error = %v", err)
	}
	for _, phrase := range []string{
		"--- Status Update ---",
		"Alpha: Full.",
		"Beta: 🎉 THERE IS A SLOT! " + srv.URL + "/open",
		"Could not check status for Gamma.",
		"1 full, 1 available, 1 unreachable",
	} {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

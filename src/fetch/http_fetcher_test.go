package fetch

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/concordnetworks/concord/src/common"
	"github.com/sirupsen/logrus"
)

func TestHTTPFetcher(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/drift.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"timestamp":"2024-01-01T00:00:00Z","agreement_pct":97.5}]`))
	})
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})
	mux.HandleFunc("/hash.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("abc123"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	logger := common.NewTestEntry(t, logrus.DebugLevel)
	f := NewHTTPFetcher(time.Second, logger)

	var samples []struct {
		AgreementPct float64 `json:"agreement_pct"`
	}
	if ok := f.FetchJSON(srv.URL+"/drift.json", &samples); !ok {
		t.Fatalf("FetchJSON failed")
	}
	if len(samples) != 1 || samples[0].AgreementPct != 97.5 {
		t.Fatalf("samples: %v", samples)
	}

	if ok := f.FetchJSON(srv.URL+"/garbage", &samples); ok {
		t.Fatalf("FetchJSON accepted malformed body")
	}

	if ok := f.FetchJSON(srv.URL+"/missing", &samples); ok {
		t.Fatalf("FetchJSON accepted 404")
	}

	text, ok := f.FetchText(srv.URL + "/hash.txt")
	if !ok || text != "abc123" {
		t.Fatalf("FetchText: %q, %v", text, ok)
	}

	if _, ok := f.FetchText("http://127.0.0.1:1/unreachable"); ok {
		t.Fatalf("FetchText reached an unreachable host")
	}
}

func TestInmemFetcher(t *testing.T) {
	f := NewInmemFetcher()
	f.Respond("peer://a/hash", "deadbeef")
	f.Fail("peer://b/hash")

	if text, ok := f.FetchText("peer://a/hash"); !ok || text != "deadbeef" {
		t.Fatalf("FetchText: %q, %v", text, ok)
	}
	if _, ok := f.FetchText("peer://b/hash"); ok {
		t.Fatalf("failed URL served a response")
	}
	if _, ok := f.FetchText("peer://c/hash"); ok {
		t.Fatalf("unknown URL served a response")
	}
}

package fetch

import (
	"encoding/json"
	"sync"
)

// InmemFetcher implements the Fetcher interface from an in-memory map of
// canned responses. Tests use it to simulate peers, including unreachable
// and malformed ones.
type InmemFetcher struct {
	l         sync.RWMutex
	responses map[string]string
	failures  map[string]bool
}

// NewInmemFetcher instantiates an empty InmemFetcher.
func NewInmemFetcher() *InmemFetcher {
	return &InmemFetcher{
		responses: make(map[string]string),
		failures:  make(map[string]bool),
	}
}

// Respond registers a canned response body for a URL.
func (f *InmemFetcher) Respond(url, body string) {
	f.l.Lock()
	defer f.l.Unlock()
	f.responses[url] = body
}

// Fail marks a URL as unreachable.
func (f *InmemFetcher) Fail(url string) {
	f.l.Lock()
	defer f.l.Unlock()
	f.failures[url] = true
}

// FetchJSON implements the Fetcher interface.
func (f *InmemFetcher) FetchJSON(url string, v interface{}) bool {
	body, ok := f.FetchText(url)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(body), v) == nil
}

// FetchText implements the Fetcher interface.
func (f *InmemFetcher) FetchText(url string) (string, bool) {
	f.l.RLock()
	defer f.l.RUnlock()

	if f.failures[url] {
		return "", false
	}

	body, ok := f.responses[url]
	return body, ok
}

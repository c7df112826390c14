package fetch

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds how much of a peer response is read. Peers are not
// trusted to be well-behaved.
const maxBodyBytes = 4 << 20

// HTTPFetcher implements the Fetcher interface over plain HTTP(S).
type HTTPFetcher struct {
	client *http.Client
	logger *logrus.Entry
}

// NewHTTPFetcher creates an HTTPFetcher with a per-request timeout.
func NewHTTPFetcher(timeout time.Duration, logger *logrus.Entry) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// FetchJSON implements the Fetcher interface.
func (f *HTTPFetcher) FetchJSON(url string, v interface{}) bool {
	body, ok := f.fetch(url)
	if !ok {
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		f.logger.WithFields(logrus.Fields{
			"url":   url,
			"error": err,
		}).Debug("Peer response is not valid JSON")
		return false
	}

	return true
}

// FetchText implements the Fetcher interface.
func (f *HTTPFetcher) FetchText(url string) (string, bool) {
	body, ok := f.fetch(url)
	if !ok {
		return "", false
	}
	return string(body), true
}

func (f *HTTPFetcher) fetch(url string) ([]byte, bool) {
	resp, err := f.client.Get(url)
	if err != nil {
		f.logger.WithFields(logrus.Fields{
			"url":   url,
			"error": err,
		}).Debug("Peer fetch failed")
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.WithFields(logrus.Fields{
			"url":    url,
			"status": resp.StatusCode,
		}).Debug("Peer fetch returned non-OK status")
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		f.logger.WithFields(logrus.Fields{
			"url":   url,
			"error": err,
		}).Debug("Peer fetch body read failed")
		return nil, false
	}

	return body, true
}

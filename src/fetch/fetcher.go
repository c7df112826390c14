// Package fetch abstracts how peer-published artifacts are retrieved.
//
// Engines never talk to the network directly; they are handed a Fetcher,
// which either reaches real peers over HTTP or serves canned responses from
// memory. A fetch that fails for any reason (unreachable host, bad status,
// unparsable body) reports false rather than an error: the caller's contract
// is that a failed fetch degrades the computation for that one peer, it
// never aborts the batch.
package fetch

// Fetcher retrieves peer-published artifacts.
type Fetcher interface {
	// FetchJSON retrieves and decodes a JSON document into v. It returns
	// false on any network or parse failure.
	FetchJSON(url string, v interface{}) bool

	// FetchText retrieves a document as text. It returns false on any
	// network failure.
	FetchText(url string) (string, bool)
}

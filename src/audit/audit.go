// Package audit maintains the shared audit document. Every engine owns one
// uniquely delimited marker block in the document and replaces it in place
// on each run, so repeated runs never duplicate markers. The document is a
// single-writer-at-a-time resource; serialization is the caller's job.
package audit

import (
	"fmt"
	"strings"

	"github.com/concordnetworks/concord/src/store"
	"github.com/sirupsen/logrus"
)

// DocumentKey is the store key of the shared audit document.
const DocumentKey = "audit.md"

// Document provides idempotent marker-block upserts on the shared audit
// document.
type Document struct {
	db     store.Store
	key    string
	logger *logrus.Entry
}

// NewDocument instantiates a Document over the given store.
func NewDocument(db store.Store, logger *logrus.Entry) *Document {
	return &Document{
		db:     db,
		key:    DocumentKey,
		logger: logger.WithField("prefix", "audit"),
	}
}

func beginDelimiter(name string) string {
	return fmt.Sprintf("<!-- concord:%s:begin -->", name)
}

func endDelimiter(name string) string {
	return fmt.Sprintf("<!-- concord:%s:end -->", name)
}

// UpsertBlock inserts or replaces the named marker block. If the document
// already holds an identical block, nothing is written.
func (d *Document) UpsertBlock(name, content string) error {
	doc, err := d.db.Get(d.key)
	if err != nil && err != store.ErrKeyNotFound {
		return err
	}

	begin := beginDelimiter(name)
	end := endDelimiter(name)
	block := begin + "\n" + strings.TrimRight(content, "\n") + "\n" + end

	current := string(doc)

	updated, replaced := spliceBlock(current, begin, end, block)
	if !replaced {
		if updated != "" && !strings.HasSuffix(updated, "\n") {
			updated += "\n"
		}
		updated += block + "\n"
	}

	if updated == current {
		d.logger.WithField("marker", name).Debug("Audit marker unchanged")
		return nil
	}

	if err := d.db.Set(d.key, []byte(updated)); err != nil {
		return err
	}

	d.logger.WithField("marker", name).Info("Audit marker upserted")

	return nil
}

// HasBlock reports whether the named marker block is present.
func (d *Document) HasBlock(name string) bool {
	doc, err := d.db.Get(d.key)
	if err != nil {
		return false
	}
	return strings.Contains(string(doc), beginDelimiter(name))
}

// BlockContent returns the content of the named marker block, without its
// delimiters.
func (d *Document) BlockContent(name string) (string, bool) {
	doc, err := d.db.Get(d.key)
	if err != nil {
		return "", false
	}

	current := string(doc)
	begin := beginDelimiter(name)
	end := endDelimiter(name)

	i := strings.Index(current, begin)
	if i < 0 {
		return "", false
	}
	j := strings.Index(current[i:], end)
	if j < 0 {
		return "", false
	}

	inner := current[i+len(begin) : i+j]
	return strings.Trim(inner, "\n"), true
}

// spliceBlock replaces the region between the begin and end delimiters
// (inclusive) with block. It reports whether a region was found.
func spliceBlock(doc, begin, end, block string) (string, bool) {
	i := strings.Index(doc, begin)
	if i < 0 {
		return doc, false
	}
	j := strings.Index(doc[i:], end)
	if j < 0 {
		// A begin without an end means the document was corrupted
		// mid-write; rewrite from the begin marker onwards.
		return doc[:i] + block, true
	}

	return doc[:i] + block + doc[i+j+len(end):], true
}

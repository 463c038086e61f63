// Package vellum loads PDF documents from memory and exposes their
// pages, decoded content streams and images.
//
// Basic usage:
//
//	doc, err := vellum.Load(data)
//	if err != nil {
//	    // handle error
//	}
//	count, _ := doc.PageCount()
//
// Encrypted documents need a password unless their user password is
// empty:
//
//	doc, err := vellum.Load(data, vellum.WithPassword("hunter2"))
//
// For finer control the lower-level reader, pages and core packages are
// also available.
package vellum

import (
	"fmt"
	"os"

	"github.com/vellumpdf/vellum/core"
	"github.com/vellumpdf/vellum/pages"
	"github.com/vellumpdf/vellum/reader"
)

// Encryption policies accepted by WithEncryptionPolicy.
const (
	PolicyReject   = reader.PolicyReject
	PolicyPassword = reader.PolicyPassword
)

// Document is a loaded PDF document. It is a thin view over
// reader.Reader; the underlying buffer is never copied or mutated.
type Document struct {
	reader *reader.Reader
}

// Load parses a complete in-memory PDF buffer.
func Load(data []byte, opts ...Option) (*Document, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validateOptions(); err != nil {
		return nil, err
	}

	cfg := reader.Config{
		EncryptionPolicy: o.EncryptionPolicy,
		MaxObjectDepth:   o.MaxObjectDepth,
	}
	if o.Password != "" {
		cfg.Password = []byte(o.Password)
	}

	r, err := reader.New(data, cfg)
	if err != nil {
		return nil, err
	}
	return &Document{reader: r}, nil
}

// Open reads a file into memory and loads it.
func Open(path string, opts ...Option) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Load(data, opts...)
}

// Reader exposes the underlying reader for lower-level access.
func (d *Document) Reader() *reader.Reader { return d.reader }

// Version reports the PDF header version.
func (d *Document) Version() string { return d.reader.Version().String() }

// IsEncrypted reports whether the document carries encryption.
func (d *Document) IsEncrypted() bool { return d.reader.IsEncrypted() }

// PageCount returns the number of pages.
func (d *Document) PageCount() (int, error) { return d.reader.PageCount() }

// Page returns the page at a zero-based index.
func (d *Document) Page(index int) (*pages.Page, error) { return d.reader.Page(index) }

// Pages returns every page in document order.
func (d *Document) Pages() ([]*pages.Page, error) { return d.reader.Pages() }

// DecodedContentStreams returns a page's content streams with all
// filters applied, in document order.
func (d *Document) DecodedContentStreams(index int) ([][]byte, error) {
	return d.reader.DecodedContentStreams(index)
}

// PageImages collects the image XObjects of the page at index, prepared
// for an external codec.
func (d *Document) PageImages(index int) ([]reader.ImageObject, error) {
	page, err := d.reader.Page(index)
	if err != nil {
		return nil, err
	}
	return d.reader.PageImages(page)
}

// Info returns the document information dictionary, or nil when the
// document has none.
func (d *Document) Info() (core.Dict, error) { return d.reader.Info() }

// Title returns the document title decoded to UTF-8, or "" when unset.
func (d *Document) Title() (string, error) { return d.reader.InfoText("Title") }

// Author returns the document author decoded to UTF-8, or "" when unset.
func (d *Document) Author() (string, error) { return d.reader.InfoText("Author") }

// Must panics when err is non-nil, otherwise returns val. Meant for
// tests and scripts.
//
//	count := vellum.Must(doc.PageCount())
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}

// Package encryption implements the Standard security handler used by
// encrypted PDF documents, covering revisions 2 through 6 (RC4 with 40
// to 128 bit keys, AES-128 and AES-256).
//
// A Handler is parsed from the trailer /Encrypt dictionary, a password
// is verified with Authenticate, and the per-object Decrypt methods are
// then applied lazily as strings and streams are loaded.
package encryption

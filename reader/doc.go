// Package reader loads complete PDF documents from memory.
//
// A Reader orchestrates the lower layers: it checks the %PDF- header,
// resolves the merged cross-reference index (rebuilding it by scanning
// for object headers when the declared tables are broken), loads objects
// on demand from file offsets or object streams, decrypts strings and
// stream payloads lazily on first load, and exposes the page tree and
// decoded content streams. Image XObjects surface as a codec handoff:
// JPEG and JPEG2000 data stays compressed for an external decoder.
//
// LoadAll loads independent buffers concurrently under a semaphore.
package reader

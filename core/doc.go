// Package core implements the low-level PDF object machinery: the
// tokenizer and parser for PDF syntax, the object model, cross-reference
// resolution and stream decoding.
//
// The object model is the closed set of types behind the Object
// interface: Null, Bool, Int, Real, String, Name, Array, Dict, *Stream
// and IndirectRef. Indirect references stay unresolved values until a
// caller looks them up against the document's cross-reference index,
// which keeps cyclic reference graphs from recursing.
//
// Cross references come in three shapes, all handled here: classic xref
// tables, cross-reference streams (PDF 1.5) and the object streams they
// point into. Incremental updates chain through /Prev (and /XRefStm in
// hybrid files); MergeXRefTables flattens the chain with newest-wins
// precedence, so a later free entry masks an older in-use one. When the
// chain itself is damaged, RebuildXRef reconstructs a best-effort index
// by scanning for object headers.
//
// Stream payloads are held raw; Decode applies the declared /Filter
// chain through internal/filters. DCTDecode and JPXDecode payloads pass
// through undecoded for an external image codec.
package core

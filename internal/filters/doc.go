// Package filters implements the standard PDF stream decode filters.
//
// PDF stream data may be encoded with one or more filters, applied in the
// order they appear in the stream dictionary's /Filter entry. This package
// provides the decoders the loader applies itself:
//
//   - FlateDecode (zlib/deflate, with TIFF and PNG predictors)
//   - ASCIIHexDecode
//   - ASCII85Decode
//   - RunLengthDecode
//   - CCITTFaxDecode (Group 3/4 bi-level image data)
//
// DCTDecode (JPEG) and JPXDecode (JPEG 2000) are deliberately not decoded
// here: the loader hands their still-compressed bytes to an external image
// codec together with the dimensions from the stream dictionary.
//
// Matching encoders are provided for the reversible byte-oriented filters
// (ASCIIHexEncode, ASCII85Encode, RunLengthEncode) so round-trip behavior
// can be verified.
//
// # Decode Parameters
//
// Filters that take parameters receive them as a [Params] map translated
// from the stream dictionary's /DecodeParms entry:
//
//	params := filters.Params{
//	    "Predictor": 12,
//	    "Columns":   100,
//	}
//	decoded, err := filters.FlateDecode(data, params)
//
// FlateDecode honors Predictor, Columns, Colors and BitsPerComponent;
// CCITTFaxDecode honors K, Columns, Rows and BlackIs1.
package filters

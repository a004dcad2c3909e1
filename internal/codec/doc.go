// Package codec implements the per-column block compression used by flushed blocks.
//
// Codecs are chosen per block from the observed value distribution, first match wins:
//
//   - Const: every value equal. Stores the value and the element count.
//   - Packed: max-min fits in MaxPackedWidth bits. Stores min, the bit width and an
//     LSB-first bitstream of value-min.
//   - Generic: a byte-stream compressor (zstd, lz4 or snappy). Always succeeds.
//
// Every integer encoding starts with a tag byte so decoding is self-describing.
// Doubles are split into a 24-bit high slice, encoded as an integer array, and a raw
// 5-byte low slice. Strings store a length array followed by the concatenated payload,
// compressed together with the generic compressor.
//
// All decoders are lossless: integers and strings are byte-identical and doubles are
// bit-identical after a round trip.
package codec

package codec

import (
	"math"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCodecRoundTripProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("int32 decode(encode(x)) == x", prop.ForAll(
		func(values []int32, c uint8) bool {
			enc := AppendInt32(nil, values, Compression(c%3))
			got, err := DecodeInt32(nil, enc, len(values))
			return err == nil && slices.Equal(values, got)
		},
		gen.SliceOf(gen.Int32()),
		gen.UInt8(),
	))

	properties.Property("int32 small range round trip", prop.ForAll(
		func(base int32, deltas []uint8) bool {
			values := make([]int32, len(deltas))
			for i, d := range deltas {
				values[i] = base/2 + int32(d)
			}
			enc := AppendInt32(nil, values, CompressionZSTD)
			got, err := DecodeInt32(nil, enc, len(values))
			return err == nil && slices.Equal(values, got)
		},
		gen.Int32(),
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("int64 decode(encode(x)) == x", prop.ForAll(
		func(values []int64, c uint8) bool {
			enc := AppendInt64(nil, values, Compression(c%3))
			got, err := DecodeInt64(nil, enc, len(values))
			return err == nil && slices.Equal(values, got)
		},
		gen.SliceOf(gen.Int64()),
		gen.UInt8(),
	))

	properties.Property("float64 round trip is bit exact", prop.ForAll(
		func(values []float64) bool {
			enc := AppendFloat64(nil, values, CompressionLZ4)
			got, err := DecodeFloat64(nil, enc, len(values))
			if err != nil || len(got) != len(values) {
				return false
			}
			for i := range values {
				if math.Float64bits(values[i]) != math.Float64bits(got[i]) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64()),
	))

	properties.Property("strings round trip", prop.ForAll(
		func(strs []string) bool {
			lengths := make([]uint32, len(strs))
			var payload []byte
			for i, s := range strs {
				lengths[i] = uint32(len(s))
				payload = append(payload, s...)
			}
			enc := AppendStrings(nil, lengths, payload, CompressionSnappy)
			gotLens, gotPayload, err := DecodeStrings(enc, len(strs), len(payload)+4*len(strs))
			return err == nil && slices.Equal(lengths, gotLens) && string(payload) == string(gotPayload)
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}

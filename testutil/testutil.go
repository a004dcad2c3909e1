package testutil

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/hupe1980/vinstore/model"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Int63n returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Int63n(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Int63n(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

const vinAlphabet = "ABCDEFGHJKLMNPRSTUVWXYZ0123456789"

// Vin returns a random vin drawn from the characters valid in vehicle
// identification numbers.
func (r *RNG) Vin() model.Vin {
	r.mu.Lock()
	defer r.mu.Unlock()
	var v model.Vin
	for i := range v {
		v[i] = vinAlphabet[r.rand.Intn(len(vinAlphabet))]
	}
	return v
}

// Vins returns n distinct random vins.
func (r *RNG) Vins(n int) []model.Vin {
	seen := make(map[model.Vin]struct{}, n)
	out := make([]model.Vin, 0, n)
	for len(out) < n {
		v := r.Vin()
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SeqVin returns the vin "VIN" followed by i zero-padded to 14 digits.
func SeqVin(i int) model.Vin {
	return model.MustParseVin(fmt.Sprintf("VIN%014d", i))
}

// Value returns a random value of typ. Strings are 0..maxStr bytes long.
func (r *RNG) Value(typ model.ColumnType, maxStr int) model.ColumnValue {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch typ {
	case model.ColumnTypeInteger:
		return model.IntValue(r.rand.Int31n(1<<20) - 1<<19)
	case model.ColumnTypeDouble:
		return model.DoubleValue(r.rand.NormFloat64() * 100)
	case model.ColumnTypeString:
		b := make([]byte, r.rand.Intn(maxStr+1))
		for i := range b {
			b[i] = byte('a' + r.rand.Intn(26))
		}
		return model.BytesValue(b)
	default:
		panic(fmt.Sprintf("testutil: no values of type %s", typ))
	}
}

// Row returns a row of vin at ts with a random value for every schema column.
func (r *RNG) Row(schema model.Schema, vin model.Vin, ts int64) model.Row {
	row := model.Row{Vin: vin, Timestamp: ts, Columns: make(map[string]model.ColumnValue, schema.Len())}
	for _, c := range schema.Columns {
		row.Columns[c.Name] = r.Value(c.Type, 16)
	}
	return row
}

// Series returns n rows of vin with timestamps start, start+step, ...
func (r *RNG) Series(schema model.Schema, vin model.Vin, start, step int64, n int) []model.Row {
	rows := make([]model.Row, n)
	for i := range rows {
		rows[i] = r.Row(schema, vin, start+int64(i)*step)
	}
	return rows
}

// Shuffle permutes rows in place.
func (r *RNG) Shuffle(rows []model.Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
}

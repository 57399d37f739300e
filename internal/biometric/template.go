// Package biometric holds the face-template primitives used to gate a vote:
// the template codec, template comparison and the liveness screens.
package biometric

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/pgvector/pgvector-go"
)

// ErrInvalidTemplate marks malformed template data. Callers must surface it,
// never treat it as "not enrolled".
var ErrInvalidTemplate = errors.New("invalid template")

// maxDim is the largest dimension the binary vector header can carry.
const maxDim = math.MaxUint16

// headerLen is the dim + reserved prefix of the binary vector encoding.
const headerLen = 4

// Template is a face embedding. A nil Template means "no usable template".
type Template []float32

// Absent reports whether t cannot take part in a comparison.
func (t Template) Absent() bool {
	n := norm(t)
	return n == 0 || math.IsNaN(n) || math.IsInf(n, 0)
}

// Normalize returns a unit-length copy of t. A zero-norm template is returned
// unchanged; the division is never attempted.
func Normalize(t Template) Template {
	out := make(Template, len(t))
	copy(out, t)
	n := norm(out)
	if n == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / n)
	}
	return out
}

// Encode serializes the normalized form of a template into the pgvector
// binary layout (uint16 dim, uint16 reserved, big-endian float32 values).
func Encode(t Template) ([]byte, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("%w: empty template", ErrInvalidTemplate)
	}
	if len(t) > maxDim {
		return nil, fmt.Errorf("%w: dimension %d exceeds %d", ErrInvalidTemplate, len(t), maxDim)
	}
	for i, x := range t {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil, fmt.Errorf("%w: non-finite value at index %d", ErrInvalidTemplate, i)
		}
	}

	buf, err := pgvector.NewVector(Normalize(t)).EncodeBinary(make([]byte, 0, headerLen+4*len(t)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return buf, nil
}

// Decode parses bytes produced by Encode. Empty input returns (nil, nil) so
// callers can tell "never enrolled" apart from corrupt data, which is an error.
func Decode(data []byte) (Template, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < headerLen {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrInvalidTemplate, len(data))
	}
	dim := int(binary.BigEndian.Uint16(data[0:2]))
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero dimension", ErrInvalidTemplate)
	}
	if want := headerLen + 4*dim; len(data) != want {
		return nil, fmt.Errorf("%w: dimension %d needs %d bytes, got %d", ErrInvalidTemplate, dim, want, len(data))
	}

	var vec pgvector.Vector
	if err := vec.DecodeBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	t := Template(vec.Slice())
	for i, x := range t {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil, fmt.Errorf("%w: non-finite value at index %d", ErrInvalidTemplate, i)
		}
	}
	return Normalize(t), nil
}

func norm(t Template) float64 {
	var sum float64
	for _, x := range t {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

package biometric

import "math"

// DefaultMatchThreshold is the Euclidean distance under which two unit
// templates are considered the same face.
const DefaultMatchThreshold = 0.8

// Compare returns whether live matches enrolled and the Euclidean distance
// between their normalized forms. Absent or dimension-mismatched templates
// never match and report +Inf.
func Compare(enrolled, live Template, threshold float64) (bool, float64) {
	if enrolled.Absent() || live.Absent() || len(enrolled) != len(live) {
		return false, math.Inf(1)
	}

	a := Normalize(enrolled)
	b := Normalize(live)

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	distance := math.Sqrt(sum)

	return distance <= threshold, distance
}

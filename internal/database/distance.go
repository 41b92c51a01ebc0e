package database

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
)

// EuclideanDistance computes the L2 distance between two vectors.
// Returns +Inf for mismatched or empty input so it never matches.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// FaceHash returns the hex SHA-256 of a stored face representation.
func FaceHash(face []byte) string {
	sum := sha256.Sum256(face)
	return hex.EncodeToString(sum[:])
}

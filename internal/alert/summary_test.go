package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	t.Run("empty hit set", func(t *testing.T) {
		assert.Equal(t, "", Summarize(nil))
	})

	t.Run("single hit includes rounded distance", func(t *testing.T) {
		hits := []Hit{{Name: "Roosevelt Rd resurfacing", DistanceMeters: 218.7}}
		assert.Equal(t, "Roosevelt Rd resurfacing at 219m", Summarize(hits))
	})

	t.Run("two hits join names without remainder", func(t *testing.T) {
		hits := []Hit{
			{Name: "Xinyi Rd", DistanceMeters: 50},
			{Name: "Keelung Rd", DistanceMeters: 120},
		}
		assert.Equal(t, "Xinyi Rd, Keelung Rd", Summarize(hits))
	})

	t.Run("five hits list first three plus remainder count", func(t *testing.T) {
		hits := []Hit{
			{Name: "A", DistanceMeters: 10},
			{Name: "B", DistanceMeters: 20},
			{Name: "C", DistanceMeters: 30},
			{Name: "D", DistanceMeters: 40},
			{Name: "E", DistanceMeters: 50},
		}
		assert.Equal(t, "A, B, C and 2 more", Summarize(hits))
	})
}

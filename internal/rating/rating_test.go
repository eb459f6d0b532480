package rating

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zeroDistribution() map[int]int {
	return map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}
}

func TestCalculateRatingStatsEmpty(t *testing.T) {
	for _, in := range [][]ReviewItem{nil, {}} {
		stats := CalculateRatingStats(in)
		assert.Equal(t, 0.0, stats.AverageRating)
		assert.Equal(t, 0, stats.TotalReviews)
		assert.Equal(t, zeroDistribution(), stats.RatingDistribution)
	}
}

func TestCalculateRatingStatsMixedInput(t *testing.T) {
	reviews := []ReviewItem{
		{ID: "a", StarRating: Star("5")},
		{ID: "b", StarRating: Star(3)},
		{ID: "c", StarRating: Star("abc")},
		{ID: "d", StarRating: Star(7)},
	}

	stats := CalculateRatingStats(reviews)
	assert.Equal(t, 2, stats.TotalReviews)
	assert.Equal(t, 4.0, stats.AverageRating)
	assert.Equal(t, map[int]int{1: 0, 2: 0, 3: 1, 4: 0, 5: 1}, stats.RatingDistribution)
}

func TestCalculateRatingStatsUsesUnroundedAverage(t *testing.T) {
	reviews := []ReviewItem{
		{StarRating: Star(4.5)},
		{StarRating: Star(2.4)},
		{StarRating: Star(1)},
	}

	stats := CalculateRatingStats(reviews)
	assert.Equal(t, 3, stats.TotalReviews)
	// (4.5 + 2.4 + 1) / 3 = 2.633...
	assert.Equal(t, 2.6, stats.AverageRating)
	assert.Equal(t, 1, stats.RatingDistribution[5], "4.5 rounds half up")
	assert.Equal(t, 1, stats.RatingDistribution[2])
	assert.Equal(t, 1, stats.RatingDistribution[1])
}

func TestParseStarRating(t *testing.T) {
	valid := map[string]struct {
		in   any
		want float64
	}{
		"int":            {3, 3},
		"float":          {4.5, 4.5},
		"float32":        {float32(2), 2},
		"uint8":          {uint8(5), 5},
		"string":         {"5", 5},
		"padded string":  {"  2.5 ", 2.5},
		"json number":    {json.Number("1"), 1},
		"lower boundary": {1.0, 1},
	}
	for name, tc := range valid {
		t.Run(name, func(t *testing.T) {
			got, ok := ParseStarRating(tc.in)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	invalid := map[string]any{
		"nil":          nil,
		"bool":         true,
		"false":        false,
		"empty string": "",
		"blank string": "   ",
		"word":         "abc",
		"nan string":   "NaN",
		"nan":          math.NaN(),
		"inf":          math.Inf(1),
		"zero":         0,
		"too high":     7,
		"just above":   5.01,
		"negative":     "-3",
		"slice":        []int{4},
	}
	for name, in := range invalid {
		t.Run(name, func(t *testing.T) {
			_, ok := ParseStarRating(in)
			assert.False(t, ok)
		})
	}
}

func TestStatsFromDistribution(t *testing.T) {
	stats := StatsFromDistribution(map[int]int{5: 3, 4: 1, 0: 9, 6: 2, 2: -4})

	assert.Equal(t, 4, stats.TotalReviews)
	// (5*3 + 4*1) / 4 = 4.75
	assert.Equal(t, 4.8, stats.AverageRating)
	assert.Equal(t, map[int]int{1: 0, 2: 0, 3: 0, 4: 1, 5: 3}, stats.RatingDistribution)

	empty := StatsFromDistribution(nil)
	assert.Equal(t, 0.0, empty.AverageRating)
	assert.Equal(t, zeroDistribution(), empty.RatingDistribution)
}

func TestReviewItemUnmarshal(t *testing.T) {
	var rows []ReviewItem
	raw := `[{"id":"1","star_rating":"4"},{"id":"2","star_rating":2},{"id":"3","star_rating":true},{"id":"4"}]`
	require.NoError(t, json.Unmarshal([]byte(raw), &rows))
	require.Len(t, rows, 4)

	assert.Equal(t, StarRating{Value: 4, Valid: true}, rows[0].StarRating)
	assert.Equal(t, StarRating{Value: 2, Valid: true}, rows[1].StarRating)
	assert.False(t, rows[2].StarRating.Valid)
	assert.False(t, rows[3].StarRating.Valid)

	stats := CalculateRatingStats(rows)
	assert.Equal(t, 2, stats.TotalReviews)
	assert.Equal(t, 3.0, stats.AverageRating)
}

func TestParseReviews(t *testing.T) {
	cases := map[string]string{
		"bare array": `[{"id":"r1","star_rating":"5","comment":"lovely"},{"id":"r2","star_rating":3},{"id":"r3","star_rating":"abc"},{"id":"r4","star_rating":7}]`,
		"envelope":   `{"success":true,"code":200,"data":[{"id":"r1","star_rating":"5","comment":"lovely"},{"id":"r2","star_rating":3},{"id":"r3","star_rating":"abc"},{"id":"r4","star_rating":7}]}`,
		"nested":     `{"success":true,"data":{"reviews":[{"id":"r1","star_rating":"5","comment":"lovely"},{"id":"r2","star_rating":3},{"id":"r3","star_rating":"abc"},{"id":"r4","star_rating":7}]}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			rows, err := ParseReviews([]byte(raw))
			require.NoError(t, err)
			require.Len(t, rows, 4)
			assert.Equal(t, "r1", rows[0].ID)
			assert.Equal(t, "lovely", rows[0].Comment)

			stats := CalculateRatingStats(rows)
			assert.Equal(t, 2, stats.TotalReviews)
			assert.Equal(t, 4.0, stats.AverageRating)
		})
	}
}

func TestParseReviewsRejectsGarbage(t *testing.T) {
	_, err := ParseReviews([]byte(`{not json`))
	assert.Error(t, err)

	_, err = ParseReviews([]byte(`{"success":true,"data":{"count":2}}`))
	assert.Error(t, err)
}

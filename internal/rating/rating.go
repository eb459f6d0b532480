// Package rating turns raw product review rows into display statistics.
package rating

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
)

const (
	MinStars = 1
	MaxStars = 5
)

// StarRating is a star value that went through ParseStarRating. Valid is
// false when the source value was missing, non-numeric, boolean or out of
// range.
type StarRating struct {
	Value float64
	Valid bool
}

// Star parses v into a StarRating.
func Star(v any) StarRating {
	f, ok := ParseStarRating(v)
	return StarRating{Value: f, Valid: ok}
}

// UnmarshalJSON accepts a JSON number or a numeric string. Anything else
// produces an invalid rating rather than an error.
func (s *StarRating) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*s = StarRating{}
		return nil
	}
	*s = Star(raw)
	return nil
}

// MarshalJSON writes the numeric value, or null for an invalid rating.
func (s StarRating) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

// ReviewItem is one review row as returned by the commerce backend.
type ReviewItem struct {
	ID         string     `json:"id"`
	StarRating StarRating `json:"star_rating"`
	UserName   string     `json:"user_name,omitempty"`
	Comment    string     `json:"comment,omitempty"`
	CreatedAt  string     `json:"created_at,omitempty"`
}

// Stats is the aggregate shown next to a product.
type Stats struct {
	AverageRating      float64     `json:"averageRating"`
	TotalReviews       int         `json:"totalReviews"`
	RatingDistribution map[int]int `json:"ratingDistribution"`
}

func emptyDistribution() map[int]int {
	d := make(map[int]int, MaxStars)
	for star := MinStars; star <= MaxStars; star++ {
		d[star] = 0
	}
	return d
}

// ParseStarRating coerces v to a star value in [1,5]. Numbers of any Go kind
// and numeric strings (surrounding whitespace ignored) are accepted; empty
// strings, NaN, infinities, booleans and nil are rejected. A JSON true is
// never read as 1 star and false never as 0, so such a review is left out
// of the stats.
func ParseStarRating(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case nil, bool:
		return 0, false
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			f = rv.Float()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			f = float64(rv.Uint())
		default:
			return 0, false
		}
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < MinStars || f > MaxStars {
		return 0, false
	}
	return f, true
}

// CalculateRatingStats aggregates the valid ratings in reviews. The average
// is taken over unrounded values; the histogram buckets each rating at its
// nearest whole star.
func CalculateRatingStats(reviews []ReviewItem) Stats {
	stats := Stats{RatingDistribution: emptyDistribution()}

	var sum float64
	for _, r := range reviews {
		if !r.StarRating.Valid {
			continue
		}
		sum += r.StarRating.Value
		stats.TotalReviews++
		stats.RatingDistribution[bucket(r.StarRating.Value)]++
	}

	if stats.TotalReviews > 0 {
		stats.AverageRating = roundTenth(sum / float64(stats.TotalReviews))
	}
	return stats
}

// StatsFromDistribution builds Stats from a pre-aggregated star -> count
// map. Keys outside 1..5 and non-positive counts are ignored.
func StatsFromDistribution(dist map[int]int) Stats {
	stats := Stats{RatingDistribution: emptyDistribution()}

	var weighted int
	for star, count := range dist {
		if star < MinStars || star > MaxStars || count <= 0 {
			continue
		}
		stats.RatingDistribution[star] = count
		stats.TotalReviews += count
		weighted += star * count
	}

	if stats.TotalReviews > 0 {
		stats.AverageRating = roundTenth(float64(weighted) / float64(stats.TotalReviews))
	}
	return stats
}

// bucket rounds half up; v is always positive here.
func bucket(v float64) int {
	b := int(math.Floor(v + 0.5))
	if b < MinStars {
		return MinStars
	}
	if b > MaxStars {
		return MaxStars
	}
	return b
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

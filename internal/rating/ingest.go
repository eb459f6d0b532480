package rating

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// reviewPaths are tried in order when the payload is not a bare array.
var reviewPaths = []string{"data", "data.reviews", "data.items", "reviews"}

// ParseReviews reads review rows from a backend payload. It accepts a bare
// array or an envelope carrying the array under one of the usual keys. Rows
// with an unusable star_rating are kept with an invalid rating so callers can
// still show them; they do not count toward Stats.
func ParseReviews(raw []byte) ([]ReviewItem, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("rating: reviews payload is not valid JSON")
	}

	doc := gjson.ParseBytes(raw)
	rows := doc
	if !rows.IsArray() {
		rows = gjson.Result{}
		for _, path := range reviewPaths {
			if r := doc.Get(path); r.IsArray() {
				rows = r
				break
			}
		}
		if !rows.IsArray() {
			return nil, fmt.Errorf("rating: no review list in payload")
		}
	}

	out := make([]ReviewItem, 0, len(rows.Array()))
	rows.ForEach(func(_, row gjson.Result) bool {
		if !row.IsObject() {
			return true
		}
		out = append(out, ReviewItem{
			ID:         row.Get("id").String(),
			StarRating: Star(starValue(row.Get("star_rating"))),
			UserName:   row.Get("user_name").String(),
			Comment:    row.Get("comment").String(),
			CreatedAt:  row.Get("created_at").String(),
		})
		return true
	})
	return out, nil
}

func starValue(r gjson.Result) any {
	switch r.Type {
	case gjson.Number:
		return r.Num
	case gjson.String:
		return r.Str
	default:
		return nil
	}
}

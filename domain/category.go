package domain

import "strings"

// SportCategory is the closed set of event categories the service tracks.
type SportCategory string

const (
	CategoryFootball   SportCategory = "FOOTBALL"
	CategoryRugby      SportCategory = "RUGBY"
	CategoryCricket    SportCategory = "CRICKET"
	CategoryTennis     SportCategory = "TENNIS"
	CategoryMotorsport SportCategory = "MOTORSPORT"
	CategoryBoxing     SportCategory = "BOXING"
	CategoryAthletics  SportCategory = "ATHLETICS"
	CategoryGolf       SportCategory = "GOLF"
	CategoryOther      SportCategory = "OTHER"
)

var categoryAliases = map[string]SportCategory{
	"football":    CategoryFootball,
	"soccer":      CategoryFootball,
	"rugby":       CategoryRugby,
	"rugby union": CategoryRugby,
	"cricket":     CategoryCricket,
	"tennis":      CategoryTennis,
	"motorsport":  CategoryMotorsport,
	"f1":          CategoryMotorsport,
	"formula 1":   CategoryMotorsport,
	"boxing":      CategoryBoxing,
	"athletics":   CategoryAthletics,
	"golf":        CategoryGolf,
}

// ParseSportCategory maps a free-form category or genre string to the closed
// enum. Unrecognized values fall back to Other rather than erroring; strict
// validation belongs to callers that require a known category.
func ParseSportCategory(raw string) SportCategory {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if category, ok := categoryAliases[normalized]; ok {
		return category
	}
	for alias, category := range categoryAliases {
		if strings.Contains(normalized, alias) {
			return category
		}
	}
	return CategoryOther
}

// String returns the stable tag for the category.
func (c SportCategory) String() string {
	return string(c)
}

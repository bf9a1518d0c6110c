package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// GetStringValue safely extracts a string value from a map
func GetStringValue(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case string:
			return v
		case int, int64, float64, float32, bool:
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

// GetFloat64Value safely extracts a float64 value from a map
func GetFloat64Value(data map[string]interface{}, key string) float64 {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case float32:
			return float64(v)
		case int:
			return float64(v)
		case int64:
			return float64(v)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

// GetIntValue safely extracts an int value from a map
func GetIntValue(data map[string]interface{}, key string) int {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		case float32:
			return int(v)
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return i
			}
		}
	}
	return 0
}

// GetMapValue safely extracts a nested map from a map
func GetMapValue(data map[string]interface{}, key string) map[string]interface{} {
	if val, ok := data[key]; ok {
		if m, ok := val.(map[string]interface{}); ok {
			return m
		}
	}
	return nil
}

// GetSliceValue safely extracts a slice from a map
func GetSliceValue(data map[string]interface{}, key string) []interface{} {
	if val, ok := data[key]; ok {
		if s, ok := val.([]interface{}); ok {
			return s
		}
	}
	return nil
}

// ExtractPrice strips currency symbols and separators from free text and
// parses the remaining number. Returns false when no price is present.
func ExtractPrice(priceText string) (float64, bool) {
	var b strings.Builder
	for _, r := range priceText {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}

	cleaned := strings.ReplaceAll(b.String(), ",", "")
	if cleaned == "" {
		return 0, false
	}

	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

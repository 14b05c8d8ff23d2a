package utils

import "strings"

// ToStringSlice keeps the string elements of slice.
func ToStringSlice(slice []any) []string {
	stringSlice := make([]string, 0, len(slice))
	for _, v := range slice {
		if s, ok := v.(string); ok && s != "" {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}

// ClaimStrings reads a decoded claim that is either a list or a space separated
// string. ok is false when the claim has neither shape.
func ClaimStrings(claim any) (values []string, ok bool) {
	switch v := claim.(type) {
	case []any:
		return ToStringSlice(v), true
	case []string:
		return v, true
	case string:
		return strings.Fields(v), true
	}
	return nil, false
}

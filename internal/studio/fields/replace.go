package fields

import (
	"fmt"
	"regexp"
	"strings"
)

// Record is a flat bag of field values keyed by field id.
type Record map[string]string

var tokenPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Replace substitutes every {{id}} token whose field is registered and whose
// value is present in record. Anything unresolved is left byte-for-byte.
func (r *Registry) Replace(text string, record Record) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		id := token[2 : len(token)-2]
		field, ok := r.Lookup(id)
		if !ok {
			return token
		}
		value, ok := record[id]
		if !ok {
			return token
		}
		return FormatValue(field, value)
	})
}

// Placeholders lists the distinct field ids referenced by text, in order.
func Placeholders(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// FormatValue applies truncation, case, then prefix/suffix.
func FormatValue(field DynamicField, value string) string {
	if value == "" {
		value = field.DefaultValue
	}
	f := field.Format
	if f == nil {
		return value
	}

	if f.MaxLength > 0 {
		if runes := []rune(value); len(runes) > f.MaxLength {
			value = string(runes[:f.MaxLength])
		}
	}
	switch {
	case f.Uppercase:
		value = strings.ToUpper(value)
	case f.Lowercase:
		value = strings.ToLower(value)
	}
	return f.Prefix + value + f.Suffix
}

// ============================================================
// Validation
// ============================================================

type ValidationError struct {
	FieldID   string
	FieldName string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.FieldName)
}

// Validate checks required fields against record. With no ids every
// registered field is checked. It never runs implicitly during Replace.
func (r *Registry) Validate(record Record, ids ...string) []error {
	var fieldsToCheck []DynamicField
	if len(ids) == 0 {
		fieldsToCheck = r.All()
	} else {
		for _, id := range ids {
			if f, ok := r.Lookup(id); ok {
				fieldsToCheck = append(fieldsToCheck, f)
			}
		}
	}

	var errs []error
	for _, f := range fieldsToCheck {
		if !f.Required {
			continue
		}
		if strings.TrimSpace(record[f.ID]) == "" && f.DefaultValue == "" {
			errs = append(errs, &ValidationError{FieldID: f.ID, FieldName: f.Name})
		}
	}
	return errs
}

package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wylited/usthingy/internal/domain"
)

const dateLayout = "2006-01-02"

// validateValue turns raw user input into a typed value for the given field,
// or a ValidationError describing what was wrong. Nothing here talks to the
// remote side.
func validateValue(field domain.FieldDef, raw string, now time.Time) (domain.Value, error) {
	raw = strings.TrimSpace(raw)

	switch field.Type {
	case domain.FieldText:
		if raw == "" {
			return domain.Value{}, &ValidationError{Reason: "text value must not be empty"}
		}
		return domain.Value{Kind: domain.ValueText, Text: raw, Display: raw}, nil

	case domain.FieldNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Value{}, &ValidationError{Reason: fmt.Sprintf("%q is not a number", raw)}
		}
		return domain.Value{Kind: domain.ValueNumber, Number: n, Display: raw}, nil

	case domain.FieldDate:
		var day time.Time
		if strings.EqualFold(raw, "today") {
			day = now
		} else {
			parsed, err := time.Parse(dateLayout, raw)
			if err != nil {
				return domain.Value{}, &ValidationError{Reason: fmt.Sprintf("%q is not a date, use YYYY-MM-DD or Today", raw)}
			}
			day = parsed
		}
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		return domain.Value{Kind: domain.ValueDate, Date: day, Display: day.Format(dateLayout)}, nil

	case domain.FieldSingleSelect, domain.FieldIteration:
		opt, ok := field.OptionNamed(raw)
		if !ok {
			return domain.Value{}, &ValidationError{Reason: fmt.Sprintf("%q is not an option of %s", raw, field.Name)}
		}
		return domain.Value{Kind: domain.ValueOption, OptionID: opt.ID, Display: opt.Name}, nil
	}

	return domain.Value{}, &ValidationError{Reason: fmt.Sprintf("field type %s is not editable", field.Type)}
}

// revalidateOption re-checks an option value against the field definition
// from the current snapshot. Options can be renamed or removed between the
// time a value was entered and the time it is committed.
func revalidateOption(field domain.FieldDef, value domain.Value) error {
	if value.Kind != domain.ValueOption {
		return nil
	}
	if _, ok := field.Option(value.OptionID); !ok {
		return &ValidationError{Reason: fmt.Sprintf("option %q is no longer available on %s", value.Display, field.Name)}
	}
	return nil
}

// Package transform implements the pure value formatters applied to
// evaluated data-path values before PDF fill.
package transform

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lotworks/dealdocs/internal/model"
)

// DateLayout is the canonical human-readable date output. Legal sales forms
// in the US carry MM/DD/YYYY dates.
const DateLayout = "01/02/2006"

// usPrinter formats grouped numbers for currency output.
var usPrinter = message.NewPrinter(language.AmericanEnglish)

// Apply formats v according to kind and returns the string to burn into the
// form field. Apply never panics and never refuses to produce a value: when
// the input does not fit the transform (non-numeric currency, unparseable
// date) it returns a best-effort stringification together with a non-nil
// advisory error for the caller to log. The returned string is always
// usable.
func Apply(v model.Scalar, kind model.TransformKind) (string, error) {
	switch kind {
	case "", model.TransformNone:
		return Stringify(v), nil
	case model.TransformUppercase:
		return strings.ToUpper(Stringify(v)), nil
	case model.TransformLowercase:
		return strings.ToLower(Stringify(v)), nil
	case model.TransformTitlecase:
		return titleCase(Stringify(v)), nil
	case model.TransformCurrency:
		return currency(v)
	case model.TransformDate:
		return date(v)
	}
	return Stringify(v), eris.Errorf("transform: unknown kind %q", kind)
}

// Stringify renders a scalar without any transform: numbers without
// grouping, dates as ISO dates, lists comma-joined, null as empty.
func Stringify(v model.Scalar) string {
	switch v.Kind() {
	case model.KindNull:
		return ""
	case model.KindString:
		return v.StringValue()
	case model.KindNumber:
		return strconv.FormatFloat(v.NumberValue(), 'f', -1, 64)
	case model.KindDate:
		return v.DateValue().Format("2006-01-02")
	case model.KindList:
		parts := make([]string, 0, len(v.ListValue()))
		for _, e := range v.ListValue() {
			parts = append(parts, Stringify(e))
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

// titleCase capitalizes the first letter of each whitespace-delimited token
// and lower-cases the rest. Token-internal punctuation is left alone, so
// "jane q. public" becomes "Jane Q. Public" and "o'brien" becomes "O'brien".
func titleCase(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		runes := []rune(strings.ToLower(f))
		runes[0] = unicode.ToUpper(runes[0])
		fields[i] = string(runes)
	}
	return strings.Join(fields, " ")
}

func currency(v model.Scalar) (string, error) {
	n, ok := numericValue(v)
	if !ok {
		return Stringify(v), eris.Errorf("transform: currency value is not numeric")
	}
	return usPrinter.Sprintf("$%.2f", n), nil
}

func numericValue(v model.Scalar) (float64, bool) {
	switch v.Kind() {
	case model.KindNumber:
		return v.NumberValue(), true
	case model.KindString:
		s := strings.TrimSpace(v.StringValue())
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimPrefix(s, "$")
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// dateLayouts are tried in order for string-typed date inputs.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
}

func date(v model.Scalar) (string, error) {
	switch v.Kind() {
	case model.KindDate:
		return v.DateValue().Format(DateLayout), nil
	case model.KindString:
		s := strings.TrimSpace(v.StringValue())
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format(DateLayout), nil
			}
		}
		return v.StringValue(), eris.Errorf("transform: unparseable date %q", s)
	case model.KindNumber:
		// Epoch input follows the JS Date convention: milliseconds.
		ms := int64(v.NumberValue())
		return time.UnixMilli(ms).UTC().Format(DateLayout), nil
	}
	return Stringify(v), eris.Errorf("transform: date value is not a date")
}

package model

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// Data category names. A data path's first segment must be one of these.
const (
	CategoryClient     = "client"
	CategoryCoBuyer    = "cobuyer"
	CategoryVehicle    = "vehicle"
	CategoryDeal       = "deal"
	CategoryDealership = "dealership"
	CategoryInsurance  = "insurance"
	CategoryLienHolder = "lienHolder"
)

// CategoryNames lists all data categories in declaration order.
var CategoryNames = []string{
	CategoryClient,
	CategoryCoBuyer,
	CategoryVehicle,
	CategoryDeal,
	CategoryDealership,
	CategoryInsurance,
	CategoryLienHolder,
}

// RequiredCategories are the top-level categories every deal snapshot must
// carry before document generation is allowed. The optional categories
// (cobuyer, insurance, lienHolder) have meaningful absence.
var RequiredCategories = []string{
	CategoryClient,
	CategoryVehicle,
	CategoryDeal,
	CategoryDealership,
}

// IsCategory reports whether name is a known data category.
func IsCategory(name string) bool {
	for _, c := range CategoryNames {
		if c == name {
			return true
		}
	}
	return false
}

// ScalarKind discriminates the Scalar variant.
type ScalarKind int

const (
	KindNull ScalarKind = iota
	KindString
	KindNumber
	KindDate
	KindList
)

// Scalar is a single deal-data value: a string, a number, a date, a list of
// scalars, or null. The zero value is null.
type Scalar struct {
	kind ScalarKind
	s    string
	n    float64
	t    time.Time
	list []Scalar
}

// Null returns the null scalar.
func Null() Scalar { return Scalar{} }

// String returns a string scalar.
func String(s string) Scalar { return Scalar{kind: KindString, s: s} }

// Number returns a numeric scalar.
func Number(n float64) Scalar { return Scalar{kind: KindNumber, n: n} }

// Date returns a date scalar.
func Date(t time.Time) Scalar { return Scalar{kind: KindDate, t: t} }

// List returns a list scalar over the given elements.
func List(elems ...Scalar) Scalar { return Scalar{kind: KindList, list: elems} }

// Kind returns the variant tag.
func (s Scalar) Kind() ScalarKind { return s.kind }

// IsNull reports whether the scalar is null.
func (s Scalar) IsNull() bool { return s.kind == KindNull }

// IsMissing reports whether the scalar counts as "no value" for the
// required-field policy: null or the empty string.
func (s Scalar) IsMissing() bool {
	return s.kind == KindNull || (s.kind == KindString && s.s == "")
}

// StringValue returns the string payload. Valid only for KindString.
func (s Scalar) StringValue() string { return s.s }

// NumberValue returns the numeric payload. Valid only for KindNumber.
func (s Scalar) NumberValue() float64 { return s.n }

// DateValue returns the date payload. Valid only for KindDate.
func (s Scalar) DateValue() time.Time { return s.t }

// ListValue returns the element slice. Valid only for KindList.
func (s Scalar) ListValue() []Scalar { return s.list }

// MarshalJSON renders the scalar as its natural JSON value. Dates are
// emitted as RFC 3339 strings.
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(s.s)
	case KindNumber:
		return json.Marshal(s.n)
	case KindDate:
		return json.Marshal(s.t.Format(time.RFC3339))
	case KindList:
		return json.Marshal(s.list)
	}
	return nil, eris.Errorf("model: unknown scalar kind %d", s.kind)
}

// UnmarshalJSON accepts null, strings, numbers, booleans, and arrays.
// Strings that parse as RFC 3339 timestamps become date scalars, matching
// how the record store serializes dates. Booleans are folded to the strings
// "true"/"false" since form fields are textual. Objects are rejected.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "model: unmarshal scalar")
	}
	v, err := scalarFromAny(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func scalarFromAny(raw any) (Scalar, error) {
	switch v := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return Date(t), nil
		}
		return String(v), nil
	case float64:
		return Number(v), nil
	case bool:
		return String(strconv.FormatBool(v)), nil
	case []any:
		elems := make([]Scalar, 0, len(v))
		for _, e := range v {
			es, err := scalarFromAny(e)
			if err != nil {
				return Null(), err
			}
			elems = append(elems, es)
		}
		return List(elems...), nil
	}
	return Null(), eris.Errorf("model: unsupported scalar value type %T", raw)
}

// Fields is one data category: an open mapping from field name to scalar.
type Fields map[string]Scalar

// DealData is the evaluation context for document preparation: a fixed set
// of named categories. A nil category map means the category object itself
// is absent from the snapshot, which is distinct from a present-but-empty
// category and drives the co-buyer relaxation rule.
type DealData struct {
	Client     Fields `json:"client,omitempty"`
	CoBuyer    Fields `json:"cobuyer,omitempty"`
	Vehicle    Fields `json:"vehicle,omitempty"`
	Deal       Fields `json:"deal,omitempty"`
	Dealership Fields `json:"dealership,omitempty"`
	Insurance  Fields `json:"insurance,omitempty"`
	LienHolder Fields `json:"lienHolder,omitempty"`
}

// Category returns the named category's fields and whether the category
// object is present in the snapshot. Unknown names report absent.
func (d *DealData) Category(name string) (Fields, bool) {
	if d == nil {
		return nil, false
	}
	var f Fields
	switch name {
	case CategoryClient:
		f = d.Client
	case CategoryCoBuyer:
		f = d.CoBuyer
	case CategoryVehicle:
		f = d.Vehicle
	case CategoryDeal:
		f = d.Deal
	case CategoryDealership:
		f = d.Dealership
	case CategoryInsurance:
		f = d.Insurance
	case CategoryLienHolder:
		f = d.LienHolder
	default:
		return nil, false
	}
	return f, f != nil
}

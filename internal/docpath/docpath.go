// Package docpath resolves dotted data-path strings against a deal-data
// snapshot and classifies signature/initial placeholder tokens.
package docpath

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lotworks/dealdocs/internal/model"
)

// placeholderRe matches the signing-subsystem wire format SIGNATURE_<ROLE>
// and INITIAL_<ROLE>, case-insensitive, role free text.
var placeholderRe = regexp.MustCompile(`^(?i:signature|initial)_.+$`)

// IsSpecialPlaceholder reports whether path is a signature or initial
// placeholder token rather than a data path. Callers must check this before
// Evaluate; placeholders never touch deal data.
func IsSpecialPlaceholder(path string) bool {
	return placeholderRe.MatchString(strings.TrimSpace(path))
}

// Path is a parsed data path: <category>.<field> with optional [index].
type Path struct {
	Category string
	Field    string
	Index    int // -1 when no index
}

// Error describes why a path could not be parsed or evaluated. These are
// structural problems with the mapping definition, not data absence.
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("docpath: %q: %s", e.Path, e.Reason)
}

func newError(path, format string, args ...any) *Error {
	return &Error{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Parse validates and decomposes a data path. The grammar is
// <category>.<field> where category is one of the fixed data categories and
// field may carry a single trailing [n] index.
func Parse(path string) (Path, error) {
	p := Path{Index: -1}
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return p, newError(path, "empty path")
	}
	if IsSpecialPlaceholder(trimmed) {
		return p, newError(path, "placeholder token is not a data path")
	}

	cat, rest, ok := strings.Cut(trimmed, ".")
	if !ok || rest == "" {
		return p, newError(path, "expected <category>.<field>")
	}
	if !model.IsCategory(cat) {
		return p, newError(path, "unknown category %q", cat)
	}
	if strings.Contains(rest, ".") {
		return p, newError(path, "nested paths are not supported")
	}

	field := rest
	if i := strings.IndexByte(rest, '['); i >= 0 {
		if !strings.HasSuffix(rest, "]") {
			return p, newError(path, "unterminated index")
		}
		idxStr := rest[i+1 : len(rest)-1]
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 {
			return p, newError(path, "invalid index %q", idxStr)
		}
		field = rest[:i]
		p.Index = idx
	}
	if field == "" {
		return p, newError(path, "empty field name")
	}

	p.Category = cat
	p.Field = field
	return p, nil
}

// Evaluate resolves path against data. Absence is not an error: a missing
// category or a category-present-but-field-missing both yield the null
// scalar. Errors are reserved for malformed paths, unknown categories, and
// indexing a non-list value. Evaluate is pure: it never mutates data.
func Evaluate(path string, data *model.DealData) (model.Scalar, error) {
	p, err := Parse(path)
	if err != nil {
		return model.Null(), err
	}

	fields, present := data.Category(p.Category)
	if !present {
		return model.Null(), nil
	}

	v, ok := fields[p.Field]
	if !ok {
		return model.Null(), nil
	}

	if p.Index < 0 {
		return v, nil
	}

	if v.IsNull() {
		return model.Null(), nil
	}
	if v.Kind() != model.KindList {
		return model.Null(), newError(path, "field %q is not a list", p.Field)
	}
	elems := v.ListValue()
	if p.Index >= len(elems) {
		return model.Null(), nil
	}
	return elems[p.Index], nil
}

package validate

import (
	"fmt"
	"strings"
)

// FieldError names the field a rule rejected.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errors collects one FieldError per failing field, in table order.
type Errors []*FieldError

func (es Errors) Error() string {
	parts := make([]string, 0, len(es))
	for _, e := range es {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

// Field returns the message for name, if any.
func (es Errors) Field(name string) (string, bool) {
	for _, e := range es {
		if e.Field == name {
			return e.Message, true
		}
	}
	return "", false
}

// Map flattens the errors for display.
func (es Errors) Map() map[string]string {
	out := make(map[string]string, len(es))
	for _, e := range es {
		out[e.Field] = e.Message
	}
	return out
}

// Field binds an ordered list of rules to one form field.
type Field struct {
	Name  string
	Rules []Rule
}

// F is shorthand for building a Field.
func F(name string, rules ...Rule) Field {
	return Field{Name: name, Rules: rules}
}

// Cross checks relationships between fields, e.g. password confirmation.
type Cross struct {
	Field string
	Check func(values map[string]string) error
}

// Table is evaluated field by field in declaration order; within a field,
// the first failing rule wins.
type Table struct {
	Fields []Field
	Cross  []Cross
}

// NewTable builds a table from fields.
func NewTable(fields ...Field) Table {
	return Table{Fields: fields}
}

// WithCross appends cross-field checks evaluated after the field rules.
func (t Table) WithCross(checks ...Cross) Table {
	t.Cross = append(append([]Cross(nil), t.Cross...), checks...)
	return t
}

// Validate returns the first failure, or nil when every field passes.
func (t Table) Validate(values map[string]string) error {
	for _, f := range t.Fields {
		if err := checkField(f, values[f.Name]); err != nil {
			return err
		}
	}
	for _, c := range t.Cross {
		if err := c.Check(values); err != nil {
			return &FieldError{Field: c.Field, Message: err.Error()}
		}
	}
	return nil
}

// ValidateAll returns every failing field, or nil when every field passes.
func (t Table) ValidateAll(values map[string]string) error {
	var errs Errors
	failed := make(map[string]bool)
	for _, f := range t.Fields {
		if err := checkField(f, values[f.Name]); err != nil {
			errs = append(errs, err)
			failed[f.Name] = true
		}
	}
	for _, c := range t.Cross {
		if failed[c.Field] {
			continue
		}
		if err := c.Check(values); err != nil {
			errs = append(errs, &FieldError{Field: c.Field, Message: err.Error()})
			failed[c.Field] = true
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func checkField(f Field, value string) *FieldError {
	for _, rule := range f.Rules {
		if err := rule(value); err != nil {
			return &FieldError{Field: f.Name, Message: err.Error()}
		}
	}
	return nil
}

// Matches requires field to equal other, e.g. confirm_password.
func Matches(field, other, message string) Cross {
	return Cross{
		Field: field,
		Check: func(values map[string]string) error {
			if values[field] != values[other] {
				return fmt.Errorf("%s", message)
			}
			return nil
		},
	}
}

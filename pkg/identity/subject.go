package identity

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// ClassIdentifier is the identifier of subjects representing a whole type
const ClassIdentifier = "class"

// SubjectIdentifiable objects expose an explicit subject identifier
type SubjectIdentifiable interface {
	SubjectIdentifier() string
}

// Identifiable objects expose a generic identifier accessor
type Identifiable interface {
	GetID() string
}

// SubjectIdentity references what is being protected. Object is the live
// instance when known and does not take part in equality.
type SubjectIdentity struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
	Object     any    `json:"-"`
}

// NewSubjectIdentity validates and builds a subject identity
func NewSubjectIdentity(typ, identifier string, object any) (SubjectIdentity, error) {
	if typ == "" {
		return SubjectIdentity{}, ErrEmptyType
	}
	if identifier == "" {
		return SubjectIdentity{}, ErrEmptyIdentifier
	}
	return SubjectIdentity{Type: typ, Identifier: identifier, Object: object}, nil
}

// ClassSubject returns the class level subject of a type
func ClassSubject(typ string) SubjectIdentity {
	return SubjectIdentity{Type: typ, Identifier: ClassIdentifier}
}

// Equals compares type and identifier only
func (s SubjectIdentity) Equals(other SubjectIdentity) bool {
	return s.Type == other.Type && s.Identifier == other.Identifier
}

// IsClass reports whether the subject represents any instance of its type
func (s SubjectIdentity) IsClass() bool {
	return s.Identifier == ClassIdentifier
}

// CacheID is the key used by the permission and sharing caches
func (s SubjectIdentity) CacheID() string {
	return s.Type + ":" + s.Identifier
}

func (s SubjectIdentity) String() string {
	return s.CacheID()
}

// SubjectFrom builds a subject identity from a SubjectIdentity, a type name, or
// an object exposing an identifier.
func SubjectFrom(v any) (SubjectIdentity, error) {
	switch s := v.(type) {
	case nil:
		return SubjectIdentity{}, fmt.Errorf("%w: nil subject", ErrInvalidSubject)
	case SubjectIdentity:
		return NewSubjectIdentity(s.Type, s.Identifier, s.Object)
	case *SubjectIdentity:
		if s == nil {
			return SubjectIdentity{}, fmt.Errorf("%w: nil subject", ErrInvalidSubject)
		}
		return NewSubjectIdentity(s.Type, s.Identifier, s.Object)
	case FieldVote:
		return s.subject()
	case *FieldVote:
		if s == nil {
			return SubjectIdentity{}, fmt.Errorf("%w: nil field vote", ErrInvalidSubject)
		}
		return s.subject()
	case string:
		if s == "" {
			return SubjectIdentity{}, fmt.Errorf("%w: %w", ErrInvalidSubject, ErrEmptyType)
		}
		return ClassSubject(s), nil
	}
	return SubjectFromObject(v)
}

// SubjectFromObject builds a subject identity from a live object, preferring
// SubjectIdentifier() over GetID().
func SubjectFromObject(obj any) (SubjectIdentity, error) {
	caps := CapabilitiesOf(obj)
	var id string
	switch {
	case caps.Has(CapSubjectIdentifiable):
		id = obj.(SubjectIdentifiable).SubjectIdentifier()
	case caps.Has(CapIdentifiable):
		id = obj.(Identifiable).GetID()
	default:
		return SubjectIdentity{}, fmt.Errorf("%w: %T exposes no identifier", ErrInvalidSubject, obj)
	}

	subject, err := NewSubjectIdentity(TypeOf(obj), id, obj)
	if err != nil {
		return SubjectIdentity{}, fmt.Errorf("%w: %w", ErrInvalidSubject, err)
	}
	return subject, nil
}

// FieldVote is a permission vote on a single field of a subject
type FieldVote struct {
	Subject SubjectIdentity
	Field   string
}

// subject validates the vote's subject and field
func (fv FieldVote) subject() (SubjectIdentity, error) {
	if fv.Field == "" {
		return SubjectIdentity{}, fmt.Errorf("%w: empty field", ErrInvalidSubject)
	}
	s, err := NewSubjectIdentity(fv.Subject.Type, fv.Subject.Identifier, fv.Subject.Object)
	if err != nil {
		return SubjectIdentity{}, fmt.Errorf("%w: %w", ErrInvalidSubject, err)
	}
	return s, nil
}

// NewFieldVote builds a field vote from any value accepted by SubjectFrom
func NewFieldVote(subject any, field string) (FieldVote, error) {
	if field == "" {
		return FieldVote{}, fmt.Errorf("%w: empty field", ErrInvalidSubject)
	}
	s, err := SubjectFrom(subject)
	if err != nil {
		return FieldVote{}, err
	}
	return FieldVote{Subject: s, Field: field}, nil
}

// SubjectAndField normalizes v to an optional subject and a field. A nil v is
// a global check and yields a nil subject.
func SubjectAndField(v any) (*SubjectIdentity, string, error) {
	switch fv := v.(type) {
	case nil:
		return nil, "", nil
	case FieldVote:
		s, err := fv.subject()
		if err != nil {
			return nil, "", err
		}
		return &s, fv.Field, nil
	case *FieldVote:
		if fv == nil {
			return nil, "", nil
		}
		s, err := fv.subject()
		if err != nil {
			return nil, "", err
		}
		return &s, fv.Field, nil
	}
	s, err := SubjectFrom(v)
	if err != nil {
		return nil, "", err
	}
	return &s, "", nil
}

// PropertyAccessor lets an object resolve its own properties
type PropertyAccessor interface {
	Property(name string) (any, bool)
}

// PropertyValue resolves a dotted property path on obj. Each segment is looked
// up through PropertyAccessor, then an exported getter (Name() or GetName()),
// then an exported struct field with a case-insensitive name match.
func PropertyValue(obj any, path string) (any, error) {
	current := obj
	for _, segment := range strings.Split(path, ".") {
		if current == nil {
			return nil, nil
		}
		value, err := propertySegment(current, segment)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		current = value
	}
	return current, nil
}

func propertySegment(obj any, name string) (any, error) {
	if accessor, ok := obj.(PropertyAccessor); ok {
		if value, found := accessor.Property(name); found {
			return value, nil
		}
	}

	v := reflect.ValueOf(obj)
	exported := exportName(name)
	for _, method := range []string{exported, "Get" + exported} {
		m := v.MethodByName(method)
		if m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() >= 1 {
			return nilIfEmpty(m.Call(nil)[0]), nil
		}
	}

	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		f := v.FieldByNameFunc(func(field string) bool {
			return strings.EqualFold(field, name)
		})
		if f.IsValid() && f.CanInterface() {
			return nilIfEmpty(f), nil
		}
	}
	return nil, fmt.Errorf("%w: %q on %T", ErrPropertyNotFound, name, obj)
}

func nilIfEmpty(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil
		}
	}
	return v.Interface()
}

func exportName(name string) string {
	if name == "" {
		return name
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

package record

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrInvalidUTF8 reports a string value that cannot be written faithfully.
var ErrInvalidUTF8 = errors.New("invalid utf-8 in string value")

// SerializationError identifies the record and field that cannot be written.
type SerializationError struct {
	RecordID string
	Field    string
	Err      error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("record %s field %s: %v", e.RecordID, e.Field, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// ValidateJob checks that every value in r can be serialized without loss.
func ValidateJob(r *JobRecord) error {
	return validate(r.ID(), reflect.ValueOf(r).Elem(), "")
}

// ValidateCompany checks that every value in r can be serialized without loss.
func ValidateCompany(r *CompanyRecord) error {
	return validate(r.ID(), reflect.ValueOf(r).Elem(), "")
}

// ValidateListing checks a raw listing card before it is written.
func ValidateListing(l *Listing) error {
	return validate(deref(l.JobURL), reflect.ValueOf(l).Elem(), "")
}

func validate(id string, v reflect.Value, path string) error {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		return validate(id, v.Elem(), path)
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return &SerializationError{RecordID: id, Field: path, Err: ErrInvalidUTF8}
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if err := validate(id, v.Field(i), join(path, jsonName(t.Field(i)))); err != nil {
				return err
			}
		}
	case reflect.Map:
		keys := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !utf8.ValidString(k) {
				return &SerializationError{RecordID: id, Field: path, Err: ErrInvalidUTF8}
			}
			if err := validate(id, v.MapIndex(reflect.ValueOf(k)), join(path, k)); err != nil {
				return err
			}
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			if err := validate(id, v.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return f.Name
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// Package ptrx builds and reads the pointer fields used for nullable
// message columns.
package ptrx

import "time"

// String returns a pointer to v.
func String(v string) *string {
	return &v
}

// StringValue returns the pointed-to string or "".
func StringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// Time returns a pointer to v.
func Time(v time.Time) *time.Time {
	return &v
}

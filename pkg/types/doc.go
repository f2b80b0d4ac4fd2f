// Package types defines the value types shared by the tracker: timestamps and
// calendars, the Aspect contract and its registry, the built-in note aspect,
// backend configuration, and the standard error types.
package types

// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing events and context variables.
// They are not intended for production usage.
package testutil

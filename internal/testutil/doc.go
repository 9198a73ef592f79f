// Package testutil provides testing utilities and helpers for CellGen tests.
//
// This package includes:
// - Mock HTTP servers and canned provider replies
// - Temporary file and config helpers
// - Assertion utilities
// - Default test configurations
package testutil

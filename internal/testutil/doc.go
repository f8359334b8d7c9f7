// Package testutil provides fluent builders used across package tests.
package testutil

// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing telemetry events and seeding buses
// with synthetic history. These helpers are intentionally minimal and avoid
// adding third‑party dependencies. They are not intended for production usage.
package testutil

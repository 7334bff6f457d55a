// Package modules registers the import schemas of every back-office module
// with the core registry. Import this package to ensure all schemas are
// registered.
package modules

// This file exists to provide a single import point.
// Each module file uses init() to register its schemas.

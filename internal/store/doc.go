// Package store owns the harvested result set and the resume checkpoint.
// Both live in JSON files that are replaced atomically. Remote copies of the
// result snapshot go through the BlobStore seam; this package must not import
// cloud clients or database drivers.
package store

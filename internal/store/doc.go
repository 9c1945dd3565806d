// Package store groups the persistence implementations for the worker
// registry, target queue and raw post archive. The postgres subpackage is
// the production backend; the memory subpackage backs local development and
// tests. Both implement the interfaces declared in the leadscout package.
package store

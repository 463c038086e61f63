// Package resolver expands indirect references into concrete objects.
//
// Object loading stays deferred: nothing is resolved until a caller asks
// for it, and deep resolution walks dictionaries and arrays with a cycle
// guard and a depth cap so malformed reference graphs terminate.
package resolver

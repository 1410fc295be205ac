// Package testing provides in-memory fakes for exercising the multitopic
// consumer without a broker: a scripted child consumer, a child factory, and
// a mutable lookup service.
//
// Import it with an alias to avoid clashing with the standard library:
//
//	mttest "github.com/arloliu/multitopic/testing"
package testing

// Package directory resolves cluster membership at process startup: how
// a node finds its bootstrap peers and how it advertises itself once
// joined, spec section 6's register/lookup/list. The teacher's
// bootstrap.NewRoute53Bootstrap/NewStaticBootstrap (referenced, not
// retrieved, from cmd/node/main.go) name the two backends this package
// rebuilds: a static peer list for single-host/test runs and a Route 53
// private-hosted-zone directory for real clusters.
package directory

import "context"

// Directory discovers bootstrap peers at startup and keeps this node's
// own entry current for the life of the process.
type Directory interface {
	// Discover returns addresses of live peers to bootstrap against. An
	// empty result (with a nil error) means this node should create a
	// new ring rather than join one.
	Discover(ctx context.Context) ([]string, error)

	// Register advertises addr as a live member under id.
	Register(ctx context.Context, id, addr string) error

	// Deregister removes this node's entry, best-effort, on shutdown.
	Deregister(ctx context.Context, id string) error

	// List returns every currently-registered member's address.
	List(ctx context.Context) ([]string, error)
}

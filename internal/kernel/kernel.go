// Package kernel is the statically-typed stand-in for the dynamic
// serialized closures described in spec section 9's Design Notes: instead
// of shipping an opaque map_fn/reduce_fn blob over the wire, a job names a
// registered kernel by a handle (a string identifier), and every worker
// process holds the same registry so invoke(handle, key, value) is
// reproducible regardless of which worker runs it.
package kernel

import "fmt"

// KV is one key/value pair, the unit map_fn emits and reduce_fn consumes.
type KV struct {
	Key   []byte
	Value []byte
}

// MapFunc processes one input (in_key, in_value) pair and emits zero or
// more intermediate pairs, spec section 2's map_fn.
type MapFunc func(inKey, inValue []byte) ([]KV, error)

// ReduceFunc folds every value collected for one intermediate key into a
// single output value, spec section 2's reduce_fn.
type ReduceFunc func(outKey []byte, values [][]byte) ([]byte, error)

// Handle names a registered (MapFunc, ReduceFunc) pair. It is the
// statically-typed analogue of the source's serialized closure: opaque to
// everything except the registry, and reproducible across any worker that
// shares the same build.
type Handle string

// Registry holds the kernels every node process compiles in. It has no
// mutable state after construction, so a *Registry is safe to share across
// goroutines without locking.
type Registry struct {
	kernels map[Handle]kernelPair
}

type kernelPair struct {
	mapFn    MapFunc
	reduceFn ReduceFunc
}

// NewRegistry builds an empty registry; call Register for each kernel a
// process should be able to run.
func NewRegistry() *Registry {
	return &Registry{kernels: make(map[Handle]kernelPair)}
}

// Register associates a handle with a map/reduce pair. Re-registering the
// same handle overwrites the previous binding, which is only expected to
// happen during process initialization.
func (r *Registry) Register(h Handle, mapFn MapFunc, reduceFn ReduceFunc) {
	r.kernels[h] = kernelPair{mapFn: mapFn, reduceFn: reduceFn}
}

// Has reports whether h is a known handle.
func (r *Registry) Has(h Handle) bool {
	_, ok := r.kernels[h]
	return ok
}

// InvokeMap runs the map_fn registered under h. This is invoke(H, key,
// value) from spec section 9: reproducible across any worker holding the
// same registry.
func (r *Registry) InvokeMap(h Handle, inKey, inValue []byte) ([]KV, error) {
	k, ok := r.kernels[h]
	if !ok {
		return nil, fmt.Errorf("kernel: unknown map handle %q", h)
	}
	return k.mapFn(inKey, inValue)
}

// InvokeReduce runs the reduce_fn registered under h.
func (r *Registry) InvokeReduce(h Handle, outKey []byte, values [][]byte) ([]byte, error) {
	k, ok := r.kernels[h]
	if !ok {
		return nil, fmt.Errorf("kernel: unknown reduce handle %q", h)
	}
	return k.reduceFn(outKey, values)
}

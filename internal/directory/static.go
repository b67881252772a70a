package directory

import "context"

// Static is a fixed, process-config-supplied peer list: the degenerate
// directory used for single-host development and the test suite, where
// there is no real name service to ask.
type Static struct {
	peers []string
}

func NewStatic(peers []string) *Static {
	cp := make([]string, len(peers))
	copy(cp, peers)
	return &Static{peers: cp}
}

func (s *Static) Discover(ctx context.Context) ([]string, error) {
	return s.List(ctx)
}

func (s *Static) Register(ctx context.Context, id, addr string) error {
	return nil
}

func (s *Static) Deregister(ctx context.Context, id string) error {
	return nil
}

func (s *Static) List(ctx context.Context) ([]string, error) {
	out := make([]string, len(s.peers))
	copy(out, s.peers)
	return out, nil
}

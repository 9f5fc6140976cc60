package gate

import "github.com/cinderfile/cinder/internal/domain"

// Registry maps a persisted gate-box kind tag back to a concrete
// domain.GateVerifier, letting the orchestrator work generically over
// domain.GateVerifier (the interface) while storage only ever sees bytes
// plus a kind tag.
type Registry struct {
	decoders map[string]func([]byte) (domain.GateVerifier, error)
}

// NewRegistry returns a Registry with the quiz and password gate modes
// registered.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[string]func([]byte) (domain.GateVerifier, error))}
	r.Register("quiz", func(b []byte) (domain.GateVerifier, error) {
		g, err := DecodeQuizGate(b)
		return g, err
	})
	r.Register("password", func(b []byte) (domain.GateVerifier, error) {
		g, err := DecodePasswordGate(b)
		return g, err
	})
	return r
}

// Register adds or replaces the decoder for kind.
func (r *Registry) Register(kind string, decode func([]byte) (domain.GateVerifier, error)) {
	r.decoders[kind] = decode
}

// Decode reconstructs a domain.GateVerifier for the given kind tag and
// encoded bytes.
func (r *Registry) Decode(kind string, data []byte) (domain.GateVerifier, error) {
	decode, ok := r.decoders[kind]
	if !ok {
		return nil, ErrUnknownKind
	}
	return decode(data)
}

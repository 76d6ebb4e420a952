package oracle

// ProofVerifier validates a cross-source attestation binding (asset, price).
// A nil/empty proof means the submission is trusted without attestation.
type ProofVerifier interface {
	Verify(asset string, price uint64, proof []byte) bool
}

// AcceptAllVerifier is the reference stub: every submission verifies,
// regardless of proof content. Callers must not assume real verification
// occurs until a chain-specific implementation is supplied.
type AcceptAllVerifier struct{}

func (AcceptAllVerifier) Verify(string, uint64, []byte) bool { return true }

// SourceWeigher assigns a trust weight in [0,100] to a reporter's submission.
// Accuracy-based weighting is a future extension point.
type SourceWeigher interface {
	Weight(reporter, asset string) uint32
}

// ConstantWeigher weighs every source the same.
type ConstantWeigher struct {
	W uint32
}

func (w ConstantWeigher) Weight(string, string) uint32 { return w.W }

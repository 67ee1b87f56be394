package rental

// Caller is the identity submitting an operation. Signed is supplied by the
// host after signature verification; the engine never inspects signatures.
type Caller struct {
	Address [20]byte
	Signed  bool
}

// SignedCaller builds a caller whose signature was verified by the host.
func SignedCaller(addr [20]byte) Caller {
	return Caller{Address: addr, Signed: true}
}

func requireSigner(c Caller) error {
	if !c.Signed {
		return ErrNoSigner
	}
	return nil
}

func requireOwner(rec *Record, c Caller) error {
	if rec == nil || rec.Owner != c.Address {
		return ErrNotOwner
	}
	return nil
}

func requireAddress(presented, stored [20]byte) error {
	if presented != stored {
		return ErrWrongAddress
	}
	return nil
}

func requireDerived(tag []byte, ref RecordRef, owner [20]byte) error {
	if !VerifyAddress(ref.Address, ref.Bump, tag, owner) {
		return ErrAddressMismatch
	}
	return nil
}

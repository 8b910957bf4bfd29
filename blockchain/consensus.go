package blockchain

// ResolveFork applies the longest valid chain rule. A candidate that is not
// strictly longer than local is ignored without error, so equal length
// forks keep the local chain. Otherwise the candidate is validated in full
// and adopted only if every block passes; it reports whether the returned
// chain is the candidate.
//
// Any peer offering a longer valid chain wins. There is no defence against a
// peer that does the work to forge one.
func (v *Validator) ResolveFork(local *Chain, candidate []*Block) (*Chain, bool, error) {
	if len(candidate) <= local.Len() {
		return local, false, nil
	}

	chain, err := v.ValidateChain(candidate)
	if err != nil {
		return local, false, err
	}

	return chain, true, nil
}

package blockchain

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedBlock          = errors.New("malformed block")
	ErrMalformedTransaction    = errors.New("malformed transaction")
	ErrLinkMismatch            = errors.New("block does not extend chain tip")
	ErrSignatureInvalid        = errors.New("signature invalid")
	ErrProofOfWorkInsufficient = errors.New("proof of work insufficient")

	// ErrHashMismatch is reported when a block's hash field differs from the
	// recomputed digest. It matches ErrSignatureInvalid under errors.Is.
	ErrHashMismatch = fmt.Errorf("%w: block hash mismatch", ErrSignatureInvalid)
)

// Stage is the validation step at which a unit was rejected.
type Stage string

const (
	StageReceived      Stage = "received"
	StageStructural    Stage = "structural"
	StageCryptographic Stage = "cryptographic"
)

// ValidationError describes why a transaction or block was rejected.
// errors.Is matches it against its Kind.
type ValidationError struct {
	Stage  Stage
	Kind   error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s check failed: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s check failed: %v: %s", e.Stage, e.Kind, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Kind }

func rejectf(stage Stage, kind error, format string, args ...any) *ValidationError {
	return &ValidationError{Stage: stage, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Reason maps an error to a short stable label used by metrics and API
// responses.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedBlock):
		return "malformed_block"
	case errors.Is(err, ErrMalformedTransaction):
		return "malformed_transaction"
	case errors.Is(err, ErrLinkMismatch):
		return "link_mismatch"
	case errors.Is(err, ErrHashMismatch):
		return "hash_mismatch"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrProofOfWorkInsufficient):
		return "proof_of_work_insufficient"
	default:
		return "internal"
	}
}

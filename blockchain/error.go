package blockchain

import (
	"github.com/pkg/errors"
)

// These constants are used to identify a specific RuleError.
var (
	// ErrDuplicateBlock indicates a block with the same hash already
	// exists.
	ErrDuplicateBlock = newRuleError("ErrDuplicateBlock")

	// ErrMissingParent indicates the previous block of a header is not
	// known to the chain.
	ErrMissingParent = newRuleError("ErrMissingParent")

	// ErrBadMerkleRoot indicates the calculated merkle root does not match
	// the expected value.
	ErrBadMerkleRoot = newRuleError("ErrBadMerkleRoot")

	// ErrMalformedTree indicates the hashes and flag bits of a partial
	// merkle tree do not describe a tree of the claimed transaction count.
	ErrMalformedTree = newRuleError("ErrMalformedTree")

	// ErrHighHash indicates the block does not hash to a value which is
	// lower than the required target difficultly.
	ErrHighHash = newRuleError("ErrHighHash")

	// ErrTargetOutOfRange indicates the target encoded in the header bits
	// is not positive or above the proof of work limit.
	ErrTargetOutOfRange = newRuleError("ErrTargetOutOfRange")

	// ErrTimeTooNew indicates the time is too far in the future as
	// compared the current time.
	ErrTimeTooNew = newRuleError("ErrTimeTooNew")

	// ErrUnexpectedDifficulty indicates specified bits do not align with
	// the expected value of the difficulty retarget rules.
	ErrUnexpectedDifficulty = newRuleError("ErrUnexpectedDifficulty")

	// ErrBadCheckpoint indicates a block that is expected to be at a
	// checkpoint height does not match the expected one.
	ErrBadCheckpoint = newRuleError("ErrBadCheckpoint")

	// ErrForkTooOld indicates a block is attempting to fork the chain
	// before the most recent checkpoint.
	ErrForkTooOld = newRuleError("ErrForkTooOld")
)

// RuleError identifies a rule violation. Merkle blocks and headers that
// fail with a RuleError are discarded and count against the peer that sent
// them.
type RuleError struct {
	message string
	inner   error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	if e.inner != nil {
		return e.message + ": " + e.inner.Error()
	}
	return e.message
}

// Unwrap satisfies the errors.Unwrap interface
func (e RuleError) Unwrap() error {
	return e.inner
}

// Cause satisfies the github.com/pkg/errors.Cause interface
func (e RuleError) Cause() error {
	return e.inner
}

func newRuleError(message string) RuleError {
	return RuleError{message: message, inner: nil}
}

// IsRuleError reports whether err is, or wraps, a RuleError.
func IsRuleError(err error) bool {
	var ruleErr RuleError
	return errors.As(err, &ruleErr)
}

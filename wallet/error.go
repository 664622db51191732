package wallet

import "github.com/pkg/errors"

var (
	// ErrInsufficientFunds is returned when the spendable outputs of the
	// wallet do not cover the requested amount plus fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNoOutputs is returned when a transaction is requested without
	// outputs.
	ErrNoOutputs = errors.New("transaction has no outputs")

	// ErrDustOutput is returned when an output amount is too small to be
	// relayed.
	ErrDustOutput = errors.New("output amount is dust")

	// ErrWrongNetwork is returned when a payment address belongs to
	// another network.
	ErrWrongNetwork = errors.New("address is for the wrong network")

	// ErrPaymentRequestExpired is returned when building a transaction
	// for an expired payment request.
	ErrPaymentRequestExpired = errors.New("payment request expired")

	// ErrSeedMismatch is returned when the seed given for signing does
	// not derive the wallet's account key.
	ErrSeedMismatch = errors.New("seed does not belong to this wallet")

	// ErrMissingKeys is returned when the wallet cannot sign every input
	// of a transaction it built.
	ErrMissingKeys = errors.New("the wallet has no key for a transaction input")

	// ErrFeeNotSettled is returned when the fee of a signed transaction
	// keeps missing the fee for its size.
	ErrFeeNotSettled = errors.New("fee did not settle on the signed transaction size")
)

package reconcile

import "errors"

var (
	ErrLockContended     = errors.New("reconcile: customer is being reconciled by another request")
	ErrSessionUnpaid     = errors.New("reconcile: checkout session is not paid")
	ErrSessionExpired    = errors.New("reconcile: linking window for the checkout session has closed")
	ErrSessionIncomplete = errors.New("reconcile: checkout session missing customer or email")
	ErrEmailMismatch     = errors.New("reconcile: session email does not match account email")
	ErrCustomerConflict  = errors.New("reconcile: customer already belongs to another account")
	ErrNothingToTransfer = errors.New("reconcile: one-time purchase cannot be transferred to an existing billing account")
)

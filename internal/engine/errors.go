package engine

import (
	"fmt"

	"github.com/aerugo/simcash/internal/money"
)

// SubmitError kinds.
const (
	SubmitUnknownAgent       = "unknown_agent"
	SubmitNonPositiveAmount  = "non_positive_amount"
	SubmitDeadlineInPast     = "deadline_in_past"
	SubmitInvalidPriority    = "invalid_priority"
	SubmitCollateralCapacity = "collateral_capacity"
	SubmitCollateralInUse    = "collateral_in_use"
)

// SubmitError is a rejected submission. Submissions that fail leave the
// engine state untouched.
type SubmitError struct {
	Kind   string
	Detail string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit rejected (%s): %s", e.Kind, e.Detail)
}

func errUnknownAgent(id string) error {
	return &SubmitError{Kind: SubmitUnknownAgent, Detail: fmt.Sprintf("agent %q does not exist", id)}
}

func errNonPositiveAmount(amount money.Cents) error {
	return &SubmitError{Kind: SubmitNonPositiveAmount, Detail: fmt.Sprintf("amount %d is not positive", amount)}
}

func errDeadlineInPast(deadline, tick int64) error {
	return &SubmitError{Kind: SubmitDeadlineInPast, Detail: fmt.Sprintf("deadline %d before current tick %d", deadline, tick)}
}

func errInvalidPriority(p int) error {
	return &SubmitError{Kind: SubmitInvalidPriority, Detail: fmt.Sprintf("priority %d outside [0,10]", p)}
}

func errCollateralCapacity(id string) error {
	return &SubmitError{Kind: SubmitCollateralCapacity, Detail: fmt.Sprintf("agent %q exceeds collateral capacity", id)}
}

func errCollateralInUse(id string) error {
	return &SubmitError{Kind: SubmitCollateralInUse, Detail: fmt.Sprintf("agent %q collateral backs current overdraft", id)}
}

package model

// Step is a state of the checkout flow.
type Step int

// Checkout steps in the order the shopper passes through them.
const (
	StepCart Step = iota
	StepContact
	StepShipping
	StepPayment
)

// String returns the step name (for logging and rendering).
func (s Step) String() string {
	switch s {
	case StepCart:
		return "cart"
	case StepContact:
		return "contact"
	case StepShipping:
		return "shipping"
	case StepPayment:
		return "payment"
	default:
		return "unknown"
	}
}

// IsFinal reports whether advancing past this step submits the order.
func (s Step) IsFinal() bool {
	return s == StepPayment
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	return s >= StepCart && s <= StepPayment
}

package port

// QueryValidator decides whether a statement may reach the warehouse.
// A non-nil error carries the reason the statement was refused.
type QueryValidator interface {
	Validate(sql string) error
}

// ValidatorFunc lets a plain function act as a QueryValidator.
type ValidatorFunc func(sql string) error

func (f ValidatorFunc) Validate(sql string) error { return f(sql) }

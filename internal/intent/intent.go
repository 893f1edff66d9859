// Package intent turns a free-text message into one of a closed set of commands.
package intent

import "github.com/shopspring/decimal"

// Intent is implemented only by the types in this package.
type Intent interface {
	Name() string
	isIntent()
}

type Search struct {
	Query string
}

type Watch struct {
	EventName string
	MaxPrice  decimal.NullDecimal
	Quantity  int
}

// Confirm accepts a pending watch proposal.
type Confirm struct{}

type List struct{}

type Cancel struct {
	EventName string
}

type Status struct{}

type Help struct{}

// Clarify is returned when the command is recognised but a required field is missing.
type Clarify struct {
	For     string
	Message string
}

func (Search) Name() string  { return "search" }
func (Watch) Name() string   { return "watch" }
func (Confirm) Name() string { return "confirm" }
func (List) Name() string    { return "list" }
func (Cancel) Name() string  { return "cancel" }
func (Status) Name() string  { return "status" }
func (Help) Name() string    { return "help" }
func (Clarify) Name() string { return "clarify" }

func (Search) isIntent()  {}
func (Watch) isIntent()   {}
func (Confirm) isIntent() {}
func (List) isIntent()    {}
func (Cancel) isIntent()  {}
func (Status) isIntent()  {}
func (Help) isIntent()    {}
func (Clarify) isIntent() {}

package config

import (
	"fmt"
)

// OrderingStrategy selects how collected chapters are ordered in the spine.
type OrderingStrategy int

const (
	// OrderingByNumber sorts chapters by their ordinal number.
	OrderingByNumber OrderingStrategy = iota
	// OrderingByNavigation follows prev/next links recorded in the store.
	OrderingByNavigation
)

const (
	orderingByNumberName     = "by-number"
	orderingByNavigationName = "by-navigation-links"
)

func (o OrderingStrategy) String() string {
	switch o {
	case OrderingByNumber:
		return orderingByNumberName
	case OrderingByNavigation:
		return orderingByNavigationName
	default:
		return fmt.Sprintf("OrderingStrategy(%d)", int(o))
	}
}

// OrderingStrategyNames returns all recognized strategy names.
func OrderingStrategyNames() []string {
	return []string{orderingByNumberName, orderingByNavigationName}
}

// ParseOrderingStrategy converts textual strategy name to its value.
func ParseOrderingStrategy(name string) (OrderingStrategy, error) {
	switch name {
	case orderingByNumberName:
		return OrderingByNumber, nil
	case orderingByNavigationName:
		return OrderingByNavigation, nil
	default:
		return OrderingByNumber, fmt.Errorf("%q is not a valid ordering strategy", name)
	}
}

func (o OrderingStrategy) MarshalYAML() (any, error) {
	return o.String(), nil
}

func (o *OrderingStrategy) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseOrderingStrategy(s)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

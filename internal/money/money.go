// Package money holds the decimal amount type used for prices, totals and
// shipping costs. Amounts are stored in DynamoDB as numbers and rendered in
// JSON as plain numbers with two decimals.
package money

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// Amount is a non-float monetary value.
type Amount struct {
	decimal.Decimal
}

// Zero is the zero amount.
var Zero = Amount{decimal.Zero}

// New returns an amount of whole currency units.
func New(units int64) Amount {
	return Amount{decimal.NewFromInt(units)}
}

// Parse reads an amount from its string form.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount{d}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Plus returns a + b.
func (a Amount) Plus(b Amount) Amount {
	return Amount{a.Decimal.Add(b.Decimal)}
}

// Minus returns a - b.
func (a Amount) Minus(b Amount) Amount {
	return Amount{a.Decimal.Sub(b.Decimal)}
}

// Times returns a multiplied by a line quantity.
func (a Amount) Times(qty int) Amount {
	return Amount{a.Decimal.Mul(decimal.NewFromInt(int64(qty)))}
}

// Eq reports whether both amounts are numerically equal (1200 == 1200.00).
func (a Amount) Eq(b Amount) bool {
	return a.Decimal.Equal(b.Decimal)
}

// Gte reports a >= b.
func (a Amount) Gte(b Amount) bool {
	return a.Decimal.GreaterThanOrEqual(b.Decimal)
}

// Sum adds all amounts.
func Sum(amounts ...Amount) Amount {
	total := Zero
	for _, a := range amounts {
		total = total.Plus(a)
	}
	return total
}

// String renders the amount with two decimals.
func (a Amount) String() string {
	return a.Decimal.StringFixed(2)
}

// MarshalJSON renders the amount as an unquoted number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.StringFixed(2)), nil
}

// UnmarshalJSON accepts quoted or unquoted numbers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	return a.Decimal.UnmarshalJSON(data)
}

// MarshalDynamoDBAttributeValue stores the amount as a DynamoDB number.
func (a Amount) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: a.Decimal.String()}, nil
}

// UnmarshalDynamoDBAttributeValue reads a DynamoDB number (or numeric string).
func (a *Amount) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	var raw string
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		raw = v.Value
	case *types.AttributeValueMemberS:
		raw = v.Value
	case *types.AttributeValueMemberNULL:
		a.Decimal = decimal.Zero
		return nil
	default:
		return fmt.Errorf("money: unsupported attribute value %T", av)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("money: %w", err)
	}
	a.Decimal = d
	return nil
}

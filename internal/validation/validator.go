package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/heatshop-checkout/internal/money"
)

// Mobile numbers start with 5, 6 or 7 and have 9 digits after the trunk
// prefix; fixed lines start with 2, 3 or 4 and have 8.
var phonePattern = regexp.MustCompile(`^(?:\+213|0)(?:[5-7][0-9]{8}|[2-4][0-9]{7})$`)

// ValidPhone reports whether s is an Algerian phone number. Spaces, dots and
// dashes are ignored.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(NormalizePhone(s))
}

// NormalizePhone strips separators.
func NormalizePhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "", ".", "").Replace(strings.TrimSpace(s))
}

// New returns a configured validator: JSON field names in errors, money
// amounts comparable with gte/gt, the dzphone tag and the guest contact rule.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if a, ok := field.Interface().(money.Amount); ok {
			f, _ := a.Float64()
			return f
		}
		return nil
	}, money.Amount{})

	mustRegister(v, "dzphone", func(fl validatorv10.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})

	v.RegisterStructValidation(guestOrderStructValidation, GuestOrderRequest{})

	return v
}

// guestOrderStructValidation requires full contact details on guest orders,
// since there is no account to reach the buyer through.
func guestOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(GuestOrderRequest)
	c := req.Contact
	if strings.TrimSpace(c.Name) == "" {
		sl.ReportError(c.Name, "contact.name", "Name", "required", "")
	}
	if strings.TrimSpace(c.Email) == "" {
		sl.ReportError(c.Email, "contact.email", "Email", "required", "")
	}
	if strings.TrimSpace(c.Phone) == "" {
		sl.ReportError(c.Phone, "contact.phone", "Phone", "required", "")
	}
}

// mustRegister panics on a bad tag so a broken rule fails at startup.
func mustRegister(v *validatorv10.Validate, tag string, fn validatorv10.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

// Package validate holds the field rules the console checks before a form is
// submitted. Rules are advisory: the backend validates again.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Rule checks one value and returns nil when it is acceptable or an error
// carrying the user-facing message.
type Rule func(value string) error

var (
	emailTLDRe     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	indianMobileRe = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	branchCodeRe   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	businessNameRe = regexp.MustCompile(`^[a-zA-Z0-9 .&-]+$`)
	personNameRe   = regexp.MustCompile(`^[A-Za-z ]+$`)
	panRe          = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	gstinRe        = regexp.MustCompile(`^[0-9]{2}[A-Z0-9]{13}$`)
)

// v is shared by every rule; validator.Validate caches parsed tags and is
// safe for concurrent use.
var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	_ = val.RegisterValidation("email_tld", matches(emailTLDRe))
	_ = val.RegisterValidation("indian_mobile", matches(indianMobileRe))
	_ = val.RegisterValidation("branch_code", matches(branchCodeRe))
	_ = val.RegisterValidation("business_name", matches(businessNameRe))
	_ = val.RegisterValidation("person_name", matches(personNameRe))
	_ = val.RegisterValidation("pan", matches(panRe))
	_ = val.RegisterValidation("gstin", matches(gstinRe))
	_ = val.RegisterValidation("strong_password", validateStrongPassword)
	return val
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// validateStrongPassword requires an upper-case letter, a lower-case letter
// and a digit.
func validateStrongPassword(fl validator.FieldLevel) bool {
	var upper, lower, digit bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// Tag checks the trimmed value against a validator tag expression, e.g.
// "min=3" or "branch_code", and reports message when it fails.
func Tag(tag, message string) Rule {
	return func(value string) error {
		return check(strings.TrimSpace(value), tag, message)
	}
}

func check(value, tag, message string) error {
	if err := v.Var(value, tag); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return errors.New(message)
		}
		return fmt.Errorf("validate %q: %w", tag, err)
	}
	return nil
}

// ValidateEmail accepts addresses of the shape local@domain.tld.
func ValidateEmail(value string) error {
	return check(strings.TrimSpace(value), "email_tld", "Enter a valid email address")
}

// ValidatePhone accepts exactly ten digits.
func ValidatePhone(value string) error {
	return check(strings.TrimSpace(value), "len=10,number", "Phone number must be exactly 10 digits.")
}

// ValidatePassword requires at least eight characters.
func ValidatePassword(value string) error {
	return check(value, "min=8", "Password must be at least 8 characters")
}

// Required rejects blank values.
func Required(label string) Rule {
	return Tag("required", label+" is required")
}

// Optional runs rule only when the value is non-blank.
func Optional(rule Rule) Rule {
	return func(value string) error {
		if strings.TrimSpace(value) == "" {
			return nil
		}
		return rule(value)
	}
}

func MinLen(label string, n int) Rule {
	return Tag(fmt.Sprintf("min=%d", n), fmt.Sprintf("%s must be at least %d characters", label, n))
}

func MaxLen(label string, n int) Rule {
	return Tag(fmt.Sprintf("max=%d", n), fmt.Sprintf("%s must be at most %d characters", label, n))
}

// Email is ValidateEmail as a Rule.
func Email() Rule { return ValidateEmail }

// Phone is ValidatePhone as a Rule.
func Phone() Rule { return ValidatePhone }

// GmailOnly restricts addresses to the gmail.com domain.
func GmailOnly() Rule {
	return func(value string) error {
		return check(strings.ToLower(strings.TrimSpace(value)), "endswith=@gmail.com", "Email must be a valid @gmail.com address.")
	}
}

// IndianMobile accepts ten digits starting with 6-9.
func IndianMobile() Rule {
	return Tag("indian_mobile", "Enter valid 10-digit mobile number")
}

// E164 accepts +<country><number>.
func E164() Rule {
	return Tag("e164", "Phone must be in E.164 format, e.g. +919876543210")
}

// PhoneRange accepts between min and max digits.
func PhoneRange(min, max int) Rule {
	return Tag(fmt.Sprintf("number,min=%d,max=%d", min, max), fmt.Sprintf("Phone must be %d-%d digits", min, max))
}

// Password enforces the minimum length.
func Password() Rule { return ValidatePassword }

// StrongPassword additionally requires an upper-case letter, a lower-case
// letter and a digit.
func StrongPassword() Rule {
	return func(value string) error {
		if err := ValidatePassword(value); err != nil {
			return err
		}
		return check(value, "strong_password", "Password must contain uppercase, lowercase and a number")
	}
}

func BranchCode() Rule {
	return Tag("branch_code", "Branch code may only contain letters, digits, '-' and '_'")
}

func BusinessName() Rule {
	return Tag("business_name", "Business name contains invalid characters")
}

// Letters accepts ASCII letters only.
func Letters(label string) Rule {
	return Tag("alpha", label+" must contain letters only")
}

// PersonName accepts letters and spaces.
func PersonName(label string) Rule {
	return Tag("person_name", label+" must contain letters and spaces only")
}

// PAN checks the Indian permanent account number layout (AAAAA9999A).
func PAN() Rule {
	return func(value string) error {
		value = strings.ToUpper(strings.TrimSpace(value))
		if err := check(value, "max=10", "PAN must be at most 10 characters"); err != nil {
			return err
		}
		return check(value, "pan", "Enter a valid PAN, e.g. ABCDE1234F")
	}
}

// GSTIN checks the 15 character GST identification number.
func GSTIN() Rule {
	return func(value string) error {
		value = strings.ToUpper(strings.TrimSpace(value))
		if err := check(value, "max=15", "GSTIN must be at most 15 characters"); err != nil {
			return err
		}
		return check(value, "gstin", "Enter a valid 15 character GSTIN")
	}
}

// OneOf restricts the value to a fixed set.
func OneOf(label string, allowed ...string) Rule {
	quoted := make([]string, len(allowed))
	for i, a := range allowed {
		quoted[i] = "'" + a + "'"
	}
	return Tag("oneof="+strings.Join(quoted, " "), fmt.Sprintf("%s must be one of %s", label, strings.Join(allowed, ", ")))
}

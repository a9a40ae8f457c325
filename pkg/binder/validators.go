package binder

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var colorRE = regexp.MustCompile(`^(#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})|[a-zA-Z]+)$`)

// colorValidator accepts hex colors or named colors like the ones devices send
// for highlights ("yellow", "#ffcc00"). The empty string is allowed so a
// highlight can drop its color.
func colorValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return colorRE.MatchString(value)
}

// Package validation проверяет форматы контактных данных клиента до записи в хранилище.
package validation

import (
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// phonePattern: необязательный "+" и код страны из 1-3 цифр с необязательным
// разделителем, затем 10 цифр, допускающих группы 3-3-4 через "-" или пробел.
var phonePattern = regexp.MustCompile(`^(\+?\d{1,3}[- ]?)?(\d{3}[- ]?\d{3}[- ]?\d{4})$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func engine() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// ValidateEmail сообщает, соответствует ли s синтаксису local@domain.
func ValidateEmail(s string) bool {
	if s == "" || strings.TrimSpace(s) != s {
		return false
	}
	if err := engine().Var(s, "required,email"); err != nil {
		return false
	}
	// validator допускает домен без точки в редких случаях; требуем хотя бы одну метку.
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}

// ValidatePhone проверяет телефон. Отсутствующий (nil или пустой) телефон валиден.
func ValidatePhone(phone *string) bool {
	if phone == nil || *phone == "" {
		return true
	}
	return phonePattern.MatchString(*phone)
}

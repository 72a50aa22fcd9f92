package server

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const maxCodeLength = 16

var validatorOnce sync.Once

func registerValidators() {
	validatorOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = engine.RegisterValidation("refcode", func(fl validator.FieldLevel) bool {
			return isReferenceCode(fl.Field().String())
		})
	})
}

// isReferenceCode accepts the short alphanumeric codes used for countries
// and products.
func isReferenceCode(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" || len(code) > maxCodeLength {
		return false
	}
	for _, r := range code {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

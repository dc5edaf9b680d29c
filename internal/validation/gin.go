package validation

import (
	"reflect"

	"github.com/gin-gonic/gin/binding"
)

type ginValidator struct{}

// Install makes gin's binding use the shared validator, so field names in
// errors are the JSON names.
func Install() {
	binding.Validator = ginValidator{}
}

func (ginValidator) ValidateStruct(obj any) error {
	if obj == nil {
		return nil
	}

	t := reflect.TypeOf(obj)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	return Validator().Struct(obj)
}

func (ginValidator) Engine() any {
	return Validator()
}

package tracking

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolbus/core"
)

var (
	mapTypeTag  = "maptype"
	mapTypeText = "must be one of roadmap, satellite or traffic"

	kindTag  = "kind"
	kindText = "must be one of bus or student"
)

// InitValidators registers the tracking validations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(mapTypeTag, mapTypeValidation)
	core.RegisterCustomTranslation(validate, translator, mapTypeTag, mapTypeText)

	_ = validate.RegisterValidation(kindTag, kindValidation)
	core.RegisterCustomTranslation(validate, translator, kindTag, kindText)
}

// Custom Validators

func mapTypeValidation(fl validator.FieldLevel) bool {
	_, err := ParseMapType(fl.Field().String())
	return err == nil
}

func kindValidation(fl validator.FieldLevel) bool {
	return Kind(core.CleanString(fl.Field().String(), true)).Valid()
}

package roster

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/absensi/core"
)

var (
	genderTag  = "gender"
	genderText = "gender must be one of L or P"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(genderTag, genderValidation)
	core.RegisterCustomTranslation(validate, translator, genderTag, genderText)
}

func genderValidation(fl validator.FieldLevel) bool {
	g := Gender(fl.Field().String())
	return g == GenderMale || g == GenderFemale
}

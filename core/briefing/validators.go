package briefing

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/elecmate/sitebrief/core"
)

var (
	signatureImageTag   = "signature_image"
	signatureImageText  = "signature must be a base64 PNG, JPEG or SVG data URI"
	signatureImageRegex = regexp.MustCompile(`^data:image/(png|jpeg|svg\+xml);base64,[A-Za-z0-9+/]+={0,2}$`)
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(signatureImageTag, signatureImageValidation)
	core.RegisterCustomTranslation(validate, translator, signatureImageTag, signatureImageText)
}

func signatureImageValidation(fl validator.FieldLevel) bool {
	return signatureImageRegex.MatchString(fl.Field().String())
}

package validator

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

func (v *Validator) registerCustomTranslations() {
	if trans := v.translator(LangEN); trans != nil {
		registerTranslations(v.validate, trans, map[string]string{
			TagObjectKey: "{0} must be a relative object key without empty or dot segments",
			TagTagName:   "{0} must be a trimmed tag name of at most 100 characters",
			TagTrimmed:   "{0} must not have leading or trailing spaces",
		})
	}
	if trans := v.translator(LangZH); trans != nil {
		registerTranslations(v.validate, trans, map[string]string{
			TagObjectKey: "{0}必须是不含空段或点段的相对对象路径",
			TagTagName:   "{0}必须是去除首尾空格且不超过100个字符的标签名",
			TagTrimmed:   "{0}不能有前导或尾随空格",
		})
	}
}

func registerTranslations(validate *validator.Validate, trans ut.Translator, messages map[string]string) {
	for tag, message := range messages {
		_ = validate.RegisterTranslation(tag, trans,
			func(ut ut.Translator) error {
				return ut.Add(tag, message, true)
			},
			func(ut ut.Translator, fe validator.FieldError) string {
				t, _ := ut.T(tag, fe.Field())
				return t
			},
		)
	}
}

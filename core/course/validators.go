package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/clonecademy/clonecademy/core"
)

var (
	questionTypeTag  = "questiontype"
	questionTypeText = "invalid question type"

	noCorrectAnswerTag  = "nocorrectanswer"
	noCorrectAnswerText = "a multiple choice question needs at least one correct answer"

	noVideoTag  = "novideo"
	noVideoText = "a video question needs a YouTube URL"
)

// InitValidators registers the course validations & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(questionTypeTag, questionTypeValidation)
	core.RegisterCustomTranslation(validate, translator, questionTypeTag, questionTypeText)

	validate.RegisterStructValidation(questionStructValidation, SaveQuestion{})
	core.RegisterCustomTranslation(validate, translator, noCorrectAnswerTag, noCorrectAnswerText)
	core.RegisterCustomTranslation(validate, translator, noVideoTag, noVideoText)
}

func questionTypeValidation(fl validator.FieldLevel) bool {
	typ := fl.Field().String()
	for _, t := range QuestionTypes {
		if typ == t {
			return true
		}
	}
	return false
}

// questionStructValidation rejects multiple choice questions nobody can solve and video questions without video.
func questionStructValidation(sl validator.StructLevel) {
	q, ok := sl.Current().Interface().(SaveQuestion)
	if !ok {
		return
	}
	switch q.Type {
	case TypeMultipleChoice:
		for _, a := range q.Answers {
			if a.IsCorrect {
				return
			}
		}
		sl.ReportError(q.Answers, "answers", "Answers", noCorrectAnswerTag, "")
	case TypeInfoYoutube:
		if q.URL == "" {
			sl.ReportError(q.URL, "url", "URL", noVideoTag, "")
		}
	}
}

package runconfig

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"video2notes/internal/config"
	"video2notes/internal/services"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// Validate checks the record against its field rules and the cross-field and
// filesystem constraints. Every problem is collected into one
// services.ConfigError. appCfg may be nil, in which case the model allow list
// is not enforced.
func (c RunConfig) Validate(appCfg *config.Config) error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				problems = append(problems, describe(fe))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	if strings.TrimSpace(c.VideoPath) != "" {
		if info, err := os.Stat(c.VideoPath); err != nil {
			problems = append(problems, fmt.Sprintf("video_path %q does not exist", c.VideoPath))
		} else if info.IsDir() {
			problems = append(problems, fmt.Sprintf("video_path %q is a directory", c.VideoPath))
		}
	}
	if c.SkipROI && c.ROITimestamp != nil {
		problems = append(problems, "roi_timestamp cannot be set when skip_roi is true")
	}
	if c.DoSplit && strings.TrimSpace(c.TimestampFile) != "" {
		if _, err := os.Stat(c.TimestampFile); err != nil {
			problems = append(problems, fmt.Sprintf("timestamp_file %q does not exist", c.TimestampFile))
		}
	}
	if appCfg != nil && c.RefineNotesModel != "" && !appCfg.ModelAllowed(c.RefineNotesModel) {
		problems = append(problems, fmt.Sprintf("refine_notes_model %q is not in llm.allowed_models", c.RefineNotesModel))
	}
	return services.NewConfigError(problems...)
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_if":
		other, value, _ := strings.Cut(fe.Param(), " ")
		return fmt.Sprintf("%s is required when %s is %s", field, snakeCase(other), value)
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

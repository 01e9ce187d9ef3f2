package validation

import (
	"html"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

var (
	validate  *validator.Validate
	sanitizer *bluemonday.Policy

	projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-.]*$`)
)

func init() {
	validate = validator.New()
	sanitizer = bluemonday.StrictPolicy()

	validate.RegisterValidation("project_id", validateProjectID)
}

// Validate 按 validate 标签校验结构体
func Validate(v any) error {
	return validate.Struct(v)
}

// SanitizeText 去掉 HTML 标签与控制字符，保留实体还原后的纯文本
func SanitizeText(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = html.UnescapeString(sanitizer.Sanitize(input))

	var b strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\n' || r == '\t' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// ValidProjectID 项目编号：字母数字开头，允许 _ - .，最长 64
func ValidProjectID(id string) bool {
	return len(id) <= 64 && projectIDPattern.MatchString(id)
}

func validateProjectID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	return id == "" || ValidProjectID(id)
}

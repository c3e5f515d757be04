// Package validation はリクエスト構造体の宣言的バリデーションを提供する。
// フィールド名はjsonタグ名で報告し、失敗内容は VALIDATION_FAILED の details に格納する。
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/memberhub/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// membertype は会員種別の列挙値であることを検証する
	_ = v.RegisterValidation("membertype", func(fl validator.FieldLevel) bool {
		return model.MemberTypeID(fl.Field().String()).Valid()
	})
	return v
}

// Struct は構造体をバリデーションし、失敗した場合は VALIDATION_FAILED の APIError を返す。
func Struct(s any) error {
	if err := validate.Struct(s); err != nil {
		return model.NewValidationError(ToDetails(err))
	}
	return nil
}

// ID は識別子がUUID形式かを検証し、不正な場合は INVALID_ID の APIError を返す。
func ID(id string) error {
	if err := validate.Var(id, "required,uuid"); err != nil {
		return model.NewInvalidIDError(id)
	}
	return nil
}

// ToDetails はJSONデコードエラーやバリデーションエラーを details 用のマップに変換する。
func ToDetails(err error) map[string]any {
	if err == nil {
		return nil
	}

	var se *json.SyntaxError
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) {
		return map[string]any{ute.Field: fmt.Sprintf("%s 型である必要があります", ute.Type.String())}
	}
	if errors.As(err, &se) {
		return map[string]any{"payload": "JSONの形式が不正です"}
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make(map[string]any, len(verrs))
		for _, fe := range verrs {
			out[fe.Field()] = formatFieldError(fe)
		}
		return out
	}

	return map[string]any{"payload": "リクエストの内容が不正です"}
}

func formatFieldError(fe validator.FieldError) string {
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return "必須項目です"
	case "required_without_all":
		return "更新する項目を1つ以上指定してください"
	case "email":
		return "メールアドレスの形式が不正です"
	case "uuid":
		return "UUID形式である必要があります"
	case "url", "http_url":
		return "URLの形式が不正です"
	case "membertype":
		return "basic または business を指定してください"
	case "min":
		if isNumberKind(fe.Kind()) {
			return param + " 以上である必要があります"
		}
		return param + " 文字以上である必要があります"
	case "max":
		if isNumberKind(fe.Kind()) {
			return param + " 以下である必要があります"
		}
		return param + " 文字以下である必要があります"
	case "gte":
		return param + " 以上である必要があります"
	case "lte":
		return param + " 以下である必要があります"
	case "oneof":
		return strings.Join(strings.Fields(param), ", ") + " のいずれかを指定してください"
	default:
		if param != "" {
			return fmt.Sprintf("%s=%s の検証に失敗しました", fe.Tag(), param)
		}
		return fmt.Sprintf("%s の検証に失敗しました", fe.Tag())
	}
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

package model

import (
	"errors"
	"fmt"
)

// APIError はサービス層からトランスポート層へ渡す分類済みエラー。
// Messageはそのままクライアントに表示されるため、内部情報を含めてはならない。
type APIError struct {
	Code    string // エラーコード
	Message string // ユーザー向けメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNIMConflict     = "NIM_CONFLICT"
	ErrCodeStudentNotFound = "STUDENT_NOT_FOUND"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewValidationError は必須項目の未入力エラーを生成する。
func NewValidationError() *APIError {
	return &APIError{
		Code:    ErrCodeValidation,
		Message: "NIM, Nama, dan Prodi harus diisi",
	}
}

// NewMarkupError はHTMLマークアップを含む入力の拒否エラーを生成する。
// 入力不備の一種として扱うため、コードはErrCodeValidationを使う。
func NewMarkupError() *APIError {
	return &APIError{
		Code:    ErrCodeValidation,
		Message: "NIM, Nama, dan Prodi tidak boleh mengandung tag HTML",
	}
}

// NewNIMConflictError はNIM重複エラーを生成する。
func NewNIMConflictError() *APIError {
	return &APIError{
		Code:    ErrCodeNIMConflict,
		Message: "NIM sudah terdaftar",
	}
}

// NewStudentNotFoundError は学生レコード未検出エラーを生成する。
func NewStudentNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeStudentNotFound,
		Message: "Mahasiswa not found",
	}
}

// IsCode はerrがAPIErrorであり、指定コードを持つかを返す。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == code
}

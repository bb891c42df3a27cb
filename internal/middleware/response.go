package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope は全APIレスポンス共通のJSONフォーマット。
// successは常に含まれ、message・dataは必要な場合のみ出力する。
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WriteJSON は任意の値をJSONとして書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// WriteSuccess は成功エンベロープを書き込む。
func WriteSuccess(w http.ResponseWriter, statusCode int, message string, data any) {
	WriteJSON(w, statusCode, Envelope{Success: true, Message: message, Data: data})
}

// WriteError は失敗エンベロープを書き込む。
// messageはそのままクライアントに表示されるため、内部エラーの詳細を渡してはならない。
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, Envelope{Success: false, Message: message})
}

// WriteInternalServerError は500の失敗エンベロープを書き込む。
// 詳細はログのみに記録し、ユーザーには操作ごとの一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/mahasiswa/internal/middleware"
	"github.com/hitoshi/mahasiswa/internal/model"
)

// 成功時・500時のレスポンスメッセージ
const (
	msgCreated    = "Mahasiswa berhasil ditambahkan"
	msgUpdated    = "Mahasiswa berhasil diupdate"
	msgDeleted    = "Mahasiswa berhasil dihapus"
	msgFetchError = "Error fetching data"
	msgSaveError  = "Error saving data"
	msgUpdateErr  = "Error updating data"
	msgDeleteErr  = "Error deleting data"
)

// maxRequestBodyBytes はCreate/Updateリクエストボディの上限サイズ。
const maxRequestBodyBytes = 1 << 16

// StudentServiceInterface は学生ハンドラーが必要とするサービスインターフェース。
type StudentServiceInterface interface {
	// List は全レコードを作成日時の降順で返す。
	List(ctx context.Context) ([]*model.Student, error)
	// Get は指定IDのレコードを返す。
	Get(ctx context.Context, id int64) (*model.Student, error)
	// Create はレコードを新規作成する。
	Create(ctx context.Context, input model.StudentInput) (*model.Student, error)
	// Update は3フィールドを丸ごと置き換える。
	Update(ctx context.Context, id int64, input model.StudentInput) (*model.Student, error)
	// Delete はレコードを物理削除する。
	Delete(ctx context.Context, id int64) error
}

// StudentHandler は学生レコードのHTTPハンドラー。
type StudentHandler struct {
	service StudentServiceInterface
	logger  *slog.Logger
}

// NewStudentHandler はStudentHandlerを生成する。
func NewStudentHandler(service StudentServiceInterface, logger *slog.Logger) *StudentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StudentHandler{
		service: service,
		logger:  logger,
	}
}

// studentResponse は学生レコードのAPIレスポンス。
type studentResponse struct {
	ID        int64     `json:"id"`
	NIM       string    `json:"nim"`
	Nama      string    `json:"nama"`
	Prodi     string    `json:"prodi"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// studentRequest は作成・更新リクエストのボディ。
// フィールド名はクライアントとの互換性のため固定。
type studentRequest struct {
	NIM   string `json:"nim"`
	Nama  string `json:"nama"`
	Prodi string `json:"prodi"`
}

func toStudentResponse(st *model.Student) studentResponse {
	return studentResponse{
		ID:        st.ID,
		NIM:       st.NIM,
		Nama:      st.Nama,
		Prodi:     st.Prodi,
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
}

// List は全学生レコードを返す。
// GET /api/mahasiswa
func (h *StudentHandler) List(w http.ResponseWriter, r *http.Request) {
	students, err := h.service.List(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, msgFetchError)
		return
	}

	results := make([]studentResponse, len(students))
	for i, st := range students {
		results[i] = toStudentResponse(st)
	}
	middleware.WriteSuccess(w, http.StatusOK, "", results)
}

// Get は指定IDの学生レコードを返す。
// GET /api/mahasiswa/{id}
func (h *StudentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseStudentID(r)
	if !ok {
		writeNotFound(w)
		return
	}

	st, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err, msgFetchError)
		return
	}
	middleware.WriteSuccess(w, http.StatusOK, "", toStudentResponse(st))
}

// Create は学生レコードを作成する。
// POST /api/mahasiswa
func (h *StudentHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeStudentRequest(w, r)
	if !ok {
		return
	}

	st, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, r, err, msgSaveError)
		return
	}
	middleware.WriteSuccess(w, http.StatusCreated, msgCreated, toStudentResponse(st))
}

// Update は学生レコードを更新する。
// PUT /api/mahasiswa/{id}
func (h *StudentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseStudentID(r)
	if !ok {
		writeNotFound(w)
		return
	}

	input, ok := decodeStudentRequest(w, r)
	if !ok {
		return
	}

	st, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		h.handleServiceError(w, r, err, msgUpdateErr)
		return
	}
	middleware.WriteSuccess(w, http.StatusOK, msgUpdated, toStudentResponse(st))
}

// Delete は学生レコードを削除する。
// DELETE /api/mahasiswa/{id}
func (h *StudentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseStudentID(r)
	if !ok {
		writeNotFound(w)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err, msgDeleteErr)
		return
	}
	middleware.WriteSuccess(w, http.StatusOK, msgDeleted, nil)
}

// parseStudentID はURLパスの{id}を正の整数として解釈する。
// 数値でない・0以下のIDは存在しないレコードとして扱う。
func parseStudentID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// decodeStudentRequest はリクエストボディを解析する。
// 解析できない場合は必須項目エラーとして400を書き込みfalseを返す。
func decodeStudentRequest(w http.ResponseWriter, r *http.Request) (model.StudentInput, bool) {
	var req studentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, model.NewValidationError().Message)
		return model.StudentInput{}, false
	}
	return model.StudentInput{NIM: req.NIM, Nama: req.Nama, Prodi: req.Prodi}, true
}

func writeNotFound(w http.ResponseWriter) {
	middleware.WriteError(w, http.StatusNotFound, model.NewStudentNotFoundError().Message)
}

// handleServiceError はサービス層のエラーを適切なHTTPレスポンスに変換する。
// 分類できないエラーは詳細をログに記録し、操作ごとの一般的なメッセージのみを返す。
func (h *StudentHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error, internalMessage string) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteError(w, statusForCode(apiErr.Code), apiErr.Message)
		return
	}

	h.logger.ErrorContext(r.Context(), "unhandled service error",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	middleware.WriteInternalServerError(w, internalMessage)
}

// statusForCode はエラーコードをHTTPステータスコードにマッピングする。
func statusForCode(code string) int {
	switch code {
	case model.ErrCodeValidation, model.ErrCodeNIMConflict:
		return http.StatusBadRequest
	case model.ErrCodeStudentNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

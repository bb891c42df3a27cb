package handler

import (
	"net/http"
	"time"

	"github.com/hitoshi/mahasiswa/internal/middleware"
	"github.com/hitoshi/mahasiswa/internal/model"
)

// healthResponse はライブネスエンドポイントのレスポンス。
type healthResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// HealthHandler はプロセスの稼働確認を返す。ストアには問い合わせない。
// GET /api/health
func HealthHandler(now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, healthResponse{
			Success:   true,
			Message:   "Server is running",
			Timestamp: now().UTC().Format(time.RFC3339),
		})
	}
}

// StudyProgramsHandler は入力フォームで選択できるプログラムスタディの一覧を返す。
// GET /api/prodi
func StudyProgramsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteSuccess(w, http.StatusOK, "", model.StudyPrograms)
	}
}

package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/mahasiswa/internal/export"
	"github.com/hitoshi/mahasiswa/internal/middleware"
)

// Export は学生一覧をxlsxファイルとして返す。
// ファイルをメモリ上で組み立ててから送信するため、失敗時は500の失敗エンベロープを返せる。
// GET /api/mahasiswa/export
func (h *StudentHandler) Export(w http.ResponseWriter, r *http.Request) {
	students, err := h.service.List(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, msgFetchError)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteStudents(&buf, students, time.Local); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to build export",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		middleware.WriteInternalServerError(w, msgFetchError)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(time.Now())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "failed to send export", slog.String("error", err.Error()))
	}
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hitoshi/mahasiswa/internal/client"
	"github.com/hitoshi/mahasiswa/internal/ui"
)

// 終了コード
const (
	ExitSuccess      = 0 // 正常終了
	ExitFailure      = 1 // APIが操作を拒否した、またはサーバーに到達できない
	ExitCommandError = 2 // 引数・フラグ・設定ファイルの誤り
)

// ExitError は終了コード付きのエラー。
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError は指定コードとメッセージのExitErrorを生成する。
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError は既存のエラーに終了コードを付与する。
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode はエラーから終了コードを取り出す。ExitErrorでなければExitFailureを返す。
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// apiError はクライアントのエラーをExitErrorに変換する。メッセージはサーバーの文言を優先する。
func apiError(err error, fallback string) *ExitError {
	return WrapExitError(ExitFailure, client.MessageOf(err, fallback), err)
}

// Response はJSON出力の共通フォーマット。
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// OutputFormatter は--formatに従ってtextまたはJSONで結果を出力する。
type OutputFormatter struct {
	Format   string
	Writer   io.Writer
	Location *time.Location
}

// Students は学生一覧を出力する。
func (f *OutputFormatter) Students(students []client.Mahasiswa) error {
	if f.Format == FormatJSON {
		if students == nil {
			students = []client.Mahasiswa{}
		}
		return f.json(Response{Status: "ok", Data: students})
	}
	if len(students) == 0 {
		_, err := fmt.Fprintln(f.Writer, "Belum ada data mahasiswa yang terdaftar")
		return err
	}
	if err := ui.RenderTable(f.Writer, students, f.Location); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f.Writer, "\nTotal: %d mahasiswa terdaftar\n", len(students))
	return err
}

// Student は1件のレコードをメッセージ付きで出力する。messageは空でもよい。
func (f *OutputFormatter) Student(message string, st *client.Mahasiswa) error {
	if f.Format == FormatJSON {
		return f.json(Response{Status: "ok", Message: message, Data: st})
	}
	if message != "" {
		fmt.Fprintln(f.Writer, message)
	}
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	fmt.Fprintf(f.Writer, "ID:             %d\n", st.ID)
	fmt.Fprintf(f.Writer, "NIM:            %s\n", st.NIM)
	fmt.Fprintf(f.Writer, "Nama:           %s\n", st.Nama)
	fmt.Fprintf(f.Writer, "Program Studi:  %s\n", st.Prodi)
	fmt.Fprintf(f.Writer, "Dibuat:         %s\n", st.CreatedAt.In(loc).Format(time.DateTime))
	_, err := fmt.Fprintf(f.Writer, "Diperbarui:     %s\n", st.UpdatedAt.In(loc).Format(time.DateTime))
	return err
}

// Message はメッセージのみを出力する。
func (f *OutputFormatter) Message(message string) error {
	if f.Format == FormatJSON {
		return f.json(Response{Status: "ok", Message: message})
	}
	_, err := fmt.Fprintln(f.Writer, message)
	return err
}

// Lines は文字列の一覧を番号付きで出力する。
func (f *OutputFormatter) Lines(lines []string) error {
	if f.Format == FormatJSON {
		return f.json(Response{Status: "ok", Data: lines})
	}
	for i, line := range lines {
		if _, err := fmt.Fprintf(f.Writer, "%d. %s\n", i+1, line); err != nil {
			return err
		}
	}
	return nil
}

// Health はライブネスの結果を出力する。
func (f *OutputFormatter) Health(h *client.Health) error {
	if f.Format == FormatJSON {
		return f.json(Response{Status: "ok", Message: h.Message, Data: h})
	}
	_, err := fmt.Fprintf(f.Writer, "%s (%s)\n", h.Message, h.Timestamp)
	return err
}

func (f *OutputFormatter) json(resp Response) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

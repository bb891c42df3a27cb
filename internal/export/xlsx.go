// Package export は学生一覧のスプレッドシート出力を提供する。
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hitoshi/mahasiswa/internal/model"
)

// SheetName は出力するワークシート名。
const SheetName = "Mahasiswa"

// ContentType はxlsxファイルのMIMEタイプ。
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Header は1行目に出力する列見出し。
var Header = []any{"No", "NIM", "Nama", "Prodi", "Dibuat", "Diperbarui"}

const timeLayout = "2006-01-02 15:04:05"

// WriteStudents は学生一覧をxlsx形式でwに書き出す。
// 行の並びは引数の順序をそのまま使う。タイムスタンプはlocのタイムゾーンで出力する（nilの場合はUTC）。
func WriteStudents(w io.Writer, students []*model.Student, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "F1", bold); err != nil {
		return fmt.Errorf("failed to apply header style: %w", err)
	}

	for i, st := range students {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to resolve cell for row %d: %w", i+2, err)
		}
		row := []any{
			i + 1,
			st.NIM,
			st.Nama,
			st.Prodi,
			st.CreatedAt.In(loc).Format(timeLayout),
			st.UpdatedAt.In(loc).Format(timeLayout),
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "B", "D", 24); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(SheetName, "E", "F", 20); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// FileName は出力日付を含むダウンロード用ファイル名を返す。
func FileName(now time.Time) string {
	return "mahasiswa-" + now.Format("20060102") + ".xlsx"
}

package ui

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/hitoshi/mahasiswa/internal/client"
)

// Render は状態をテキストで書き出す。接続状態、バナー、編集モード、一覧表の順に出力する。
func Render(w io.Writer, s State, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	status := "● Server Terhubung"
	if !s.Online {
		status = "○ Server Terputus"
	}
	if _, err := fmt.Fprintf(w, "Sistem Informasi Mahasiswa  [%s]\n", status); err != nil {
		return err
	}

	if s.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", s.Error)
	}
	if s.Success != "" {
		fmt.Fprintf(w, "Sukses: %s\n", s.Success)
	}
	if s.Editing != nil {
		fmt.Fprintf(w, "Mode edit: %s (%s)\n", s.Editing.Nama, s.Editing.NIM)
	}
	for _, field := range []string{FieldNIM, FieldNama, FieldProdi} {
		if msg, ok := s.FormErrors[field]; ok {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
	}
	fmt.Fprintln(w)

	if s.Loading {
		_, err := fmt.Fprintln(w, "Memuat data mahasiswa...")
		return err
	}
	if len(s.Students) == 0 {
		_, err := fmt.Fprintln(w, "Belum ada data mahasiswa yang terdaftar")
		return err
	}

	if err := RenderTable(w, s.Students, loc); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nTotal: %d mahasiswa terdaftar\n", len(s.Students))
	return err
}

// RenderTable は学生レコードを表形式で書き出す。
func RenderTable(w io.Writer, students []client.Mahasiswa, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "No.\tID\tNIM\tNama Lengkap\tProgram Studi\tTanggal Daftar")
	for i, st := range students {
		registered := "-"
		if !st.CreatedAt.IsZero() {
			registered = st.CreatedAt.In(loc).Format("02 Jan 2006")
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", i+1, st.ID, st.NIM, st.Nama, st.Prodi, registered)
	}
	return tw.Flush()
}

// Package ui はクライアント側の表示ロジックを提供する。
// フォーム検証、一覧・バナー・接続状態を保持するApp、テキスト描画を含む。
package ui

import (
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/mahasiswa/internal/client"
	"github.com/hitoshi/mahasiswa/internal/model"
)

// フォームのフィールド名（FieldErrorsのキー）
const (
	FieldNIM   = "nim"
	FieldNama  = "nama"
	FieldProdi = "prodi"
)

// Form は作成・編集フォームの入力値。
type Form struct {
	NIM   string
	Nama  string
	Prodi string
}

// FieldErrors はフィールド名ごとの検証エラーメッセージ。
type FieldErrors map[string]string

// FormFrom は既存レコードの値でフォームを初期化する。
func FormFrom(st client.Mahasiswa) Form {
	return Form{NIM: st.NIM, Nama: st.Nama, Prodi: st.Prodi}
}

// Validate は送信前の入力チェックを行う。問題がなければnilを返す。
// 空白のみの値は未入力とみなす。最小文字数は入力値そのままの文字数で判定する。
func (f Form) Validate() FieldErrors {
	errs := FieldErrors{}

	switch {
	case strings.TrimSpace(f.NIM) == "":
		errs[FieldNIM] = "NIM harus diisi"
	case utf8.RuneCountInString(f.NIM) < 5:
		errs[FieldNIM] = "NIM minimal 5 karakter"
	}

	switch {
	case strings.TrimSpace(f.Nama) == "":
		errs[FieldNama] = "Nama harus diisi"
	case utf8.RuneCountInString(f.Nama) < 2:
		errs[FieldNama] = "Nama minimal 2 karakter"
	}

	switch {
	case strings.TrimSpace(f.Prodi) == "":
		errs[FieldProdi] = "Program Studi harus diisi"
	case !model.IsStudyProgram(f.Prodi):
		errs[FieldProdi] = "Program Studi tidak valid"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Input はフォームの値をAPIリクエストに変換する。
func (f Form) Input() client.Input {
	return client.Input{NIM: f.NIM, Nama: f.Nama, Prodi: f.Prodi}
}

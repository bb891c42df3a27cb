// Package model はドメインモデルを定義する。
package model

import (
	"slices"
	"time"
)

// Student は学生（mahasiswa）レコードを表す。
// IDとタイムスタンプはストアが採番・管理する。
type Student struct {
	ID        int64
	NIM       string
	Nama      string
	Prodi     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StudentInput は作成・更新時にクライアントから受け取る編集可能フィールド。
// 更新時は3フィールドすべてを丸ごと置き換える。
// 値は受け取ったまま保存され、空白のみの値とマークアップを含む値は拒否される。
type StudentInput struct {
	NIM   string `validate:"notblank,nomarkup"`
	Nama  string `validate:"notblank,nomarkup"`
	Prodi string `validate:"notblank,nomarkup"`
}

// StudyPrograms は入力フォームで選択できるプログラムスタディの固定リスト。
// サーバー側では検証に使用しない（クライアント側の選択肢のみ）。
var StudyPrograms = []string{
	"Teknik Informatika",
	"Sistem Informasi",
	"Teknik Komputer",
	"Manajemen Informatika",
	"Teknik Elektro",
	"Teknik Mesin",
	"Teknik Sipil",
	"Akuntansi",
	"Manajemen",
}

// IsStudyProgram は指定された名前が固定リストに含まれるかを返す。
func IsStudyProgram(name string) bool {
	return slices.Contains(StudyPrograms, name)
}

// Command mahasiswactl は学生レコードAPIのターミナルクライアント。
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hitoshi/mahasiswa/internal/cli"
	"github.com/hitoshi/mahasiswa/internal/logger"
)

func main() {
	// 診断ログは標準出力を汚さないよう標準エラー出力に書く
	logger.SetupDefault(os.Stderr)
	logger.SetLevel(slog.LevelWarn)

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}

// Package cli は学生レコードAPIを操作するターミナルクライアントを提供する。
package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/mahasiswa/internal/client"
	"github.com/hitoshi/mahasiswa/internal/logger"
)

// 出力フォーマット
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ValidFormats は--formatに指定できる値。
var ValidFormats = []string{FormatText, FormatJSON}

// RootOptions は全サブコマンド共通のフラグ。
type RootOptions struct {
	APIURL     string
	ConfigPath string
	Format     string
	Verbose    bool

	// Location は日時表示のタイムゾーン。nilの場合はローカル時刻。
	Location *time.Location
	// Logger はCLI内部の診断ログ出力先。nilの場合はslog.Default()。
	Logger *slog.Logger
}

// NewRootCommand はmahasiswactlのルートコマンドを生成する。
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mahasiswactl",
		Short: "Sistem Informasi Mahasiswa - terminal client",
		Long:  "Kelola data mahasiswa (NIM, nama, program studi) melalui REST API.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Verbose {
				logger.SetLevel(slog.LevelDebug)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.APIURL, "api-url", "", "API base URL (env "+EnvAPIURL+")")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewHealthCommand(opts))
	cmd.AddCommand(NewProdiCommand(opts))
	cmd.AddCommand(NewShellCommand(opts))

	return cmd
}

// newClient は設定を解決してAPIクライアントを生成する。
func (o *RootOptions) newClient() (*client.Client, error) {
	cfg, err := LoadClientConfig(o.ConfigPath, o.APIURL)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.logger().Debug("using API", slog.String("api_url", cfg.APIURL), slog.Duration("timeout", cfg.Timeout))
	return client.New(cfg.APIURL, client.WithHTTPClient(&http.Client{Timeout: cfg.Timeout})), nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout(), Location: o.Location}
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

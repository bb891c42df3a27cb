package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitoshi/mahasiswa/internal/client"
	"github.com/hitoshi/mahasiswa/internal/ui"
)

// studentFlags はcreate/updateで共通の入力フラグ。
type studentFlags struct {
	NIM   string
	Nama  string
	Prodi string
}

func (f *studentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.NIM, "nim", "", "Nomor Induk Mahasiswa")
	cmd.Flags().StringVar(&f.Nama, "nama", "", "Nama lengkap")
	cmd.Flags().StringVar(&f.Prodi, "prodi", "", "Program studi")
}

// input はフォーム検証を通したリクエストボディを返す。
func (f *studentFlags) input() (client.Input, error) {
	form := ui.Form{NIM: f.NIM, Nama: f.Nama, Prodi: f.Prodi}
	if errs := form.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, field := range []string{ui.FieldNIM, ui.FieldNama, ui.FieldProdi} {
			if msg, ok := errs[field]; ok {
				msgs = append(msgs, msg)
			}
		}
		return client.Input{}, NewExitError(ExitCommandError, strings.Join(msgs, "; "))
	}
	return form.Input(), nil
}

// NewListCommand は一覧表示コマンドを生成する。
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "Tampilkan semua mahasiswa",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rootOpts.newClient()
			if err != nil {
				return err
			}
			students, err := c.List(requestContext(cmd))
			if err != nil {
				return apiError(err, ui.MsgLoadFailed)
			}
			return rootOpts.formatter(cmd).Students(students)
		},
	}
}

// NewGetCommand は1件表示コマンドを生成する。
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <id>",
		Short:         "Tampilkan satu mahasiswa",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := rootOpts.newClient()
			if err != nil {
				return err
			}
			st, err := c.Get(requestContext(cmd), id)
			if err != nil {
				return apiError(err, "Mahasiswa not found")
			}
			return rootOpts.formatter(cmd).Student("", st)
		},
	}
}

// NewCreateCommand は登録コマンドを生成する。
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &studentFlags{}
	cmd := &cobra.Command{
		Use:           "create",
		Short:         "Tambah mahasiswa baru",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := flags.input()
			if err != nil {
				return err
			}
			c, err := rootOpts.newClient()
			if err != nil {
				return err
			}
			st, err := c.Create(requestContext(cmd), input)
			if err != nil {
				return apiError(err, "Gagal menambahkan mahasiswa")
			}
			return rootOpts.formatter(cmd).Student(ui.MsgCreated, st)
		},
	}
	flags.register(cmd)
	return cmd
}

// NewUpdateCommand は更新コマンドを生成する。3項目すべてを置き換える。
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &studentFlags{}
	cmd := &cobra.Command{
		Use:           "update <id>",
		Short:         "Perbarui data mahasiswa",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			input, err := flags.input()
			if err != nil {
				return err
			}
			c, err := rootOpts.newClient()
			if err != nil {
				return err
			}
			st, err := c.Update(requestContext(cmd), id, input)
			if err != nil {
				return apiError(err, "Gagal mengupdate mahasiswa")
			}
			return rootOpts.formatter(cmd).Student(ui.MsgUpdated, st)
		},
	}
	flags.register(cmd)
	return cmd
}

// NewDeleteCommand は削除コマンドを生成する。--yesがなければ確認を求める。
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:           "delete <id>",
		Short:         "Hapus mahasiswa",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := rootOpts.newClient()
			if err != nil {
				return err
			}
			ctx := requestContext(cmd)
			if !yes {
				st, err := c.Get(ctx, id)
				if err != nil {
					return apiError(err, "Mahasiswa not found")
				}
				if !confirm(cmd.ErrOrStderr(), bufio.NewReader(cmd.InOrStdin()), ui.ConfirmPrompt(*st)) {
					return rootOpts.formatter(cmd).Message("Dibatalkan")
				}
			}
			if err := c.Delete(ctx, id); err != nil {
				return apiError(err, "Gagal menghapus mahasiswa")
			}
			return rootOpts.formatter(cmd).Message(ui.MsgDeleted)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "hapus tanpa konfirmasi")
	return cmd
}

// NewHealthCommand はサーバーのライブネス確認コマンドを生成する。
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "health",
		Short:         "Periksa koneksi ke server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rootOpts.newClient()
			if err != nil {
				return err
			}
			h, err := c.Health(requestContext(cmd))
			if err != nil {
				return apiError(err, "Server Terputus")
			}
			return rootOpts.formatter(cmd).Health(h)
		},
	}
}

// NewProdiCommand はプログラム一覧コマンドを生成する。
func NewProdiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "prodi",
		Short:         "Tampilkan daftar program studi",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rootOpts.newClient()
			if err != nil {
				return err
			}
			programs, err := c.Programs(requestContext(cmd))
			if err != nil {
				return apiError(err, "Gagal memuat program studi")
			}
			return rootOpts.formatter(cmd).Lines(programs)
		},
	}
}

// parseID は正の整数のIDを解析する。
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid id %q", s))
	}
	return id, nil
}

// confirm はpromptを表示し、y/yes/ya の入力で true を返す。
func confirm(w io.Writer, r *bufio.Reader, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "ya":
		return true
	default:
		return false
	}
}

// requestContext はcmd.Context()がnilの場合にBackgroundを返す。
func requestContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

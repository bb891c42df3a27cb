package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/mahasiswa/internal/client"
	"github.com/hitoshi/mahasiswa/internal/model"
	"github.com/hitoshi/mahasiswa/internal/ui"
)

const shellHelp = `Perintah:
  list              muat ulang daftar mahasiswa
  add               tambah mahasiswa baru
  edit <id>         ubah data mahasiswa
  cancel            batalkan mode edit
  delete <id>       hapus mahasiswa
  health            periksa koneksi server
  help              tampilkan bantuan ini
  quit              keluar`

// ShellOptions はshellコマンドのフラグ。
type ShellOptions struct {
	PollInterval time.Duration
}

// NewShellCommand は対話モードのコマンドを生成する。
// ui.Appを起動し、入力された操作ごとに状態を表として描画する。
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShellOptions{}
	cmd := &cobra.Command{
		Use:           "shell",
		Short:         "Mode interaktif",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rootOpts.newClient()
			if err != nil {
				return err
			}
			app := ui.New(c, ui.Config{PollInterval: opts.PollInterval})
			defer app.Close()

			sh := &shell{
				app: app,
				in:  bufio.NewReader(cmd.InOrStdin()),
				out: cmd.OutOrStdout(),
				loc: rootOpts.Location,
			}
			return sh.run()
		},
	}
	cmd.Flags().DurationVar(&opts.PollInterval, "poll", ui.DefaultPollInterval, "interval pemeriksaan koneksi server")
	return cmd
}

// shell は1行1コマンドの対話ループ。
type shell struct {
	app *ui.App
	in  *bufio.Reader
	out io.Writer
	loc *time.Location
}

// errQuit は入力の終端またはquitコマンドを表す。
var errQuit = errors.New("quit")

func (s *shell) run() error {
	s.app.Start()
	if err := s.render(); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Ketik 'help' untuk daftar perintah.")

	for {
		line, err := s.prompt("> ")
		if err != nil {
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if err := s.exec(fields[0], fields[1:]); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			return err
		}
	}
}

func (s *shell) exec(name string, args []string) error {
	switch name {
	case "quit", "exit", "q":
		return errQuit
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
		return nil
	case "list", "reload", "ls":
		s.app.Reload()
	case "health":
		s.app.CheckHealth()
	case "cancel":
		s.app.CancelEdit()
	case "add":
		s.app.CancelEdit()
		form, err := s.promptForm(ui.Form{})
		if err != nil {
			return err
		}
		s.app.Submit(form)
	case "edit":
		id, ok := s.argID(args)
		if !ok {
			return nil
		}
		if !s.app.Edit(id) {
			fmt.Fprintf(s.out, "Mahasiswa dengan ID %d tidak ada di daftar\n", id)
			return nil
		}
		form, err := s.promptForm(s.app.Snapshot().Form)
		if err != nil {
			return err
		}
		s.app.Submit(form)
	case "delete", "rm":
		id, ok := s.argID(args)
		if !ok {
			return nil
		}
		found := false
		s.app.Delete(id, func(st client.Mahasiswa) bool {
			found = true
			return confirm(s.out, s.in, ui.ConfirmPrompt(st))
		})
		if !found {
			fmt.Fprintf(s.out, "Mahasiswa dengan ID %d tidak ada di daftar\n", id)
			return nil
		}
	default:
		fmt.Fprintf(s.out, "Perintah tidak dikenal: %s (ketik 'help')\n", name)
		return nil
	}
	return s.render()
}

// promptForm は各項目を入力させる。空行は現在値を維持する。
func (s *shell) promptForm(current ui.Form) (ui.Form, error) {
	form := current
	var err error
	if form.NIM, err = s.promptField("NIM", current.NIM); err != nil {
		return form, err
	}
	if form.Nama, err = s.promptField("Nama Lengkap", current.Nama); err != nil {
		return form, err
	}

	for i, p := range model.StudyPrograms {
		fmt.Fprintf(s.out, "  %d. %s\n", i+1, p)
	}
	prodi, err := s.promptField("Program Studi (nomor atau nama)", current.Prodi)
	if err != nil {
		return form, err
	}
	if n, convErr := strconv.Atoi(prodi); convErr == nil && n >= 1 && n <= len(model.StudyPrograms) {
		prodi = model.StudyPrograms[n-1]
	}
	form.Prodi = prodi
	return form, nil
}

func (s *shell) promptField(label, current string) (string, error) {
	prompt := label + ": "
	if current != "" {
		prompt = fmt.Sprintf("%s [%s]: ", label, current)
	}
	v, err := s.prompt(prompt)
	if err != nil {
		return "", errQuit
	}
	if v == "" {
		return current, nil
	}
	return v, nil
}

// prompt は1行読み込み、末尾の改行を除いて返す。入力の終端ではio.EOFを返す。
func (s *shell) prompt(p string) (string, error) {
	fmt.Fprint(s.out, p)
	line, err := s.in.ReadString('\n')
	if err != nil && line == "" {
		return "", io.EOF
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *shell) argID(args []string) (int64, bool) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Gunakan: <perintah> <id>")
		return 0, false
	}
	id, err := parseID(args[0])
	if err != nil {
		fmt.Fprintln(s.out, err.Error())
		return 0, false
	}
	return id, true
}

func (s *shell) render() error {
	fmt.Fprintln(s.out)
	return ui.Render(s.out, s.app.Snapshot(), s.loc)
}

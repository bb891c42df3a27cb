package app

import (
	"errors"
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	CommandServe       Command = "serve"
	CommandMigrate     Command = "migrate"
	CommandHealthcheck Command = "healthcheck"
	CommandHelp        Command = "help"
)

// ErrUnknownCommand は未知のサブコマンドが指定されたことを示す。
var ErrUnknownCommand = errors.New("unknown command")

// commandSpec は起動モードごとの属性。並び順はUsageの表示順。
type commandSpec struct {
	name    Command
	aliases []string
	summary string
	// loadsConfig はConfigの読み込みとログ初期化が必要かを表す。
	loadsConfig bool
}

var commandTable = []commandSpec{
	{CommandServe, nil, "apply migrations, then serve the HTTP API (default)", true},
	{CommandMigrate, nil, "create the database if DB_CREATE_DATABASE=true and apply migrations", true},
	{CommandHealthcheck, nil, "check GET /api/health on the local server (container healthcheck)", false},
	{CommandHelp, []string{"-h", "--help"}, "show this help", false},
}

func lookupCommand(c Command) (commandSpec, bool) {
	for _, spec := range commandTable {
		if spec.name == c {
			return spec, true
		}
	}
	return commandSpec{}, false
}

// ParseCommand は引数の先頭からサブコマンドを解析する。
// 引数が空の場合はCommandServe、未知のコマンドはErrUnknownCommandを返す。
// 2番目以降の引数は無視する。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	for _, spec := range commandTable {
		if args[0] == string(spec.name) {
			return spec.name, nil
		}
		for _, alias := range spec.aliases {
			if args[0] == alias {
				return spec.name, nil
			}
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownCommand, args[0])
}

// LoadsConfig はコマンドの実行前にConfigを読み込む必要があるかを返す。
// healthcheckとhelpは設定不備のコンテナでも動くよう読み込まない。
func (c Command) LoadsConfig() bool {
	spec, ok := lookupCommand(c)
	return ok && spec.loadsConfig
}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("usage: mahasiswa [command]\n\ncommands:\n")
	for _, spec := range commandTable {
		fmt.Fprintf(&b, "  %-12s %s\n", spec.name, spec.summary)
	}
	return b.String()
}

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/mahasiswa/internal/client"
)

// EnvAPIURL はAPIのベースURLを指定する環境変数名。
const EnvAPIURL = "MAHASISWA_API_URL"

// DefaultTimeout はHTTPリクエストのデフォルトタイムアウト。
const DefaultTimeout = 30 * time.Second

// ClientConfig はCLIの接続設定。YAMLファイルから読み込める。
//
//	api_url: http://localhost:3001/api
//	timeout: 10s
type ClientConfig struct {
	APIURL  string        `yaml:"api_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoadClientConfig は接続設定を解決する。
// 優先順位は flagURL > 環境変数MAHASISWA_API_URL > YAMLファイル > デフォルト値。
// pathが空の場合はファイルを読まない。指定されたファイルが存在しない場合はエラーを返す。
func LoadClientConfig(path, flagURL string) (*ClientConfig, error) {
	cfg := &ClientConfig{
		APIURL:  client.DefaultBaseURL,
		Timeout: DefaultTimeout,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		var fileCfg ClientConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if fileCfg.APIURL != "" {
			cfg.APIURL = fileCfg.APIURL
		}
		if fileCfg.Timeout < 0 {
			return nil, errors.New("timeout must not be negative")
		}
		if fileCfg.Timeout > 0 {
			cfg.Timeout = fileCfg.Timeout
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		cfg.APIURL = v
	}
	if v := strings.TrimSpace(flagURL); v != "" {
		cfg.APIURL = v
	}

	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return cfg, nil
}

package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// ChatConfig holds the fields of mlc-chat-config.json shown to the user.
// The engine reads the full file itself.
type ChatConfig struct {
	LocalID           string   `json:"local_id"`
	ModelLib          string   `json:"model_lib"`
	ModelName         string   `json:"model_name"`
	ModelCategory     string   `json:"model_category"`
	ConvTemplate      string   `json:"conv_template"`
	Temperature       *float64 `json:"temperature"`
	TopP              *float64 `json:"top_p"`
	RepetitionPenalty *float64 `json:"repetition_penalty"`
	MaxGenLen         *int     `json:"max_gen_len"`
}

// LoadChatConfig decodes the chat config at path.
func LoadChatConfig(path string) (ChatConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ChatConfig{}, fmt.Errorf("read chat config: %w", err)
	}
	var cfg ChatConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ChatConfig{}, fmt.Errorf("parse chat config %s: %w", path, err)
	}
	return cfg, nil
}

// ParamsManifest summarises ndarray-cache.json.
type ParamsManifest struct {
	Shards     int
	TotalBytes int64
}

type ndarrayCache struct {
	Records []struct {
		DataPath string `json:"dataPath"`
		NBytes   int64  `json:"nbytes"`
	} `json:"records"`
}

// LoadParamsManifest reads the parameter cache index in dir.
func LoadParamsManifest(dir string) (ParamsManifest, error) {
	path := filepath.Join(dir, ParamsName+jsonSuffix)
	data, err := os.ReadFile(path)
	if err != nil {
		return ParamsManifest{}, fmt.Errorf("read params manifest: %w", err)
	}
	var cache ndarrayCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return ParamsManifest{}, fmt.Errorf("parse params manifest %s: %w", path, err)
	}
	m := ParamsManifest{Shards: len(cache.Records)}
	for _, r := range cache.Records {
		m.TotalBytes += r.NBytes
	}
	return m, nil
}

// FormatSize renders a byte count for humans.
func FormatSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

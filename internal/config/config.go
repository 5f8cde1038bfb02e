package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type GridCfg struct {
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	Serpentine  bool   `yaml:"serpentine"`
	Orientation string `yaml:"orientation"` // top-left | top-right | bottom-left | bottom-right
}

type WLEDCfg struct {
	BaseURL     string `yaml:"base_url"` // e.g. http://wled.local
	SegmentID   int    `yaml:"segment_id"`
	Transport   string `yaml:"transport"` // "ws" | "http"
	WSDelayMS   int    `yaml:"ws_delay_ms"`
	HTTPDelayMS int    `yaml:"http_delay_ms"`
}

type SyncCfg struct {
	IdleMS      int `yaml:"idle_ms"`
	WSRetryMS   int `yaml:"ws_retry_ms"`
	HTTPRetryMS int `yaml:"http_retry_ms"`
}

type Config struct {
	Addr        string  `yaml:"addr"`
	AdminSecret string  `yaml:"admin_secret"`
	DBPath      string  `yaml:"db_path"`
	Grid        GridCfg `yaml:"grid"`
	WLED        WLEDCfg `yaml:"wled"`
	Sync        SyncCfg `yaml:"sync"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

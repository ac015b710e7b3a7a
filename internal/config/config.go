package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

type Config struct {
	OutputDir    string            `mapstructure:"output_dir"`
	Container    string            `mapstructure:"container"`
	FrameRate    int               `mapstructure:"frame_rate"`
	VideoCodec   string            `mapstructure:"video_codec"`
	VideoBitrate int               `mapstructure:"video_bitrate"`
	VideoOptions map[string]string `mapstructure:"video_options"`

	AudioCodec   string   `mapstructure:"audio_codec"`
	AudioBitrate int      `mapstructure:"audio_bitrate"`
	SampleRate   int      `mapstructure:"sample_rate"`
	AudioDevices []string `mapstructure:"audio_devices"`

	DrawCursor bool `mapstructure:"draw_cursor"`
	DrawClicks bool `mapstructure:"draw_clicks"`
	DrawKeys   bool `mapstructure:"draw_keys"`

	PreviewAddr string `mapstructure:"preview_addr"`

	LogFormat string `mapstructure:"log_format"`
	LogLevel  string `mapstructure:"log_level"`
	LogFile   string `mapstructure:"log_file"`
}

func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		OutputDir:    filepath.Join(home, "Videos"),
		Container:    "mp4",
		FrameRate:    30,
		VideoCodec:   "libx264",
		VideoBitrate: 2_500_000,
		VideoOptions: map[string]string{"preset": "veryfast", "tune": "zerolatency"},
		AudioCodec:   "aac",
		AudioBitrate: 128_000,
		SampleRate:   44100,
		DrawCursor:   true,
		LogFormat:    "text",
		LogLevel:     "info",
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("recap")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("RECAP")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("AppData"), "Recap")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Recap")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "recap")
	}
}

package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel          string `yaml:"log-level" env-default:"info"`
	HTTPPort          string `yaml:"http-port" env-default:"8000"`
	SocketPort        string `yaml:"socket-port" env-default:"8001"`
	SQLiteStoragePath string `yaml:"sqlite-storage-path"`
	Redis             Redis  `yaml:"redis"`
	Game              Game   `yaml:"game"`
	Reaper            Reaper `yaml:"reaper"`
}

type Redis struct {
	Host string `yaml:"host" env-default:"localhost"`
	Port string `yaml:"port" env-default:"6379"`
}

type Game struct {
	BoardSize int           `yaml:"board-size" env-default:"3"`
	TokenTTL  time.Duration `yaml:"token-ttl" env-default:"5m"`
}

type Reaper struct {
	Interval time.Duration `yaml:"interval" env-default:"60s"`
	RoomTTL  time.Duration `yaml:"room-ttl" env-default:"2h"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}

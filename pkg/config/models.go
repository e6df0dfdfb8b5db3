package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Database  DatabaseConfig
	Store     StoreConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address        string
	Auth           AuthConfig
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type AuthConfig struct {
	TokenSecret string `mapstructure:"tokenSecret"`
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	SendBuffer  int           `mapstructure:"sendBuffer"`
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

// StoreConfig sizes the I/O pool that all persistence calls run on.
type StoreConfig struct {
	Workers int
	Queue   int
}

type LogConfig struct {
	Level string
}

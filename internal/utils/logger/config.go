// internal/utils/logger/config.go
package logger

type Config struct {
	LogFile     string `mapstructure:"file"`
	MaxSize     int    `mapstructure:"max_size_mb"`  // мегабайты
	MaxAge      int    `mapstructure:"max_age_days"` // дни
	MaxBackups  int    `mapstructure:"max_backups"`  // количество файлов
	Compress    bool   `mapstructure:"compress"`     // сжимать ротированные файлы
	Development bool   `mapstructure:"development"`
	// DisableConsole пишет только в файл (для TUI).
	DisableConsole bool `mapstructure:"disable_console"`
	// Level: debug, info, warn, error. Пусто: debug в development, иначе info.
	Level string `mapstructure:"level"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		LogFile:     "keeper.log",
		MaxSize:     100,  // 100 MB
		MaxAge:      7,    // 7 дней
		MaxBackups:  3,    // 3 файла
		Compress:    true, // сжимать старые логи
		Development: false,
	}
}

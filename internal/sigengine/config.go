package sigengine

import (
	"time"

	"perpsignals/config"
)

// Config holds all env-parsed configuration for the signal engine service.
type Config struct {
	Symbols        []string
	Provider       string // "hyperliquid", "binance" or "sim[:scenario]"
	EvalInterval   time.Duration
	HistoryBars    int
	CandleInterval string
	MinCandles     int

	// MinConfidence below zero means "use the tuning value".
	MinConfidence float64

	SQLitePath string
	SignalKeep int // newest signal rows kept per prune, 0 keeps all
	CandleKeep int // newest archived candles kept per symbol, 0 keeps all

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// InfluxURL empty disables the InfluxDB sink.
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	MetricsAddr string
	APIAddr     string

	// AdminTOTPSecret empty disables strategy mutations over the API.
	AdminTOTPSecret string

	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string

	TuningFile string
	LogLevel   string

	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceTestnet   bool

	HyperliquidAPIURL string
	HyperliquidWSURL  string
}

// LoadConfig reads all environment variables and returns a Config.
func LoadConfig() Config {
	evalInterval := config.GetEnvInt("EVAL_INTERVAL_S", 60)
	if evalInterval <= 0 {
		evalInterval = 60
	}
	historyBars := config.GetEnvInt("HISTORY_BARS", 300)
	if historyBars <= 0 {
		historyBars = 300
	}
	minCandles := config.GetEnvInt("MIN_CANDLES", 50)
	if minCandles < 1 {
		minCandles = 1
	}
	symbols := config.ParseList(config.GetEnv("SYMBOLS", "BTC"))
	if len(symbols) == 0 {
		symbols = []string{"BTC"}
	}

	return Config{
		Symbols:        symbols,
		Provider:       config.GetEnv("PROVIDER", "sim"),
		EvalInterval:   time.Duration(evalInterval) * time.Second,
		HistoryBars:    historyBars,
		CandleInterval: config.GetEnv("CANDLE_INTERVAL", "1m"),
		MinCandles:     minCandles,
		MinConfidence:  config.GetEnvFloat("MIN_CONFIDENCE", -1),

		SQLitePath: config.GetEnv("SQLITE_PATH", "data/signals.db"),
		SignalKeep: config.GetEnvInt("SIGNAL_KEEP", 10000),
		CandleKeep: config.GetEnvInt("CANDLE_KEEP", 0),

		RedisAddr:     config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: config.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       config.GetEnvInt("REDIS_DB", 0),

		InfluxURL:    config.GetEnv("INFLUX_URL", ""),
		InfluxToken:  config.GetEnv("INFLUX_TOKEN", ""),
		InfluxOrg:    config.GetEnv("INFLUX_ORG", ""),
		InfluxBucket: config.GetEnv("INFLUX_BUCKET", "signals"),

		MetricsAddr: config.GetEnv("METRICS_ADDR", ":9091"),
		APIAddr:     config.GetEnv("API_ADDR", ":8080"),

		AdminTOTPSecret: config.GetEnv("ADMIN_TOTP_SECRET", ""),

		TelegramBotToken: config.GetEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   config.GetEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       config.GetEnv("WEBHOOK_URL", ""),

		TuningFile: config.GetEnv("TUNING_FILE", ""),
		LogLevel:   config.GetEnv("LOG_LEVEL", "info"),

		BinanceAPIKey:    config.GetEnv("BINANCE_API_KEY", ""),
		BinanceAPISecret: config.GetEnv("BINANCE_API_SECRET", ""),
		BinanceTestnet:   config.GetEnvBool("BINANCE_TESTNET", false),

		HyperliquidAPIURL: config.GetEnv("HYPERLIQUID_API_URL", ""),
		HyperliquidWSURL:  config.GetEnv("HYPERLIQUID_WS_URL", ""),
	}
}

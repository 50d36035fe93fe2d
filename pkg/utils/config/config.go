package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config est la structure principale de configuration de l'application
type Config struct {
	LogLevel string          `mapstructure:"log_level"`
	API      *APIConfig      `mapstructure:"api"`
	Database *DatabaseConfig `mapstructure:"database"`
	Redis    *RedisConfig    `mapstructure:"redis"`
	Oracle   *OracleConfig   `mapstructure:"oracle"`
}

// APIConfig contient la configuration du serveur API
type APIConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	ReadTimeout    int    `mapstructure:"read_timeout"`
	WriteTimeout   int    `mapstructure:"write_timeout"`
	MaxHeaderBytes int    `mapstructure:"max_header_bytes"`
}

// DatabaseConfig contient la configuration de la base de données
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	Database           string `mapstructure:"database"`
	Name               string `mapstructure:"name"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinConnections     int    `mapstructure:"min_connections"`
	MaxConnLifetime    int    `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime    int    `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod  int    `mapstructure:"health_check_period"`
}

// RedisConfig contient la configuration de Redis
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// OracleConfig holds the signal engine's own tunables (spec §4.5-§4.8).
type OracleConfig struct {
	ScanIntervalSeconds int     `mapstructure:"scan_interval_seconds"`
	SignalPercentile    float64 `mapstructure:"signal_percentile"`
	LiquidityMin        float64 `mapstructure:"liquidity_min"`
	Top10MaxRatio       float64 `mapstructure:"top10_max_ratio"`
	HoldersMin          int     `mapstructure:"holders_min"`

	SmartWalletMinROI      float64 `mapstructure:"sw_min_roi"`
	SmartWalletMinTrades   int     `mapstructure:"sw_min_trades"`
	SmartWalletMinWinRate  float64 `mapstructure:"sw_min_win_rate"`
	WalletRefreshEveryNCyc int     `mapstructure:"wallet_refresh_every_n_cycles"`

	WeightStealthAccumulation float64 `mapstructure:"weight_sa"`
	WeightHolderAcceleration  float64 `mapstructure:"weight_holder"`
	WeightVolatilityShift     float64 `mapstructure:"weight_vs"`
	WeightSWR                 float64 `mapstructure:"weight_swr"`
	WeightVolumeIntensity     float64 `mapstructure:"weight_vi"`
	WeightSellPressure        float64 `mapstructure:"weight_sell"`

	DedupWindowMinutes int     `mapstructure:"dedup_window_min"`
	MaxKellyMicrocap   float64 `mapstructure:"max_kelly_microcap"`
	RPCCooldownSeconds int     `mapstructure:"rpc_cooldown_sec"`

	RPCEndpoints      []string `mapstructure:"rpc_endpoints"`
	StreamURL         string   `mapstructure:"stream_url"`
	DexScreenerURL    string   `mapstructure:"dexscreener_url"`
	JupiterPriceURL   string   `mapstructure:"jupiter_price_url"`
	TelegramBotToken  string   `mapstructure:"telegram_bot_token"`
	TelegramChatID    string   `mapstructure:"telegram_chat_id"`
	CollectConcurrency int     `mapstructure:"collect_concurrency"`
	CycleDeadlineSeconds int   `mapstructure:"cycle_deadline_seconds"`
}

// Load charge la configuration à partir d'un fichier
func Load() (*Config, error) {
	// Régler les valeurs par défaut
	setDefaults()

	// Déterminer l'environnement
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Configurer Viper
	viper.SetConfigName("config")         // nom du fichier de configuration
	viper.SetConfigType("yaml")           // format du fichier de configuration
	viper.AddConfigPath(".")              // chercher dans le répertoire courant
	viper.AddConfigPath("./config")       // chercher dans ./config
	viper.AddConfigPath("../config")      // chercher dans ../config
	viper.AddConfigPath("/etc/crypto-oracle") // chercher dans /etc/crypto-oracle

	// Permettre la surcharge par les variables d'environnement
	viper.AutomaticEnv()

	// Lire la configuration
	if err := viper.ReadInConfig(); err != nil {
		// Si le fichier de configuration n'existe pas, c'est OK, on utilise les valeurs par défaut
		// et les variables d'environnement
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("erreur lors de la lecture du fichier de configuration: %w", err)
		}
	}

	// Charger la configuration spécifique à l'environnement
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	if err := viper.MergeInConfig(); err != nil {
		// Ignorer si le fichier spécifique à l'environnement n'existe pas
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("erreur lors de la lecture du fichier de configuration d'environnement: %w", err)
		}
	}

	// Charger la configuration dans la structure
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("impossible de décoder la configuration: %w", err)
	}

	return &config, nil
}

// setDefaults définit les valeurs par défaut pour la configuration
func setDefaults() {
	// Valeurs par défaut générales
	viper.SetDefault("log_level", "info")

	// Valeurs par défaut pour l'API
	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.read_timeout", 30)
	viper.SetDefault("api.write_timeout", 30)
	viper.SetDefault("api.max_header_bytes", 1048576) // 1MB

	// Valeurs par défaut pour la base de données
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.database", "crypto_oracle")
	viper.SetDefault("database.name", "crypto_oracle")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 20)
	viper.SetDefault("database.min_connections", 5)
	viper.SetDefault("database.max_conn_lifetime", 3600)
	viper.SetDefault("database.max_conn_idle_time", 1800)
	viper.SetDefault("database.health_check_period", 60)

	// Valeurs par défaut pour Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	// Valeurs par défaut pour le moteur de signal (oracle)
	viper.SetDefault("oracle.scan_interval_seconds", 30)
	viper.SetDefault("oracle.signal_percentile", 0.70)
	viper.SetDefault("oracle.liquidity_min", 1500.0)
	viper.SetDefault("oracle.top10_max_ratio", 0.50)
	viper.SetDefault("oracle.holders_min", 50)

	viper.SetDefault("oracle.sw_min_roi", 1.3)
	viper.SetDefault("oracle.sw_min_trades", 2)
	viper.SetDefault("oracle.sw_min_win_rate", 0.35)
	viper.SetDefault("oracle.wallet_refresh_every_n_cycles", 10)

	viper.SetDefault("oracle.weight_sa", 2.0)
	viper.SetDefault("oracle.weight_holder", 1.5)
	viper.SetDefault("oracle.weight_vs", 1.5)
	viper.SetDefault("oracle.weight_swr", 2.0)
	viper.SetDefault("oracle.weight_vi", 2.0)
	viper.SetDefault("oracle.weight_sell", 2.0)

	viper.SetDefault("oracle.dedup_window_min", 60)
	viper.SetDefault("oracle.max_kelly_microcap", 0.10)
	viper.SetDefault("oracle.rpc_cooldown_sec", 60)

	viper.SetDefault("oracle.rpc_endpoints", []string{"https://api.mainnet-beta.solana.com"})
	viper.SetDefault("oracle.stream_url", "wss://pumpportal.fun/api/data")
	viper.SetDefault("oracle.dexscreener_url", "https://api.dexscreener.com/latest/dex/tokens")
	viper.SetDefault("oracle.jupiter_price_url", "https://price.jup.ag/v6/price")
	viper.SetDefault("oracle.telegram_bot_token", "")
	viper.SetDefault("oracle.telegram_chat_id", "")
	viper.SetDefault("oracle.collect_concurrency", 8)
	viper.SetDefault("oracle.cycle_deadline_seconds", 25)
} 
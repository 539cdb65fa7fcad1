package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ClassifierConfig carries the tuning knobs of the table classifier.
// The scoring thresholds and weights are deliberately configuration,
// not literals, so retuning does not touch control flow.
type ClassifierConfig struct {
	MeteredIndicators      []string `mapstructure:"meteredIndicators"`
	SubscriptionIndicators []string `mapstructure:"subscriptionIndicators"`

	MeteredKeywords      []string `mapstructure:"meteredKeywords"`
	SubscriptionKeywords []string `mapstructure:"subscriptionKeywords"`

	DominantThreshold float64 `mapstructure:"dominantThreshold"`
	MixedThreshold    float64 `mapstructure:"mixedThreshold"`

	AvgPriceWeight float64 `mapstructure:"avgPriceWeight"`
	KeywordWeight  float64 `mapstructure:"keywordWeight"`

	// Average numeric token below LowPriceCutoff counts toward metered,
	// above HighPriceCutoff toward subscription.
	LowPriceCutoff  float64 `mapstructure:"lowPriceCutoff"`
	HighPriceCutoff float64 `mapstructure:"highPriceCutoff"`

	MeteredConfidenceCap      float64 `mapstructure:"meteredConfidenceCap"`
	SubscriptionConfidenceCap float64 `mapstructure:"subscriptionConfidenceCap"`
	MixedConfidence           float64 `mapstructure:"mixedConfidence"`
}

func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		MeteredIndicators: []string{
			"meter", "metric", "unit", "rate", "usage", "consumption",
			"per unit", "flat fee", "event", "api", "storage", "bandwidth",
			"cpu", "memory", "network", "backup", "processing", "compute",
		},
		SubscriptionIndicators: []string{
			"plan", "subscription", "monthly", "yearly", "tier",
			"package", "recurring", "interval",
		},
		MeteredKeywords:           []string{"hour", "gb", "request"},
		SubscriptionKeywords:      []string{"month", "year", "plan"},
		DominantThreshold:         0.3,
		MixedThreshold:            0.1,
		AvgPriceWeight:            10,
		KeywordWeight:             5,
		LowPriceCutoff:            1,
		HighPriceCutoff:           10,
		MeteredConfidenceCap:      90,
		SubscriptionConfidenceCap: 85,
		MixedConfidence:           75,
	}
}

type ClassifierConfigHolder struct {
	current atomic.Value // holds ClassifierConfig
}

func NewClassifierConfigHolder() (*ClassifierConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("classifier")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/stackbill/config")
	v.AddConfigPath("/etc/stackbill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STACKBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultClassifierConfig()
	setClassifierDefaults(v, defaults)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg ClassifierConfig
	if err := v.UnmarshalKey("classifier", &cfg); err != nil {
		return nil, err
	}
	if err := validateClassifierConfig(cfg); err != nil {
		return nil, err
	}

	holder := &ClassifierConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ClassifierConfig
		if err := v.UnmarshalKey("classifier", &updated); err != nil {
			log.Printf("[classifier-config] reload failed: %v", err)
			return
		}
		if err := validateClassifierConfig(updated); err != nil {
			log.Printf("[classifier-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[classifier-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *ClassifierConfigHolder) Get() ClassifierConfig {
	return h.current.Load().(ClassifierConfig)
}

func setClassifierDefaults(v *viper.Viper, cfg ClassifierConfig) {
	v.SetDefault("classifier.meteredIndicators", cfg.MeteredIndicators)
	v.SetDefault("classifier.subscriptionIndicators", cfg.SubscriptionIndicators)
	v.SetDefault("classifier.meteredKeywords", cfg.MeteredKeywords)
	v.SetDefault("classifier.subscriptionKeywords", cfg.SubscriptionKeywords)
	v.SetDefault("classifier.dominantThreshold", cfg.DominantThreshold)
	v.SetDefault("classifier.mixedThreshold", cfg.MixedThreshold)
	v.SetDefault("classifier.avgPriceWeight", cfg.AvgPriceWeight)
	v.SetDefault("classifier.keywordWeight", cfg.KeywordWeight)
	v.SetDefault("classifier.lowPriceCutoff", cfg.LowPriceCutoff)
	v.SetDefault("classifier.highPriceCutoff", cfg.HighPriceCutoff)
	v.SetDefault("classifier.meteredConfidenceCap", cfg.MeteredConfidenceCap)
	v.SetDefault("classifier.subscriptionConfidenceCap", cfg.SubscriptionConfidenceCap)
	v.SetDefault("classifier.mixedConfidence", cfg.MixedConfidence)
}

func validateClassifierConfig(cfg ClassifierConfig) error {
	if len(cfg.MeteredIndicators) == 0 {
		return errors.New("classifier.meteredIndicators cannot be empty")
	}
	if len(cfg.SubscriptionIndicators) == 0 {
		return errors.New("classifier.subscriptionIndicators cannot be empty")
	}
	if cfg.DominantThreshold <= 0 || cfg.DominantThreshold > 1 {
		return errors.New("classifier.dominantThreshold must be in (0, 1]")
	}
	if cfg.MixedThreshold < 0 || cfg.MixedThreshold >= cfg.DominantThreshold {
		return errors.New("classifier.mixedThreshold must be below dominantThreshold")
	}
	return nil
}

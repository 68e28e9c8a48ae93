package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/commshield/commstack/internal/logger"
	"github.com/commshield/commstack/internal/tracing"
)

type Config struct {
	AppConfig          *AppConfig
	Logger             *logger.Config
	Tracing            *tracing.JaegerConfig
	KafkaConfig        *KafkaConfig
	RetryConfig        *RetryConfig
	StorageConfig      *StorageConfig
	IMAPConfig         *IMAPConfig
	IngestionAPIConfig *IngestionAPIConfig
	NormalizerConfig   *NormalizerConfig
	DatabaseConfig     *DatabaseConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:          &AppConfig{},
		Logger:             &logger.Config{},
		Tracing:            &tracing.JaegerConfig{},
		KafkaConfig:        &KafkaConfig{},
		RetryConfig:        &RetryConfig{},
		StorageConfig:      &StorageConfig{},
		IMAPConfig:         &IMAPConfig{},
		IngestionAPIConfig: &IngestionAPIConfig{},
		NormalizerConfig:   &NormalizerConfig{},
		DatabaseConfig:     &DatabaseConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, err
	}

	return config, nil
}

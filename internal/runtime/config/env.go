package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays OPFLOW_* environment variables onto cfg. Malformed
// numbers and booleans leave their field unchanged and are reported in the
// returned error.
func FromEnv(cfg *Config) error {
	return FromLookup(cfg, os.Getenv)
}

// FromLookup is FromEnv with a custom variable source.
func FromLookup(cfg *Config, getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setList := func(key string, dst *[]string) {
		if v := getenv(key); v != "" {
			*dst = splitList(v)
		}
	}

	setString("OPFLOW_PUBSUB", &cfg.PubSubSystem)
	setString("OPFLOW_GROUP_ID", &cfg.ConsumerGroup)
	setList("OPFLOW_INPUT_TOPICS", &cfg.InputChannels)
	setList("OPFLOW_BROKERS", &cfg.KafkaBrokers)
	setString("OPFLOW_KAFKA_CLIENT_ID", &cfg.KafkaClientID)
	setString("OPFLOW_RABBITMQ_URL", &cfg.RabbitMQURL)
	setString("OPFLOW_NATS_URL", &cfg.NATSURL)
	setString("OPFLOW_AWS_REGION", &cfg.AWSRegion)
	setString("OPFLOW_AWS_ACCOUNT_ID", &cfg.AWSAccountID)
	setString("OPFLOW_AWS_ACCESS_KEY_ID", &cfg.AWSAccessKeyID)
	setString("OPFLOW_AWS_SECRET_ACCESS_KEY", &cfg.AWSSecretAccessKey)
	setString("OPFLOW_AWS_ENDPOINT", &cfg.AWSEndpoint)

	var errs []error
	setInt := func(key string, dst *int) {
		v := getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}

	setInt("OPFLOW_NUM_WORKERS", &cfg.Workers)
	setInt("OPFLOW_METRICS_PORT", &cfg.MetricsPort)
	if v := getenv("OPFLOW_METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("OPFLOW_METRICS_ENABLED: %w", err))
		} else {
			cfg.MetricsEnabled = b
		}
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package backend

import (
	"fmt"
	"net/url"

	"dompet/internal/assistant"
	"dompet/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	var gen assistant.Generator = assistant.StaticGenerator{}
	if appConfig.OpenAIAPIKey != "" {
		gen = assistant.NewOpenAI(
			appConfig.OpenAIAPIKey,
			appConfig.OpenAIBaseURL,
			appConfig.OpenAIModel,
			appConfig.OpenRouterReferrer,
			appConfig.OpenRouterTitle,
		)
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		DataDirectory: appConfig.DataDir,

		FinanceAPIURL:   appConfig.FinanceAPIURL,
		FinanceAPIToken: appConfig.FinanceAPIToken,

		Generator: gen,
		Location:  appConfig.Location(),
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
		// AMQP is optional
	case RemoteBackend:
		if c.FinanceAPIURL == "" {
			return fmt.Errorf("finance API URL is required for remote backend")
		}
		if _, err := url.Parse(c.FinanceAPIURL); err != nil {
			return fmt.Errorf("invalid finance API URL: %w", err)
		}
	case MemoryBackend:
		// DataDirectory is optional; without it the store starts empty.
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, RemoteBackend}
}

func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}

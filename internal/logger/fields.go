package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"
	// FieldTemplate identifies the prompt template of an AI call.
	FieldTemplate = "ai_template"

	FieldSource = "source"
	FieldDomain = "source_domain"

	// FieldCycle is attached to everything logged while a cycle runs.
	FieldCycle = "cycle_id"
	FieldState = "state"
	FieldJob   = "job_id"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger.
// A nil logger is replaced with a no-op one.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields returns standard zap fields that describe the AI provider and model.
// Empty values are ignored to keep log entries compact when information is missing.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithCommonFields attaches the common AI fields to the provided logger.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// WithSource tags a logger with the adapter name and the domain it talks to.
func WithSource(logger *zap.Logger, name, domain string) *zap.Logger {
	return WithFields(logger, StringFields(
		StringField{Key: FieldSource, Value: name},
		StringField{Key: FieldDomain, Value: domain},
	)...)
}

// WithCycle tags a logger with the cycle identifier.
func WithCycle(logger *zap.Logger, cycleID string) *zap.Logger {
	return WithFields(logger, StringFields(StringField{Key: FieldCycle, Value: cycleID})...)
}

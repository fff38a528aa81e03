package bus

import (
	"fmt"
	"strings"

	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// NewPublisher creates a Publisher based on the configuration. The "none"
// type returns a nil Publisher and no error. The "memory" type is for
// in-process callers that Subscribe to the returned *MemoryBus;
// config.Validate rejects it for the CLI.
func NewPublisher(cfg config.BusConfig) (Publisher, error) {
	switch strings.ToLower(cfg.Type) {
	case "none", "":
		return nil, nil

	case "memory":
		return NewMemoryBus(), nil

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.ValidationError("kafka brokers not configured")
		}
		kb, err := NewKafkaBus(KafkaConfig{
			Brokers:  brokers,
			ClientID: "rice-eval-bus",
		})
		if err != nil {
			return nil, err
		}
		return kb, nil

	case "file":
		if cfg.EventLog == "" {
			return nil, errors.ValidationError("event log path not configured")
		}
		fb, err := NewFileBus(cfg.EventLog)
		if err != nil {
			return nil, err
		}
		return fb, nil

	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}
}

package buddy

import (
	"errors"
	"fmt"
)

// ConfigError reports a malformed template pack. It is fatal at load time.
//
// Every topic needs at least one pattern except the default topic, which is only reached on a
// classification miss and may have none.
type ConfigError struct {
	Topic  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("template config: %s", e.Reason)
	}
	return fmt.Sprintf("template config: topic %q: %s", e.Topic, e.Reason)
}

var (
	// ErrScorerUnavailable is returned (wrapped) when the primary scorer fails, times out, or
	// produces values outside the declared ranges. Callers recover with the lexical fallback.
	ErrScorerUnavailable = errors.New("scorer unavailable")

	// ErrLocalizationMissing marks a missing localized variant. Recovered with the default language.
	ErrLocalizationMissing = errors.New("localized variant missing")
)

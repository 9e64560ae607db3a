package experiment

import "fmt"

// ConfigurationError reports an experiment definition the engine refuses
// to run: too few alternatives, malformed weights, a default re-set after
// it was committed. The caller must fix the definition; nothing here is
// retried or auto-corrected.
type ConfigurationError struct {
	Experiment string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("experiment %q: %s", e.Experiment, e.Reason)
}

func configErr(name, format string, args ...any) error {
	return &ConfigurationError{Experiment: name, Reason: fmt.Sprintf(format, args...)}
}

// Warning is a recoverable definition problem that Save corrects on the
// caller's behalf, e.g. promoting the first alternative to default.
type Warning struct {
	Code    string
	Message string
}

func (w Warning) String() string { return w.Message }

const (
	// WarnDefaultPromoted: no default (or an invalid one) was declared;
	// the first alternative was promoted.
	WarnDefaultPromoted = "default_promoted"
	// WarnMetricDeclared: no metric was declared; one named after the
	// experiment was created.
	WarnMetricDeclared = "metric_declared"
)

package alerting

import (
	"fmt"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"

	"github.com/inferloop/vusic/pkg/errors"
)

// AlertSeverity defines alert severity levels
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertRule defines conditions for triggering alerts
type AlertRule struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Query       string            `json:"query"`
	Duration    time.Duration     `json:"duration"`
	Severity    AlertSeverity     `json:"severity"`
	Labels      map[string]string `json:"labels"`
}

// AlertThresholds tune the generated encoder rules.
type AlertThresholds struct {
	P99Latency   time.Duration `json:"p99_latency" mapstructure:"p99_latency"`
	ErrorRatio   float64       `json:"error_ratio" mapstructure:"error_ratio"`
	DeviceErrors bool          `json:"device_errors" mapstructure:"device_errors"` // Alert on failed accelerated steps
}

// DefaultAlertThresholds returns thresholds suited to interactive encoding.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		P99Latency:   500 * time.Millisecond,
		ErrorRatio:   0.05,
		DeviceErrors: true,
	}
}

// EncoderRules builds alert rules over the encoder metrics with the given
// namespace and subsystem.
func EncoderRules(namespace, subsystem string, thresholds AlertThresholds) []*AlertRule {
	prefix := namespace + "_" + subsystem

	rules := []*AlertRule{
		{
			Name:        "EncoderHighErrorRatio",
			Description: fmt.Sprintf("More than %.0f%% of encode calls are failing.", thresholds.ErrorRatio*100),
			Query: fmt.Sprintf(
				`sum(rate(%[1]s_encode_requests_total{status="error"}[5m])) / sum(rate(%[1]s_encode_requests_total[5m])) > %[2]g`,
				prefix, thresholds.ErrorRatio),
			Duration: 5 * time.Minute,
			Severity: SeverityCritical,
		},
		{
			Name:        "EncoderSlowEncode",
			Description: fmt.Sprintf("p99 encode latency is above %s.", thresholds.P99Latency),
			Query: fmt.Sprintf(
				`histogram_quantile(0.99, sum by (le, device) (rate(%s_encode_duration_seconds_bucket[5m]))) > %g`,
				prefix, thresholds.P99Latency.Seconds()),
			Duration: 10 * time.Minute,
			Severity: SeverityWarning,
		},
		{
			Name:        "EncoderConfigurationErrors",
			Description: "Callers are sending sequences no longer than 2*context_length.",
			Query:       fmt.Sprintf(`increase(%s_errors_total{type="%s"}[15m]) > 0`, prefix, errors.ErrorTypeConfiguration),
			Duration:    0,
			Severity:    SeverityInfo,
		},
	}

	if thresholds.DeviceErrors {
		rules = append(rules, &AlertRule{
			Name:        "EncoderDeviceErrors",
			Description: "The accelerated device is failing GRU steps.",
			Query:       fmt.Sprintf(`increase(%s_errors_total{type="%s"}[10m]) > 0`, prefix, errors.ErrorTypeDevice),
			Duration:    time.Minute,
			Severity:    SeverityWarning,
		})
	}

	for _, rule := range rules {
		rule.Labels = map[string]string{
			"service":  namespace,
			"severity": string(rule.Severity),
		}
	}
	return rules
}

type ruleFile struct {
	Groups []ruleGroup `yaml:"groups"`
}

type ruleGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertSpec `yaml:"rules"`
}

type alertSpec struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty"`
}

// ToPrometheusYAML renders rules as a Prometheus rule file with one group.
func ToPrometheusYAML(group string, rules []*AlertRule) ([]byte, error) {
	g := ruleGroup{Name: group}
	for _, rule := range rules {
		if rule.Name == "" || rule.Query == "" {
			return nil, errors.NewValidationError("INVALID_ALERT_RULE", "alert rule requires a name and a query")
		}
		spec := alertSpec{
			Alert:  rule.Name,
			Expr:   rule.Query,
			Labels: rule.Labels,
		}
		if rule.Duration > 0 {
			spec.For = model.Duration(rule.Duration).String()
		}
		if rule.Description != "" {
			spec.Annotations = map[string]string{"description": rule.Description}
		}
		g.Rules = append(g.Rules, spec)
	}
	return yaml.Marshal(ruleFile{Groups: []ruleGroup{g}})
}

package dashboards

import (
	"encoding/json"
	"fmt"
)

// GrafanaDashboard represents a Grafana dashboard configuration
type GrafanaDashboard struct {
	UID           string           `json:"uid"`
	Title         string           `json:"title"`
	Tags          []string         `json:"tags"`
	Timezone      string           `json:"timezone"`
	Editable      bool             `json:"editable"`
	Time          TimeConfig       `json:"time"`
	Templating    TemplatingConfig `json:"templating"`
	Refresh       string           `json:"refresh"`
	SchemaVersion int              `json:"schemaVersion"`
	Version       int              `json:"version"`
	Panels        []Panel          `json:"panels"`
}

// TimeConfig configures dashboard time range
type TimeConfig struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TemplatingConfig configures dashboard variables
type TemplatingConfig struct {
	List []Variable `json:"list"`
}

// Variable represents a dashboard variable
type Variable struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Label      string `json:"label"`
	Query      string `json:"query"`
	Datasource string `json:"datasource"`
	Refresh    int    `json:"refresh"`
	IncludeAll bool   `json:"includeAll"`
	Multi      bool   `json:"multi"`
}

// Panel represents a dashboard panel
type Panel struct {
	ID          int         `json:"id"`
	Title       string      `json:"title"`
	Type        string      `json:"type"`
	GridPos     GridPos     `json:"gridPos"`
	Targets     []Target    `json:"targets"`
	FieldConfig FieldConfig `json:"fieldConfig"`
	Description string      `json:"description,omitempty"`
}

// GridPos defines panel position and size
type GridPos struct {
	H int `json:"h"`
	W int `json:"w"`
	X int `json:"x"`
	Y int `json:"y"`
}

// Target represents a query target
type Target struct {
	Expr         string `json:"expr"`
	LegendFormat string `json:"legendFormat"`
	RefID        string `json:"refId"`
}

// FieldConfig configures field properties
type FieldConfig struct {
	Defaults FieldDefaults `json:"defaults"`
}

// FieldDefaults defines default field configuration
type FieldDefaults struct {
	Unit     string   `json:"unit"`
	Min      *float64 `json:"min,omitempty"`
	Decimals *int     `json:"decimals,omitempty"`
}

// CreateEncoderDashboard builds a dashboard over the metrics exported by
// metrics.PrometheusMetrics with the given namespace and subsystem.
func CreateEncoderDashboard(namespace, subsystem string) *GrafanaDashboard {
	prefix := namespace + "_" + subsystem

	return &GrafanaDashboard{
		UID:      prefix + "-overview",
		Title:    fmt.Sprintf("%s %s overview", namespace, subsystem),
		Tags:     []string{namespace, subsystem, "encoder"},
		Timezone: "browser",
		Editable: true,
		Time: TimeConfig{
			From: "now-1h",
			To:   "now",
		},
		Templating: TemplatingConfig{
			List: []Variable{
				{
					Name:       "device",
					Type:       "query",
					Label:      "Device",
					Query:      fmt.Sprintf("label_values(%s_encode_requests_total, device)", prefix),
					Datasource: "Prometheus",
					Refresh:    1,
					IncludeAll: true,
					Multi:      true,
				},
			},
		},
		Refresh:       "30s",
		SchemaVersion: 39,
		Version:       1,
		Panels:        createEncoderPanels(prefix),
	}
}

func createEncoderPanels(prefix string) []Panel {
	device := `device=~"$device"`

	return []Panel{
		{
			ID:      1,
			Title:   "Encode Rate",
			Type:    "timeseries",
			GridPos: GridPos{H: 8, W: 12, X: 0, Y: 0},
			Targets: []Target{
				{
					Expr:         fmt.Sprintf("sum by (device, status) (rate(%s_encode_requests_total{%s}[$__rate_interval]))", prefix, device),
					LegendFormat: "{{device}} {{status}}",
					RefID:        "A",
				},
			},
			FieldConfig: FieldConfig{Defaults: FieldDefaults{Unit: "reqps", Min: float64Ptr(0)}},
		},
		{
			ID:      2,
			Title:   "Encode Latency",
			Type:    "timeseries",
			GridPos: GridPos{H: 8, W: 12, X: 12, Y: 0},
			Targets: []Target{
				quantileTarget(prefix, device, 0.50, "A"),
				quantileTarget(prefix, device, 0.95, "B"),
				quantileTarget(prefix, device, 0.99, "C"),
			},
			FieldConfig: FieldConfig{Defaults: FieldDefaults{Unit: "s", Min: float64Ptr(0)}},
		},
		{
			ID:      3,
			Title:   "Context Vectors per Second",
			Type:    "timeseries",
			GridPos: GridPos{H: 8, W: 12, X: 0, Y: 8},
			Targets: []Target{
				{
					Expr:         fmt.Sprintf("sum by (device) (rate(%s_frames_encoded_total{%s}[$__rate_interval]))", prefix, device),
					LegendFormat: "{{device}}",
					RefID:        "A",
				},
			},
			FieldConfig: FieldConfig{Defaults: FieldDefaults{Unit: "short", Min: float64Ptr(0)}},
		},
		{
			ID:          4,
			Title:       "Errors by Type",
			Type:        "timeseries",
			GridPos:     GridPos{H: 8, W: 12, X: 12, Y: 8},
			Description: "Configuration errors usually mean sequences shorter than 2*context_length+1.",
			Targets: []Target{
				{
					Expr:         fmt.Sprintf("sum by (type) (rate(%s_errors_total[$__rate_interval]))", prefix),
					LegendFormat: "{{type}}",
					RefID:        "A",
				},
			},
			FieldConfig: FieldConfig{Defaults: FieldDefaults{Unit: "reqps", Min: float64Ptr(0)}},
		},
		{
			ID:      5,
			Title:   "Parameter Initializations",
			Type:    "stat",
			GridPos: GridPos{H: 4, W: 6, X: 0, Y: 16},
			Targets: []Target{
				{
					Expr:  fmt.Sprintf("sum(%s_parameter_inits_total)", prefix),
					RefID: "A",
				},
			},
			FieldConfig: FieldConfig{Defaults: FieldDefaults{Unit: "short", Decimals: intPtr(0)}},
		},
	}
}

func quantileTarget(prefix, device string, q float64, ref string) Target {
	return Target{
		Expr:         fmt.Sprintf("histogram_quantile(%.2f, sum by (le) (rate(%s_encode_duration_seconds_bucket{%s}[$__rate_interval])))", q, prefix, device),
		LegendFormat: fmt.Sprintf("p%.0f", q*100),
		RefID:        ref,
	}
}

// ToJSON converts the dashboard to JSON
func (d *GrafanaDashboard) ToJSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

func float64Ptr(f float64) *float64 {
	return &f
}

func intPtr(i int) *int {
	return &i
}

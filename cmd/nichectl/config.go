package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	niche "nichemodeller/pkg/nichemodeller"
)

// createConfig is the training document accepted by create --config.
type createConfig struct {
	Request niche.CreateRequest
	Out     string
}

// projectConfig is the projection document accepted by project --config.
type projectConfig struct {
	Request   niche.ProjectRequest
	ModelFile string
	Publish   string
}

func loadCreateConfig(path string) (createConfig, error) {
	raw, err := readConfig(path)
	if err != nil {
		return createConfig{}, err
	}

	var cfg createConfig
	req := &cfg.Request
	if v, ok := asString(raw["model_id"]); ok {
		req.ModelID = v
	}
	if v, ok := asString(raw["algorithm"]); ok {
		req.Algorithm = v
	}
	if v, ok := asString(raw["occurrences"]); ok {
		req.Occurrences = v
	}
	if v, ok := asString(raw["species"]); ok {
		req.Species = v
	}
	if v, ok := asString(raw["coord_system"]); ok {
		req.CoordSystem = v
	}
	if v, ok := asString(raw["mask"]); ok {
		req.Mask = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asFloat64(raw["test_proportion"]); ok {
		req.TestProportion = v
	}
	if v, ok := asString(raw["out"]); ok {
		cfg.Out = v
	}
	if params, ok := raw["parameters"].(map[string]any); ok {
		req.Parameters = make(map[string]string, len(params))
		for id, v := range params {
			s, err := parameterString(v)
			if err != nil {
				return createConfig{}, fmt.Errorf("parameter %s: %w", id, err)
			}
			req.Parameters[id] = s
		}
	}
	layers, err := asLayers(raw["layers"])
	if err != nil {
		return createConfig{}, err
	}
	req.Layers = layers
	return cfg, nil
}

func loadProjectConfig(path string) (projectConfig, error) {
	raw, err := readConfig(path)
	if err != nil {
		return projectConfig{}, err
	}

	var cfg projectConfig
	req := &cfg.Request
	if v, ok := asString(raw["model_id"]); ok {
		req.ModelID = v
	}
	if v, ok := asString(raw["model"]); ok {
		cfg.ModelFile = v
	}
	if v, ok := asString(raw["mask"]); ok {
		req.Mask = v
	}
	if v, ok := asString(raw["output"]); ok {
		req.Output = v
	}
	if v, ok := asString(raw["encoding"]); ok {
		req.Encoding = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := asString(raw["publish"]); ok {
		cfg.Publish = v
	}
	layers, err := asLayers(raw["layers"])
	if err != nil {
		return projectConfig{}, err
	}
	req.Layers = layers
	return cfg, nil
}

func readConfig(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return raw, nil
}

// asLayers accepts plain paths or {"path": ..., "categorical": ...} objects.
func asLayers(v any) ([]niche.LayerRequest, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("layers must be a list")
	}
	layers := make([]niche.LayerRequest, 0, len(items))
	for i, item := range items {
		switch x := item.(type) {
		case string:
			layers = append(layers, niche.LayerRequest{Path: x})
		case map[string]any:
			path, ok := asString(x["path"])
			if !ok || path == "" {
				return nil, fmt.Errorf("layer %d: missing path", i)
			}
			categorical, _ := asBool(x["categorical"])
			layers = append(layers, niche.LayerRequest{Path: path, Categorical: categorical})
		default:
			return nil, fmt.Errorf("layer %d: unsupported value %v", i, item)
		}
	}
	return layers, nil
}

func parameterString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	default:
		return "", fmt.Errorf("unsupported value %v", v)
	}
}

// parseLayerFlags merges --layers and --categorical into layer requests.
func parseLayerFlags(layers, categorical string) []niche.LayerRequest {
	var out []niche.LayerRequest
	for _, path := range splitList(categorical) {
		out = append(out, niche.LayerRequest{Path: path, Categorical: true})
	}
	for _, path := range splitList(layers) {
		out = append(out, niche.LayerRequest{Path: path})
	}
	return out
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// paramFlags collects repeated --param id=value flags.
type paramFlags map[string]string

func (p paramFlags) String() string {
	parts := make([]string, 0, len(p))
	for k, v := range p {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (p paramFlags) Set(v string) error {
	id, value, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(id) == "" {
		return fmt.Errorf("expected id=value, got %q", v)
	}
	p[strings.TrimSpace(id)] = strings.TrimSpace(value)
	return nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 讓 yaml 可以用 "30m"、"3s" 這類字串表示時間
// (yaml.v3 無法直接解析 time.Duration 的字串格式)
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

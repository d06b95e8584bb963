package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// TestDurationUnmarshal yaml 的 "30m"、"3s" 字串要能解成對應的時間值
func TestDurationUnmarshal(t *testing.T) {
	var cfg struct {
		Lifetime Duration `yaml:"lifetime"`
		Wait     Duration `yaml:"wait"`
	}
	src := "lifetime: 30m\nwait: 3s\n"
	if err := yaml.Unmarshal([]byte(src), &cfg); err != nil {
		t.Fatal(err)
	}
	if time.Duration(cfg.Lifetime) != 30*time.Minute {
		t.Fatalf("lifetime=%v want=30m", time.Duration(cfg.Lifetime))
	}
	if time.Duration(cfg.Wait) != 3*time.Second {
		t.Fatalf("wait=%v want=3s", time.Duration(cfg.Wait))
	}
}

// TestDurationUnmarshalInvalid 不合法的時間字串必須報錯，不得靜默歸零
func TestDurationUnmarshalInvalid(t *testing.T) {
	var cfg struct {
		Wait Duration `yaml:"wait"`
	}
	if err := yaml.Unmarshal([]byte("wait: quickly\n"), &cfg); err == nil {
		t.Fatal("invalid duration should fail to parse")
	}
}

// Package config loads accelerator specs and graph descriptions from YAML
// (§6 "Input: accelerator spec" / "Input: graph description"), extending
// the teacher's bare ModelName/InputSize Config struct with the layered
// viper overrides the rest of the pack's cobra-based repos use. Grounded
// on duchm1606-gocnn/internal/config/config.go's yaml-tagged struct
// pattern.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dnncompile/dnncompile/internal/accel"
)

// AccelSpecFile is the YAML-facing mirror of accel.Spec (§2, §6).
type AccelSpecFile struct {
	N int `yaml:"n" mapstructure:"n"`
	M int `yaml:"m" mapstructure:"m"`

	IBUFBytes uint64 `yaml:"ibuf_bytes" mapstructure:"ibuf_bytes"`
	WBUFBytes uint64 `yaml:"wbuf_bytes" mapstructure:"wbuf_bytes"`
	OBUFBytes uint64 `yaml:"obuf_bytes" mapstructure:"obuf_bytes"`
	BBUFBytes uint64 `yaml:"bbuf_bytes" mapstructure:"bbuf_bytes"`

	DRAMWidthBits int     `yaml:"dram_width_bits" mapstructure:"dram_width_bits"`
	ClockHz       float64 `yaml:"clock_hz" mapstructure:"clock_hz"`

	MinPrecisionBits int `yaml:"min_precision_bits" mapstructure:"min_precision_bits"`
	MaxPrecisionBits int `yaml:"max_precision_bits" mapstructure:"max_precision_bits"`
}

// ToSpec converts the YAML-facing struct into the accel.Spec the cost
// model, optimizer, and compiler consume.
func (f AccelSpecFile) ToSpec() accel.Spec {
	return accel.Spec{
		N: f.N, M: f.M,
		IBUFBytes:        f.IBUFBytes,
		WBUFBytes:        f.WBUFBytes,
		OBUFBytes:        f.OBUFBytes,
		BBUFBytes:        f.BBUFBytes,
		DRAMWidthBits:    f.DRAMWidthBits,
		ClockHz:          f.ClockHz,
		MinPrecisionBits: f.MinPrecisionBits,
		MaxPrecisionBits: f.MaxPrecisionBits,
	}
}

// LoadAccelSpec reads an AccelSpec from path via viper, so that
// DNNCOMPILE_-prefixed environment variables override individual fields
// (the layered config pattern CWBudde-go-pocket-tts uses for
// cobra+viper+yaml). The viper instance is local to the call; no CLI
// flags are bound to it.
func LoadAccelSpec(path string) (accel.Spec, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("DNNCOMPILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("n", 16)
	v.SetDefault("m", 16)
	v.SetDefault("dram_width_bits", 256)
	v.SetDefault("min_precision_bits", 1)
	v.SetDefault("max_precision_bits", 64)

	if err := v.ReadInConfig(); err != nil {
		return accel.Spec{}, fmt.Errorf("config: reading accelerator spec %q: %w", path, err)
	}

	var file AccelSpecFile
	if err := v.Unmarshal(&file); err != nil {
		return accel.Spec{}, fmt.Errorf("config: decoding accelerator spec %q: %w", path, err)
	}
	return file.ToSpec(), nil
}

// ParseAccelSpec decodes raw YAML bytes directly, bypassing viper (so no
// defaults and no environment overrides apply) — used by tests and by
// callers that already hold the bytes.
func ParseAccelSpec(data []byte) (accel.Spec, error) {
	var file AccelSpecFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return accel.Spec{}, fmt.Errorf("config: parsing accelerator spec: %w", err)
	}
	return file.ToSpec(), nil
}

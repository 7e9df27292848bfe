package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Centering selects how a baseline is placed when a placeholder has no stored line metrics.
type Centering string

const (
	// CenterAscent centres the glyph ascent inside the rect.
	CenterAscent Centering = "ascent"
	// CenterBox centres the full ascent+descent box inside the rect.
	CenterBox Centering = "box"
)

// RenderPolicy is the typography policy applied when redrawing replacement text.
type RenderPolicy struct {
	DefaultFontSize float64   `yaml:"default_font_size"`
	MinFontSize     float64   `yaml:"min_font_size"`
	MaxFontSize     float64   `yaml:"max_font_size"`
	ShrinkStep      float64   `yaml:"shrink_step"`
	MaxShrinkSteps  int       `yaml:"max_shrink_steps"`
	Padding         float64   `yaml:"padding"`
	LineSpacing     float64   `yaml:"line_spacing"`
	FontName        string    `yaml:"font_name"`
	TextColor       string    `yaml:"text_color"`
	BackgroundColor string    `yaml:"background_color"`
	Centering       Centering `yaml:"centering"`
}

// DefaultRenderPolicy returns the built-in policy.
func DefaultRenderPolicy() RenderPolicy {
	return RenderPolicy{
		DefaultFontSize: 10,
		MinFontSize:     4,
		MaxFontSize:     72,
		ShrinkStep:      0.5,
		MaxShrinkSteps:  200,
		Padding:         0,
		LineSpacing:     1.2,
		FontName:        "helv",
		TextColor:       "#000000",
		BackgroundColor: "#FFFFFF",
		Centering:       CenterAscent,
	}
}

// LoadRenderPolicy reads a YAML policy file on top of the defaults.
func LoadRenderPolicy(path string) (RenderPolicy, error) {
	policy := DefaultRenderPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read render policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("parse render policy %s: %w", path, err)
	}
	return policy, policy.Validate()
}

// Validate checks the policy bounds.
func (p RenderPolicy) Validate() error {
	if p.MinFontSize <= 0 {
		return fmt.Errorf("min_font_size must be positive, got %g", p.MinFontSize)
	}
	if p.MaxFontSize < p.MinFontSize {
		return fmt.Errorf("max_font_size %g is below min_font_size %g", p.MaxFontSize, p.MinFontSize)
	}
	if p.DefaultFontSize < p.MinFontSize || p.DefaultFontSize > p.MaxFontSize {
		return fmt.Errorf("default_font_size %g is outside [%g, %g]", p.DefaultFontSize, p.MinFontSize, p.MaxFontSize)
	}
	if p.ShrinkStep <= 0 || p.MaxShrinkSteps < 0 {
		return fmt.Errorf("shrink_step must be positive and max_shrink_steps non-negative")
	}
	if p.Padding < 0 {
		return fmt.Errorf("padding must not be negative, got %g", p.Padding)
	}
	if p.LineSpacing <= 0 {
		return fmt.Errorf("line_spacing must be positive, got %g", p.LineSpacing)
	}
	switch p.Centering {
	case CenterAscent, CenterBox:
	default:
		return fmt.Errorf("centering must be %q or %q, got %q", CenterAscent, CenterBox, p.Centering)
	}
	if _, err := ParseColor(p.TextColor); err != nil {
		return err
	}
	if _, err := ParseColor(p.BackgroundColor); err != nil {
		return err
	}
	return nil
}

// Color is an RGB colour with components in [0,1].
type Color struct {
	R, G, B float64
}

// ParseColor parses "#RRGGBB" (the leading # is optional).
func ParseColor(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("invalid colour %q: want #RRGGBB", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return Color{
		R: float64((v>>16)&0xff) / 255,
		G: float64((v>>8)&0xff) / 255,
		B: float64(v&0xff) / 255,
	}, nil
}

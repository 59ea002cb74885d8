package track

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

type loadConfig struct {
	round bool
	name  string
}

type LoadOption func(*loadConfig)

// WithRounding rounds every coordinate to the nearest integer.
func WithRounding(round bool) LoadOption {
	return func(c *loadConfig) {
		c.round = round
	}
}

// WithSourceName sets the name used in error messages and as geometry name.
func WithSourceName(name string) LoadOption {
	return func(c *loadConfig) {
		c.name = name
	}
}

// yamlTrack is the YAML representation of a track.
//
//	name: oval
//	walls:
//	  - [0, 0, 0, 100]
type yamlTrack struct {
	Name  string      `yaml:"name"`
	Walls [][]float64 `yaml:"walls"`
}

// LoadFile reads a track from path. Files ending in .yml or .yaml are read
// as YAML, everything else with the line based text format.
func LoadFile(path string, opts ...LoadOption) (*Geometry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck // read only
	defer f.Close()

	opts = append([]LoadOption{WithSourceName(path)}, opts...)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return ParseYAML(f, opts...)
	default:
		return Parse(f, opts...)
	}
}

// Parse reads the text format. The first line is a header and skipped.
// Every following non-empty line holds one wall as four numbers separated by
// commas and/or whitespace, e.g. "12,40 12,80".
func Parse(r io.Reader, opts ...LoadOption) (*Geometry, error) {
	cfg := newLoadConfig(opts...)
	var walls []WallSegment
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			continue
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})
		if len(fields) != 4 {
			return nil, fmt.Errorf("%s:%d: expected 4 values, got %d: %w",
				cfg.name, lineNo, len(fields), ErrMalformedTrack)
		}
		var v [4]float64
		for i, field := range fields {
			f, err := strconv.ParseFloat(field, 64)
			if err != nil || !finite(f) {
				return nil, fmt.Errorf("%s:%d: %q is not a finite number: %w",
					cfg.name, lineNo, field, ErrMalformedTrack)
			}
			v[i] = f
		}
		walls = append(walls, cfg.wall(v))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.name, err)
	}
	if len(walls) == 0 {
		return nil, fmt.Errorf("%s: %w", cfg.name, ErrEmptyTrack)
	}
	return NewGeometry(walls, WithName(cfg.name))
}

// ParseYAML reads the YAML format.
func ParseYAML(r io.Reader, opts ...LoadOption) (*Geometry, error) {
	cfg := newLoadConfig(opts...)
	var doc yamlTrack
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%s: %w", cfg.name, ErrEmptyTrack)
		}
		return nil, fmt.Errorf("%s: %w: %w", cfg.name, ErrMalformedTrack, err)
	}
	if len(doc.Walls) == 0 {
		return nil, fmt.Errorf("%s: %w", cfg.name, ErrEmptyTrack)
	}
	walls := make([]WallSegment, 0, len(doc.Walls))
	for i, w := range doc.Walls {
		if len(w) != 4 {
			return nil, fmt.Errorf("%s: wall %d: expected 4 values, got %d: %w",
				cfg.name, i, len(w), ErrMalformedTrack)
		}
		for _, v := range w {
			if !finite(v) {
				return nil, fmt.Errorf("%s: wall %d: %v is not a finite number: %w",
					cfg.name, i, v, ErrMalformedTrack)
			}
		}
		walls = append(walls, cfg.wall([4]float64{w[0], w[1], w[2], w[3]}))
	}
	name := doc.Name
	if name == "" {
		name = cfg.name
	}
	return NewGeometry(walls, WithName(name))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func newLoadConfig(opts ...LoadOption) *loadConfig {
	cfg := &loadConfig{name: "track"}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *loadConfig) wall(v [4]float64) WallSegment {
	if c.round {
		for i := range v {
			v[i] = math.Round(v[i])
		}
	}
	return Wall(v[0], v[1], v[2], v[3])
}

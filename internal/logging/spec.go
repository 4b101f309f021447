package logging

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Spec is a base level with optional per-component overrides, written as
// "<level>[,<component>=<level>]...", for example "warn,migrate=debug".
type Spec struct {
	Base       Level
	Components map[string]Level
}

// ParseSpec parses a level spec. An empty string means info.
func ParseSpec(s string) (Spec, error) {
	spec := Spec{Base: LevelInfo, Components: map[string]Level{}}
	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, level, ok := strings.Cut(part, "=")
		if !ok {
			if i != 0 {
				return spec, fmt.Errorf("base level %q must come first", part)
			}
			l, err := ParseLevel(part)
			if err != nil {
				return spec, err
			}
			spec.Base = l
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return spec, fmt.Errorf("empty component name in %q", part)
		}
		l, err := ParseLevel(level)
		if err != nil {
			return spec, fmt.Errorf("component %s: %w", name, err)
		}
		spec.Components[name] = l
	}
	return spec, nil
}

// LevelFor returns the level that applies to component.
func (s Spec) LevelFor(component string) Level {
	if l, ok := s.Components[component]; ok {
		return l
	}
	return s.Base
}

// Min returns the most verbose level in the spec.
func (s Spec) Min() Level {
	lowest := s.Base
	for _, l := range s.Components {
		if l < lowest {
			lowest = l
		}
	}
	return lowest
}

func (s Spec) String() string {
	parts := []string{s.Base.String()}
	for _, name := range slices.Sorted(maps.Keys(s.Components)) {
		parts = append(parts, name+"="+s.Components[name].String())
	}
	return strings.Join(parts, ",")
}

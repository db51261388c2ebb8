package effect

import (
	"errors"
	"fmt"
	"strings"

	"pixora/internal/catalog"
)

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrNoBase      = errors.New("no base reference")
)

const (
	transformParam = "tr="
	fragmentSep    = ","
)

// Compose builds the composite descriptor for base with the effects applied in
// order. It is recomputed from the whole list every time, so a removed effect
// never leaves a trace. An empty list yields the bare base reference.
func Compose(cat *catalog.Catalog, base string, effects []Applied) (string, error) {
	if base == "" {
		return "", ErrNoBase
	}
	if len(effects) == 0 {
		return base, nil
	}
	fragments := make([]string, 0, len(effects))
	for _, e := range effects {
		tool, ok := cat.Lookup(e.ToolID)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownTool, e.ToolID)
		}
		fragments = append(fragments, tool.Descriptor(e.Param))
	}
	return base + separator(base) + transformParam + strings.Join(fragments, fragmentSep), nil
}

func separator(base string) string {
	if strings.Contains(base, "?") {
		return "&"
	}
	return "?"
}

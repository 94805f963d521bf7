package main

import (
	"strconv"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tessera/models"
	"github.com/aukilabs/tessera/modules"
	"github.com/aukilabs/tessera/provider/tms"
)

// parseLayer parses a layer definition:
//
//	kind=url[;name=value]...
//
// Supported options are name, min_level, max_level, sse, point_budget and
// overlay. An overlay is a {z}/{x}/{y} raster template draped over globe and
// planar layers.
func parseLayer(def string, defaults models.LayerOptions) (models.LayerOptions, error) {
	parts := strings.Split(strings.TrimSpace(def), ";")

	kind, url, ok := strings.Cut(parts[0], "=")
	if !ok || kind == "" || url == "" {
		return models.LayerOptions{}, errors.New("layer definition is not kind=url").
			WithType(models.ErrTypeConfiguration).
			WithTag("layer", def)
	}

	opts := defaults
	opts.Kind = strings.TrimSpace(kind)
	opts.URL = strings.TrimSpace(url)

	var overlays []string
	for _, p := range parts[1:] {
		if strings.TrimSpace(p) == "" {
			continue
		}

		key, value, ok := strings.Cut(p, "=")
		if !ok {
			return models.LayerOptions{}, errors.New("layer option is not name=value").
				WithType(models.ErrTypeConfiguration).
				WithTag("layer", def).
				WithTag("option", p)
		}

		var err error
		switch strings.TrimSpace(key) {
		case "name":
			opts.Name = value

		case "min_level":
			opts.MinLevel, err = parseLevel(value)

		case "max_level":
			opts.MaxLevel, err = parseLevel(value)

		case "sse":
			opts.SSEThreshold, err = strconv.ParseFloat(value, 64)

		case "point_budget":
			opts.PointBudget, err = strconv.Atoi(value)

		case "overlay":
			overlays = append(overlays, value)

		default:
			err = errors.New("unknown option")
		}

		if err != nil {
			return models.LayerOptions{}, errors.New("parsing layer option failed").
				WithType(models.ErrTypeConfiguration).
				WithTag("layer", def).
				WithTag("option", key).
				Wrap(err)
		}
	}

	maxLevel := opts.MaxLevel
	if maxLevel == 0 {
		maxLevel = models.DefaultMaxLevel
	}
	for i, o := range overlays {
		opts.Overlays = append(opts.Overlays, modules.NewRasterOverlay(
			"overlay-"+strconv.Itoa(i),
			tms.Protocol,
			o,
			0,
			maxLevel,
		))
	}
	return opts, nil
}

func parseLevel(v string) (uint, error) {
	level, err := strconv.ParseUint(v, 10, 32)
	return uint(level), err
}

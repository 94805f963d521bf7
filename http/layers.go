package http

import (
	"net/http"
	"strconv"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tessera/engine"
	"github.com/paulmach/orb/geojson"
	"github.com/segmentio/encoding/json"
)

// LayerSummary describes a layer without its displayed nodes.
type LayerSummary struct {
	ID           uint32  `json:"id"`
	UUID         string  `json:"uuid"`
	Name         string  `json:"name"`
	Kind         string  `json:"kind"`
	Visible      bool    `json:"visible"`
	Opacity      float64 `json:"opacity"`
	NodeCount    int     `json:"node_count"`
	VisibleCount int     `json:"visible_count"`
	Displayed    int     `json:"displayed"`
	DrawCount    int     `json:"draw_count"`
}

type layersResponse struct {
	Frame           uint64         `json:"frame"`
	PendingCommands int            `json:"pending_commands"`
	Layers          []LayerSummary `json:"layers"`
}

// HandleLayers serves the layers of the last frame. With the layer query
// parameter, the displayed nodes of the layer are served as a GeoJSON feature
// collection of their footprints.
func HandleLayers(lastFrame func() (engine.Frame, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame, ok := lastFrame()
		if !ok {
			http.Error(w, "no frame rendered yet", http.StatusServiceUnavailable)
			return
		}

		if v := r.URL.Query().Get("layer"); v != "" {
			id, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				http.Error(w, "invalid layer id", http.StatusBadRequest)
				return
			}

			lf, ok := findLayer(frame, uint32(id))
			if !ok {
				http.Error(w, "layer not found", http.StatusNotFound)
				return
			}

			writeJSON(w, "application/geo+json", Footprints(lf))
			return
		}

		res := layersResponse{
			Frame:           frame.Number,
			PendingCommands: frame.PendingCommands,
			Layers:          make([]LayerSummary, len(frame.Layers)),
		}
		for i, lf := range frame.Layers {
			res.Layers[i] = LayerSummary{
				ID:           lf.ID,
				UUID:         lf.UUID,
				Name:         lf.Name,
				Kind:         lf.Kind,
				Visible:      lf.Visible,
				Opacity:      lf.Opacity,
				NodeCount:    lf.NodeCount,
				VisibleCount: lf.VisibleCount,
				Displayed:    len(lf.Displayed),
				DrawCount:    lf.DrawCount,
			}
		}
		writeJSON(w, "application/json", res)
	}
}

func findLayer(f engine.Frame, id uint32) (engine.LayerFrame, bool) {
	for _, lf := range f.Layers {
		if lf.ID == id {
			return lf, true
		}
	}
	return engine.LayerFrame{}, false
}

// Footprints returns the extents of the displayed nodes of a layer. Nodes
// without a geographic extent are skipped.
func Footprints(lf engine.LayerFrame) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, n := range lf.Displayed {
		if n.Bound == nil {
			continue
		}

		f := geojson.NewFeature(n.Bound.ToPolygon())
		f.ID = n.ID
		f.Properties["name"] = n.Name
		f.Properties["level"] = n.Level
		f.Properties["sse"] = n.SSE
		f.Properties["weight"] = n.Weight
		fc.Append(f)
	}
	return fc
}

func writeJSON(w http.ResponseWriter, contentType string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logs.Warn(errors.New("encoding response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

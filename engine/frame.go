package engine

import (
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/aukilabs/tessera/featureflag"
	"github.com/aukilabs/tessera/models"
	"github.com/aukilabs/tessera/modules"
	"github.com/paulmach/orb"
)

// Frame is the report of a frame, handed to the render collaborators.
type Frame struct {
	Number          uint64        `json:"frame"`
	Time            time.Time     `json:"time"`
	Duration        time.Duration `json:"-"`
	PendingCommands int           `json:"pending_commands"`
	Layers          []LayerFrame  `json:"layers"`
}

// LayerFrame describes what a layer displays.
type LayerFrame struct {
	ID        uint32  `json:"id"`
	UUID      string  `json:"uuid"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Visible   bool    `json:"visible"`
	Opacity   float64 `json:"opacity"`
	NodeCount int     `json:"node_count"`

	// The number of visible nodes, displayed or not.
	VisibleCount int `json:"visible_count"`
	DrawCount    int `json:"draw_count"`

	Displayed []DisplayedNode `json:"displayed"`

	// Ids of the nodes displayed since the previous frame and of the nodes
	// that stopped being displayed.
	Shown  []uint32 `json:"shown,omitempty"`
	Hidden []uint32 `json:"hidden,omitempty"`
}

type DisplayedNode struct {
	ID        uint32  `json:"id"`
	Name      string  `json:"name"`
	Level     uint    `json:"level"`
	URL       string  `json:"url,omitempty"`
	SSE       float64 `json:"sse"`
	Weight    float64 `json:"weight"`
	DrawCount int     `json:"draw_count"`

	// Extent in degrees of the nodes addressed by tile coordinates.
	Bound *orb.Bound `json:"bound,omitempty"`
}

func (e *Engine) report(fc *models.FrameContext, entries []*layerEntry) Frame {
	frame := Frame{
		Number:          fc.Frame,
		Time:            fc.Time,
		PendingCommands: e.Scheduler.CommandsWaitingExecutionCount(),
		Layers:          make([]LayerFrame, 0, len(entries)),
	}

	for _, entry := range entries {
		frame.Layers = append(frame.Layers, e.reportLayer(entry))
	}
	return frame
}

func (e *Engine) reportLayer(entry *layerEntry) LayerFrame {
	l := entry.layer

	lf := LayerFrame{
		ID:        l.ID,
		UUID:      l.UUID,
		Name:      l.Name,
		Kind:      l.Kind,
		Visible:   l.Visible(),
		Opacity:   l.Opacity(),
		NodeCount: l.NodeCount(),
	}

	displayed := roaring.New()
	visit := func(n *models.Node) bool {
		if !n.Visible {
			return false
		}
		lf.VisibleCount++

		if n.Displayed {
			dn := DisplayedNode{
				ID:        n.ID,
				Name:      n.Name,
				Level:     n.Level,
				URL:       n.ContentKey.URL,
				SSE:       n.SSE,
				Weight:    n.DisplayWeight,
				DrawCount: n.DrawCount(),
			}
			if tile, ok := n.Metadata.(modules.TileAddress); ok {
				b := tile.LonLatBound()
				dn.Bound = &b
			}
			lf.Displayed = append(lf.Displayed, dn)
			lf.DrawCount += dn.DrawCount
			displayed.Add(n.ID)
		}
		return true
	}

	for _, root := range l.Roots() {
		if visit(root) {
			root.WalkDescendants(visit)
		}
	}

	if !e.Flags.IsSet(featureflag.FlagDisableFrameDiff) {
		lf.Shown = roaring.AndNot(displayed, entry.displayed).ToArray()
		lf.Hidden = roaring.AndNot(entry.displayed, displayed).ToArray()
	}
	entry.displayed = displayed

	instrumentLayer(lf)
	return lf
}

// Package overlay paints the pose skeleton and joint-angle readout for one
// analysis result onto a transparent canvas the size of the video frame.
package overlay

import (
	"fmt"
	"image/color"
	"math"

	"github.com/claude/physiotrack/internal/models"
)

// DefaultVisibility is the landmark confidence required before a joint or
// edge is drawn.
const DefaultVisibility = 0.6

// Style is the stroke or fill used for one primitive.
type Style struct {
	Color color.RGBA
	Width float64
}

// Canvas is a drawing surface measured in pixels.
type Canvas interface {
	Size() (width, height int)
	Clear()
	Line(x1, y1, x2, y2 float64, s Style)
	Circle(x, y, r float64, s Style)
	Arc(x, y, r, start, end float64, s Style)
	Text(text string, x, y float64, s Style)
}

// Edge joins two landmark indexes.
type Edge struct{ A, B int }

// PoseConnections is the 33-landmark body topology used by MediaPipe Pose.
var PoseConnections = []Edge{
	// face
	{0, 1}, {1, 2}, {2, 3}, {3, 7}, {0, 4}, {4, 5}, {5, 6}, {6, 8}, {9, 10},
	// torso
	{11, 12}, {11, 23}, {12, 24}, {23, 24},
	// left arm and hand
	{11, 13}, {13, 15}, {15, 17}, {15, 19}, {15, 21}, {17, 19},
	// right arm and hand
	{12, 14}, {14, 16}, {16, 18}, {16, 20}, {16, 22}, {18, 20},
	// left leg and foot
	{23, 25}, {25, 27}, {27, 29}, {29, 31}, {27, 31},
	// right leg and foot
	{24, 26}, {26, 28}, {28, 30}, {30, 32}, {28, 32},
}

// Stats counts what one Render call drew.
type Stats struct {
	Edges    int     `json:"edges"`
	Joints   int     `json:"joints"`
	Arc      bool    `json:"arc"`
	ArcStart float64 `json:"arc_start,omitempty"`
	ArcEnd   float64 `json:"arc_end,omitempty"`
	Label    string  `json:"label,omitempty"`
}

// Renderer holds the drawing parameters.
type Renderer struct {
	Visibility  float64
	Connections []Edge

	JointRadius float64
	ArcRadius   float64

	Bone  Style
	Joint Style
	Angle Style
	Label Style
}

// NewRenderer returns a renderer with the default skeleton styling.
func NewRenderer(visibility float64) *Renderer {
	if visibility <= 0 {
		visibility = DefaultVisibility
	}
	return &Renderer{
		Visibility:  visibility,
		Connections: PoseConnections,
		JointRadius: 4,
		ArcRadius:   30,
		Bone:        Style{Color: color.RGBA{0, 255, 128, 255}, Width: 3},
		Joint:       Style{Color: color.RGBA{255, 64, 64, 255}},
		Angle:       Style{Color: color.RGBA{255, 215, 0, 255}, Width: 3},
		Label:       Style{Color: color.RGBA{255, 255, 255, 255}},
	}
}

// Render clears c and draws d. A nil d leaves the canvas empty.
func (r *Renderer) Render(c Canvas, d *models.DrawingData) Stats {
	c.Clear()
	var st Stats
	if d == nil {
		return st
	}
	w, h := c.Size()
	fw, fh := float64(w), float64(h)
	lms := d.Landmarks

	for _, e := range r.Connections {
		if e.A >= len(lms) || e.B >= len(lms) {
			continue
		}
		a, b := lms[e.A], lms[e.B]
		if !r.visible(a) || !r.visible(b) {
			continue
		}
		c.Line(a.X*fw, a.Y*fh, b.X*fw, b.Y*fh, r.Bone)
		st.Edges++
	}

	for _, lm := range lms {
		if !r.visible(lm) {
			continue
		}
		c.Circle(lm.X*fw, lm.Y*fh, r.JointRadius, r.Joint)
		st.Joints++
	}

	if d.Angle == nil || !(d.Angle.Angle > 0) {
		return st
	}
	ad := d.Angle
	bx, by := ad.B.X*fw, ad.B.Y*fh
	start := math.Atan2(ad.A.Y*fh-by, ad.A.X*fw-bx)
	end := math.Atan2(ad.C.Y*fh-by, ad.C.X*fw-bx)
	start, end = ArcSpan(start, end)

	c.Arc(bx, by, r.ArcRadius, start, end, r.Angle)
	st.Arc, st.ArcStart, st.ArcEnd = true, start, end

	st.Label = fmt.Sprintf("%.0f°", ad.Angle)
	c.Text(st.Label, bx+r.ArcRadius+6, by, r.Label)
	return st
}

func (r *Renderer) visible(lm models.Landmark) bool {
	return lm.Visibility > r.Visibility
}

// ArcSpan normalizes two directions into [0, 2π), orders them, and picks the
// shorter of the two arcs between them. The returned end may exceed 2π when
// the short arc crosses angle zero; end - start is always in [0, π].
func ArcSpan(start, end float64) (float64, float64) {
	start, end = normalize(start), normalize(end)
	if start > end {
		start, end = end, start
	}
	if end-start > math.Pi {
		start, end = end, start+2*math.Pi
	}
	return start, end
}

func normalize(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// File: internal/conversation/marker.go
package conversation

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // decoder registration for JPEG screenshots
	_ "image/png"
	"math"
	"strconv"
	"strings"

	"github.com/fogleman/gg"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
)

var (
	// ErrNothingToMark is returned when none of the actions carries a box.
	ErrNothingToMark = errors.New("no action carries a drawable box")
	// ErrInvalidBox is returned for boxes that are malformed or outside [0,1].
	ErrInvalidBox = errors.New("invalid action box")
)

// point is a position in image pixels.
type point struct{ X, Y float64 }

// region is a parsed box. A zero sized region is a point.
type region struct{ Min, Max point }

func (r region) isPoint() bool { return r.Min == r.Max }

func (r region) center() point {
	return point{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// decodeScreenshot turns a base64 PNG or JPEG into an image.
func decodeScreenshot(b64 string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(stripDataURI(b64))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot image: %w", err)
	}
	return img, nil
}

func stripDataURI(s string) string {
	if strings.HasPrefix(s, "data:") {
		if idx := strings.Index(s, ","); idx >= 0 {
			return s[idx+1:]
		}
	}
	return s
}

// parseBox reads "[x1,y1,x2,y2]" or "[x,y]" in normalized coordinates and
// scales it onto a w by h image.
func parseBox(box string, w, h int) (region, error) {
	s := strings.TrimSpace(box)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimPrefix(strings.TrimSuffix(s, ")"), "(")
	parts := strings.Split(s, ",")
	if len(parts) != 2 && len(parts) != 4 {
		return region{}, fmt.Errorf("%w: %q has %d coordinates", ErrInvalidBox, box, len(parts))
	}

	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || v < 0 || v > 1 {
			return region{}, fmt.Errorf("%w: %q", ErrInvalidBox, box)
		}
		vals[i] = v
	}

	fw, fh := float64(w), float64(h)
	r := region{Min: point{X: vals[0] * fw, Y: vals[1] * fh}}
	if len(vals) == 4 {
		r.Max = point{X: vals[2] * fw, Y: vals[3] * fh}
		if r.Max.X < r.Min.X {
			r.Min.X, r.Max.X = r.Max.X, r.Min.X
		}
		if r.Max.Y < r.Min.Y {
			r.Min.Y, r.Max.Y = r.Max.Y, r.Min.Y
		}
	} else {
		r.Max = r.Min
	}
	return r, nil
}

// markActions draws every action with a box onto a copy of base and returns
// the result as base64 PNG.
func markActions(base image.Image, actions []schemas.Action) (string, error) {
	bounds := base.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	dc := gg.NewContextForImage(base)
	stroke := math.Max(2, float64(min(w, h))/200)
	dc.SetLineWidth(stroke)
	dc.SetRGBA(1, 0.1, 0.1, 0.9)

	drawn := 0
	for _, action := range actions {
		if action.Inputs.StartBox == "" {
			continue
		}
		start, err := parseBox(action.Inputs.StartBox, w, h)
		if err != nil {
			return "", err
		}

		if action.Inputs.EndBox != "" {
			end, err := parseBox(action.Inputs.EndBox, w, h)
			if err != nil {
				return "", err
			}
			from, to := start.center(), end.center()
			dc.DrawLine(from.X, from.Y, to.X, to.Y)
			dc.Stroke()
			dc.DrawCircle(to.X, to.Y, stroke*3)
			dc.Fill()
			drawn++
			continue
		}

		if start.isPoint() {
			drawCrosshair(dc, start.Min, stroke)
		} else {
			dc.DrawRectangle(start.Min.X, start.Min.Y, start.Max.X-start.Min.X, start.Max.Y-start.Min.Y)
			dc.Stroke()
		}
		drawn++
	}
	if drawn == 0 {
		return "", ErrNothingToMark
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return "", fmt.Errorf("failed to encode marked screenshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func drawCrosshair(dc *gg.Context, p point, stroke float64) {
	radius := stroke * 8
	dc.DrawCircle(p.X, p.Y, radius)
	dc.Stroke()
	dc.DrawLine(p.X-radius*1.5, p.Y, p.X+radius*1.5, p.Y)
	dc.DrawLine(p.X, p.Y-radius*1.5, p.X, p.Y+radius*1.5)
	dc.Stroke()
}

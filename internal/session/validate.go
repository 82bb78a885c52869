package session

import (
	"math"
	"strings"

	"github.com/kanreisa/reichat-server/internal/room"
)

// validateClient implements the "client" row of §4.4's table.
func validateClient(e inboundEnvelope) (room.BindRequest, bool) {
	if e.UUID != "" && len(e.UUID) != 36 {
		return room.BindRequest{}, false
	}
	if len(e.Name) < 1 || len(e.Name) > 16 {
		return room.BindRequest{}, false
	}
	return room.BindRequest{UUID: e.UUID, Pin: e.Pin, Name: e.Name}, true
}

// validatePaint implements the "paint" row: layerNumber in range, x/y
// finite non-negative integers (floored), mode recognized, data decodable.
func validatePaint(e inboundEnvelope, layerCount int) (room.PaintPayload, bool) {
	if e.LayerNumber == nil || *e.LayerNumber < 0 || *e.LayerNumber >= layerCount {
		return room.PaintPayload{}, false
	}
	if !finite(e.X) || !finite(e.Y) || e.X < 0 || e.Y < 0 {
		return room.PaintPayload{}, false
	}
	mode := room.PaintMode(e.Mode)
	if mode != room.PaintNormal && mode != room.PaintErase {
		return room.PaintPayload{}, false
	}
	if len(e.Data) == 0 {
		return room.PaintPayload{}, false
	}
	pix, w, h, err := room.DecodeRGBA(e.Data)
	if err != nil || len(pix) != w*h*4 {
		return room.PaintPayload{}, false
	}
	return room.PaintPayload{
		LayerNumber: *e.LayerNumber,
		Mode:        mode,
		X:           int(math.Floor(e.X)),
		Y:           int(math.Floor(e.Y)),
		Data:        e.Data,
	}, true
}

// validateStroke implements the "stroke" row: each point's x,y >= 0 and
// <= canvas bounds, pressure > 0; x/y rounded, pressure floored; a 4th
// tuple element (none in our [3]float64 shape) would be dropped.
func validateStroke(e inboundEnvelope, width, height int) (room.StrokePayload, bool) {
	if len(e.Points) == 0 {
		return room.StrokePayload{}, false
	}
	points := make([]room.StrokePoint, 0, len(e.Points))
	for _, p := range e.Points {
		x, y, pressure := p[0], p[1], p[2]
		if !finite(x) || !finite(y) || !finite(pressure) {
			return room.StrokePayload{}, false
		}
		if x < 0 || y < 0 || pressure <= 0 {
			return room.StrokePayload{}, false
		}
		if x > float64(width) || y > float64(height) {
			return room.StrokePayload{}, false
		}
		points = append(points, room.StrokePoint{
			X:        int(math.Round(x)),
			Y:        int(math.Round(y)),
			Pressure: int(math.Floor(pressure)),
		})
	}
	return room.StrokePayload{Points: points}, true
}

// validatePointer implements the "pointer" row: x/y finite, floored,
// -1 <= x <= width, -1 <= y <= height (the -1 sentinel means off-canvas).
func validatePointer(e inboundEnvelope, width, height int) (room.PointerPayload, bool) {
	if !finite(e.X) || !finite(e.Y) {
		return room.PointerPayload{}, false
	}
	x := int(math.Floor(e.X))
	y := int(math.Floor(e.Y))
	if x < -1 || x > width || y < -1 || y > height {
		return room.PointerPayload{}, false
	}
	return room.PointerPayload{X: x, Y: y}, true
}

// validateChat implements the "chat" row: non-empty, non-whitespace,
// length <= 256.
func validateChat(e inboundEnvelope) (room.ChatPayload, bool) {
	if len(e.Message) == 0 || len(e.Message) > 256 {
		return room.ChatPayload{}, false
	}
	if strings.TrimSpace(e.Message) == "" {
		return room.ChatPayload{}, false
	}
	return room.ChatPayload{Message: e.Message, Time: e.Time}, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

package conversation

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/HOSH19/BurpSuite-CUA/api/schemas"
)

// solidPNG returns a base64 PNG filled with c.
func solidPNG(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func decodePNG(t *testing.T, b64 string) image.Image {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func agentEntry(text string, actions ...schemas.Action) schemas.ConversationEntry {
	return schemas.ConversationEntry{
		Role:              schemas.RoleAgent,
		Text:              text,
		ScreenshotContext: &schemas.ScreenshotContext{Size: schemas.Size{Width: 100, Height: 80}, ScaleFactor: 1},
		ParsedActions:     actions,
		Thought:           "thinking about " + text,
		Timing:            &schemas.Timing{Start: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
}

func click(box string) schemas.Action {
	return schemas.Action{Type: "click", Inputs: schemas.ActionInputs{StartBox: box}}
}

var ignoreAugmented = cmpopts.IgnoreFields(schemas.ConversationEntry{}, "ElementMarkerScreenshot", "RetrievedItems")

func TestMerge_OneToOneAndUnmutated(t *testing.T) {
	m := NewMerger(zaptest.NewLogger(t), 2)
	prev := &schemas.ConversationEntry{Role: schemas.RoleHuman, Screenshot: solidPNG(t, 100, 80, color.RGBA{B: 255, A: 255})}

	entries := []schemas.ConversationEntry{
		agentEntry("first", click("[0.1,0.1,0.5,0.5]")),
		{Role: schemas.RoleHuman, Text: "screenshot only"},
		agentEntry("third", schemas.Action{Type: "hotkey", Inputs: schemas.ActionInputs{Key: "ctrl c"}}),
	}
	before := make([]schemas.ConversationEntry, len(entries))
	for i := range entries {
		before[i] = entries[i].Clone()
	}
	items := []schemas.RetrievedItem{{Text: "ctx", Relevance: 0.9, Source: "docs#12"}}

	out := m.Merge(context.Background(), prev, entries, items)

	require.Len(t, out, len(entries))
	if diff := cmp.Diff(before, entries); diff != "" {
		t.Fatalf("input mutated (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(entries, out, ignoreAugmented); diff != "" {
		t.Fatalf("runtime owned fields changed (-in +out):\n%s", diff)
	}
	for i := range out {
		assert.Equal(t, items, out[i].RetrievedItems, "entry %d", i)
	}

	assert.NotEmpty(t, out[0].ElementMarkerScreenshot)
	assert.Empty(t, out[1].ElementMarkerScreenshot, "no screenshot context")
	assert.Empty(t, out[2].ElementMarkerScreenshot, "no drawable action")

	// Output must not alias the input slices.
	out[0].ParsedActions[0].Type = "mutated"
	assert.Equal(t, "click", entries[0].ParsedActions[0].Type)
}

func TestMerge_NoItemsLeavesTagUnset(t *testing.T) {
	m := NewMerger(zaptest.NewLogger(t), 1)
	out := m.Merge(context.Background(), nil, []schemas.ConversationEntry{agentEntry("a", click("[0.5,0.5]"))}, nil)

	require.Len(t, out, 1)
	assert.Nil(t, out[0].RetrievedItems)
	assert.Empty(t, out[0].ElementMarkerScreenshot, "no previous entry")
}

func TestMerge_MarkerDrawsOnPreviousScreenshot(t *testing.T) {
	m := NewMerger(zaptest.NewLogger(t), 1)
	prev := &schemas.ConversationEntry{Screenshot: solidPNG(t, 100, 80, color.RGBA{B: 255, A: 255})}

	out := m.Merge(context.Background(), prev, []schemas.ConversationEntry{agentEntry("rect", click("[0.1,0.1,0.5,0.5]"))}, nil)
	img := decodePNG(t, out[0].ElementMarkerScreenshot)

	assert.Equal(t, image.Rect(0, 0, 100, 80), img.Bounds())
	r, g, b, _ := img.At(30, 8).RGBA()
	assert.Greater(t, r>>8, uint32(150), "top edge should be painted red")
	assert.Less(t, g>>8, uint32(100))
	assert.Less(t, b>>8, uint32(150))

	r, _, b, _ = img.At(90, 70).RGBA()
	assert.Equal(t, uint32(0), r>>8, "far corner untouched")
	assert.Equal(t, uint32(255), b>>8)
}

func TestMerge_FailuresLeaveMarkerUnset(t *testing.T) {
	testCases := []struct {
		name   string
		shot   string
		action schemas.Action
		logMsg string
	}{
		{"undecodable screenshot", "not-base64!!", click("[0.1,0.1,0.2,0.2]"), "Skipping element markers, previous screenshot is unreadable"},
		{"malformed box", "", click("[0.1,oops]"), "Element marker not drawn"},
		{"out of range box", "", click("[0.1,0.1,1.5,0.2]"), "Element marker not drawn"},
		{"wrong arity", "", click("[0.1,0.2,0.3]"), "Element marker not drawn"},
	}
	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			m := NewMerger(zap.New(core), 1)
			shot := tt.shot
			if shot == "" {
				shot = solidPNG(t, 20, 20, color.White)
			}
			prev := &schemas.ConversationEntry{Screenshot: shot}

			out := m.Merge(context.Background(), prev, []schemas.ConversationEntry{agentEntry("x", tt.action)}, nil)
			require.Len(t, out, 1)
			assert.Empty(t, out[0].ElementMarkerScreenshot)
			assert.Equal(t, 1, logs.FilterMessage(tt.logMsg).Len())
		})
	}
}

func TestMerge_BadBoxKeepsSiblingMarkers(t *testing.T) {
	for _, concurrency := range []int{1, 2} {
		c := concurrency
		t.Run(fmt.Sprintf("concurrency %d", c), func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			m := NewMerger(zap.New(core), c)
			prev := &schemas.ConversationEntry{Screenshot: solidPNG(t, 100, 80, color.White)}
			entries := []schemas.ConversationEntry{
				agentEntry("broken", click("[0.1,oops]")),
				agentEntry("fine", click("[0.1,0.1,0.5,0.5]")),
				agentEntry("also broken", click("[0.1,0.1,1.5,0.2]")),
				agentEntry("also fine", click("[0.6,0.6]")),
			}

			out := m.Merge(context.Background(), prev, entries, nil)

			require.Len(t, out, 4)
			assert.Empty(t, out[0].ElementMarkerScreenshot)
			assert.NotEmpty(t, out[1].ElementMarkerScreenshot, "a bad sibling must not abort the batch")
			assert.Empty(t, out[2].ElementMarkerScreenshot)
			assert.NotEmpty(t, out[3].ElementMarkerScreenshot)
			assert.Equal(t, 2, logs.FilterMessage("Element marker not drawn").Len())
		})
	}
}

func TestMerge_CancelledContextSkipsCompositing(t *testing.T) {
	m := NewMerger(zaptest.NewLogger(t), 1)
	prev := &schemas.ConversationEntry{Screenshot: solidPNG(t, 20, 20, color.White)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entries := []schemas.ConversationEntry{agentEntry("a", click("[0.5,0.5]")), agentEntry("b", click("[0.2,0.2]"))}
	out := m.Merge(ctx, prev, entries, nil)

	require.Len(t, out, 2)
	for i := range out {
		assert.Empty(t, out[i].ElementMarkerScreenshot)
		assert.Equal(t, entries[i].Text, out[i].Text)
	}
}

func TestMarkActions_Shapes(t *testing.T) {
	base := decodePNG(t, solidPNG(t, 200, 200, color.White))

	testCases := []struct {
		name    string
		actions []schemas.Action
		wantErr error
	}{
		{"point", []schemas.Action{click("[0.5,0.5]")}, nil},
		{"box", []schemas.Action{click("[0.1, 0.2, 0.3, 0.4]")}, nil},
		{"reversed box", []schemas.Action{click("[0.3,0.4,0.1,0.2]")}, nil},
		{"drag", []schemas.Action{{Type: "drag", Inputs: schemas.ActionInputs{StartBox: "[0.1,0.1,0.2,0.2]", EndBox: "[0.8,0.8,0.9,0.9]"}}}, nil},
		{"nothing drawable", []schemas.Action{{Type: "type", Inputs: schemas.ActionInputs{Content: "hi"}}}, ErrNothingToMark},
		{"bad end box", []schemas.Action{{Type: "drag", Inputs: schemas.ActionInputs{StartBox: "[0.1,0.1]", EndBox: "[x]"}}}, ErrInvalidBox},
	}
	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			out, err := markActions(base, tt.actions)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, out)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, out)
		})
	}
}

func TestParseBox(t *testing.T) {
	r, err := parseBox("[0.1,0.2,0.3,0.4]", 100, 50)
	require.NoError(t, err)
	assert.InDelta(t, 10, r.Min.X, 1e-9)
	assert.InDelta(t, 10, r.Min.Y, 1e-9)
	assert.InDelta(t, 30, r.Max.X, 1e-9)
	assert.InDelta(t, 20, r.Max.Y, 1e-9)

	p, err := parseBox("(0.5, 0.5)", 100, 50)
	require.NoError(t, err)
	assert.True(t, p.isPoint())

	_, err = parseBox("[NaN,0.1]", 10, 10)
	assert.ErrorIs(t, err, ErrInvalidBox)
	_, err = parseBox("", 10, 10)
	assert.ErrorIs(t, err, ErrInvalidBox)
}

package render

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"trail-arena/internal/game"
	"trail-arena/internal/game/spatial"
)

func testSnapshot() game.Snapshot {
	return game.Snapshot{
		Size: 100,
		Avatars: []game.AvatarState{
			{ID: "1", Color: "#ff0000", X: 25, Y: 25, Radius: 0.6, Alive: true, Present: true},
			{ID: "2", Color: "#00ff00", X: 75, Y: 75, Radius: 0.6, Present: true},
		},
		Bonuses: []game.BonusState{{ID: 1, X: 50, Y: 50, Radius: 3}},
		Trails: []game.TrailState{
			{Owner: "1", X: 10, Y: 10, Radius: 2},
			{Owner: "gone", X: 90, Y: 10, Radius: 2},
		},
		Grid: spatial.GridStats{CellSize: 25},
	}
}

func TestRendererPNG(t *testing.T) {
	r := NewRenderer(200)
	data, err := r.PNG(testSnapshot())
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Fatalf("bounds = %v, want 200x200", b)
	}

	// trail body of avatar 1 at (10,10) scaled by 2
	got := color.RGBAModel.Convert(img.At(20, 20)).(color.RGBA)
	if got.R != 255 || got.G != 0 {
		t.Errorf("trail pixel = %v, want red", got)
	}

	got = color.RGBAModel.Convert(img.At(110, 160)).(color.RGBA)
	if got != background {
		t.Errorf("empty pixel = %v, want background", got)
	}
}

func TestRendererReuse(t *testing.T) {
	r := NewRenderer(100)
	first, err := r.PNG(testSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.PNG(testSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("rendering the same snapshot twice should give the same image")
	}
}

func TestClampSize(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultSize},
		{-5, DefaultSize},
		{10, MinSize},
		{300, 300},
		{10000, MaxSize},
	}
	for _, tt := range tests {
		if got := ClampSize(tt.in); got != tt.want {
			t.Errorf("ClampSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"#ff8000", color.RGBA{255, 128, 0, 255}},
		{"red", color.RGBA{255, 255, 255, 255}},
		{"#zzzzzz", color.RGBA{255, 255, 255, 255}},
	}
	for _, tt := range tests {
		if got := parseHexColor(tt.in); got != tt.want {
			t.Errorf("parseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

package android

import (
	"context"
	"errors"
	"testing"

	"github.com/spance/droidbot-go/constants"
	"github.com/spance/droidbot-go/droidbot/channel/channeltest"
)

const (
	viewportLine = `  mDefaultViewport=DisplayViewport{valid=true, displayId=0, uniqueId='local:0', physicalPort=0, orientation=1, logicalFrame=Rect(0, 0 - 1920, 1080), physicalFrame=Rect(0, 0 - 1920, 1080), deviceWidth=1920, deviceHeight=1080, isActive=true}`
	physicalLine = `  mPhysicalDisplayInfo=PhysicalDisplayInfo{720 x 1280, 60.000004 fps, density 2.0, 320.0 x 320.0 dpi, secure true}`
	wmSizeOut    = "Physical size: 1080x2340\n"
	wmDensityOut = "Physical density: 440\n"
	unrestricted = "WINDOW MANAGER POLICY STATE (dumpsys window policy)\n    mUnrestrictedScreen=(0,0) 768x1280\n"
	legacyWindow = "  DisplayWidth=480 DisplayHeight=800\n"
)

func TestResolveDisplayStages(t *testing.T) {
	tests := []struct {
		name        string
		script      func(s *channeltest.Scripted)
		width       int
		height      int
		density     float64
		orientation *int
	}{
		{
			name: "logical viewport with lcd_density",
			script: func(s *channeltest.Scripted) {
				s.On("dumpsys display", "DISPLAY MANAGER\n"+viewportLine+"\n")
				s.On("getprop ro.sf.lcd_density", "320\n")
			},
			width: 1920, height: 1080, density: 2.0, orientation: intPtr(1),
		},
		{
			name: "logical viewport without any density source",
			script: func(s *channeltest.Scripted) {
				s.On("dumpsys display", viewportLine+"\n")
			},
			width: 1920, height: 1080, density: constants.NoDensity, orientation: intPtr(1),
		},
		{
			name: "logical viewport takes density from physical info",
			script: func(s *channeltest.Scripted) {
				s.On("dumpsys display", viewportLine+"\n"+physicalLine+"\n")
			},
			width: 1920, height: 1080, density: 2.0, orientation: intPtr(1),
		},
		{
			name: "wm size and density",
			script: func(s *channeltest.Scripted) {
				s.On("wm size", wmSizeOut)
				s.On("wm density", wmDensityOut)
			},
			width: 1080, height: 2340, density: 440,
		},
		{
			name: "legacy physical display info",
			script: func(s *channeltest.Scripted) {
				s.On("dumpsys display", "DISPLAY MANAGER\n"+physicalLine+"\n")
			},
			width: 720, height: 1280, density: 2.0,
		},
		{
			name: "unrestricted screen with ro.sf.lcd_density",
			script: func(s *channeltest.Scripted) {
				s.On("dumpsys window", unrestricted)
				s.On("getprop ro.sf.lcd_density", "240")
			},
			width: 768, height: 1280, density: 1.5,
		},
		{
			name: "legacy window falls back to qemu.sf.lcd_density",
			script: func(s *channeltest.Scripted) {
				s.On("dumpsys window", legacyWindow)
				s.On("getprop ro.sf.lcd_density", "\n")
				s.On("getprop qemu.sf.lcd_density", "240\n")
			},
			width: 480, height: 800, density: 1.5,
		},
		{
			name: "window metrics without density properties",
			script: func(s *channeltest.Scripted) {
				s.On("dumpsys window", legacyWindow)
			},
			width: 480, height: 800, density: constants.NoDensity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := channeltest.New()
			tt.script(ch)
			info, err := NewADBDevice(ch).ResolveDisplay(context.Background())
			if err != nil {
				t.Fatalf("ResolveDisplay() error: %v", err)
			}
			if info.Width != tt.width || info.Height != tt.height {
				t.Errorf("geometry = %dx%d, want %dx%d", info.Width, info.Height, tt.width, tt.height)
			}
			if info.Density != tt.density {
				t.Errorf("density = %v, want %v", info.Density, tt.density)
			}
			switch {
			case tt.orientation == nil && info.Orientation != nil:
				t.Errorf("orientation = %d, want none", *info.Orientation)
			case tt.orientation != nil && (info.Orientation == nil || *info.Orientation != *tt.orientation):
				t.Errorf("orientation = %v, want %d", info.Orientation, *tt.orientation)
			}
			if !info.Valid() {
				t.Errorf("resolved display violates invariants: %+v", info)
			}
		})
	}
}

func TestResolveDisplayOrder(t *testing.T) {
	all := func() *channeltest.Scripted {
		return channeltest.New().
			On("wm size", wmSizeOut).
			On("wm density", wmDensityOut).
			On("dumpsys window", unrestricted).
			On("getprop ro.sf.lcd_density", "160")
	}
	ctx := context.Background()

	// viewport beats every other source
	ch := all().On("dumpsys display", viewportLine+"\n"+physicalLine+"\n")
	info, err := NewADBDevice(ch).ResolveDisplay(ctx)
	if err != nil || info.Width != 1920 || info.Orientation == nil {
		t.Fatalf("expected logical viewport, got %+v (err %v)", info, err)
	}

	// wm beats physical info and window metrics
	ch = all().On("dumpsys display", physicalLine+"\n")
	info, err = NewADBDevice(ch).ResolveDisplay(ctx)
	if err != nil || info.Width != 1080 || info.Density != 440 {
		t.Fatalf("expected wm stage, got %+v (err %v)", info, err)
	}

	// physical info beats window metrics
	ch = channeltest.New().
		On("dumpsys display", physicalLine+"\n").
		On("dumpsys window", unrestricted).
		On("getprop ro.sf.lcd_density", "160")
	info, err = NewADBDevice(ch).ResolveDisplay(ctx)
	if err != nil || info.Width != 720 || info.Density != 2.0 {
		t.Fatalf("expected physical stage, got %+v (err %v)", info, err)
	}

	// window metrics last
	ch = channeltest.New().
		On("dumpsys display", "nothing useful\n").
		On("dumpsys window", unrestricted).
		On("getprop ro.sf.lcd_density", "160")
	info, err = NewADBDevice(ch).ResolveDisplay(ctx)
	if err != nil || info.Width != 768 || info.Density != 1.0 {
		t.Fatalf("expected window stage, got %+v (err %v)", info, err)
	}
}

func TestResolveDisplayNoData(t *testing.T) {
	ch := channeltest.New().
		On("dumpsys display", "garbage\n").
		On("wm size", "Physical size: unknown\n").
		On("dumpsys window", "mUnrestrictedScreen=(0,0) 0x0\n")
	device := NewADBDevice(ch)

	info, err := device.ResolveDisplay(context.Background())
	if !errors.Is(err, ErrNoDisplayInfo) || info != nil {
		t.Fatalf("ResolveDisplay() = %+v, %v; want nil, ErrNoDisplayInfo", info, err)
	}
	if got := device.GetDisplayInfo(context.Background()); got != nil {
		t.Errorf("GetDisplayInfo() = %+v, want nil", got)
	}
}

func TestResolveDisplayRecomputes(t *testing.T) {
	ch := channeltest.New().
		Queue("dumpsys window",
			channeltest.Reply{Output: legacyWindow},
			channeltest.Reply{Output: "  DisplayWidth=800 DisplayHeight=480\n"})
	device := NewADBDevice(ch)

	first := device.GetDisplayInfo(context.Background())
	second := device.GetDisplayInfo(context.Background())
	if first == nil || second == nil {
		t.Fatal("expected display info on both calls")
	}
	if first.Width == second.Width {
		t.Errorf("expected rotated geometry on second call, got %dx%d twice", first.Width, first.Height)
	}
}

func TestParseStagesArePure(t *testing.T) {
	if _, ok := parseLogicalDisplay(physicalLine); ok {
		t.Errorf("logical parser matched physical info")
	}
	if _, ok := parsePhysicalDisplay(viewportLine); ok {
		t.Errorf("physical parser matched viewport")
	}
	if _, ok := parseWMSizeDensity(wmSizeOut); ok {
		t.Errorf("wm parser matched without density")
	}
	if info, ok := parseWindowDisplay(legacyWindow); !ok || info.Density != 0 {
		t.Errorf("window parser = %+v, %v", info, ok)
	}
}

func intPtr(i int) *int {
	return &i
}

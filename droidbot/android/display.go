package android

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spance/droidbot-go/constants"
	"github.com/spance/droidbot-go/droidbot/definitions"
)

var ErrNoDisplayInfo = errors.New("no display info")

var (
	logicalDisplayRE  = regexp.MustCompile(`.*DisplayViewport\{valid=true, .*orientation=(?P<orientation>\d+), .*deviceWidth=(?P<width>\d+), deviceHeight=(?P<height>\d+).*`)
	physicalSizeRE    = regexp.MustCompile(`(?s)Physical size: (?P<width>\d+)x(?P<height>\d+).*?Physical density: (?P<density>[\d.]+)`)
	physicalDisplayRE = regexp.MustCompile(`.*PhysicalDisplayInfo\{(?P<width>\d+) x (?P<height>\d+), .*, density (?P<density>[\d.]+).*`)
	// mUnrestrictedScreen could also be mSystem or mOverscanScreen.
	unrestrictedRE = regexp.MustCompile(`\s*mUnrestrictedScreen=\((?P<x>\d+),(?P<y>\d+)\) (?P<width>\d+)x(?P<height>\d+)`)
	// API 10 and older have no mUnrestrictedScreen.
	displayWidthHeightRE = regexp.MustCompile(`\s*DisplayWidth=(?P<width>\d+) *DisplayHeight=(?P<height>\d+)`)
)

var (
	dumpsysDisplay = []string{"dumpsys", "display"}
	dumpsysWindow  = []string{"dumpsys", "window"}
	wmSize         = []string{"wm", "size"}
	wmDensity      = []string{"wm", "density"}
)

type densityFunc func(r *ADBDevice, ctx context.Context) float64

// displayStage reads one diagnostic source. parse must be pure; when the
// source carries no density, density fills it in after a match.
type displayStage struct {
	name    string
	queries [][]string
	parse   func(text string) (*definitions.DisplayInfo, bool)
	density densityFunc
}

var (
	logicalStage  = displayStage{name: "logical", queries: [][]string{dumpsysDisplay}, parse: parseLogicalDisplay, density: (*ADBDevice).displayDensity}
	wmStage       = displayStage{name: "wm", queries: [][]string{wmSize, wmDensity}, parse: parseWMSizeDensity}
	physicalStage = displayStage{name: "physical", queries: [][]string{dumpsysDisplay}, parse: parsePhysicalDisplay}
	windowStage   = displayStage{name: "window", queries: [][]string{dumpsysWindow}, parse: parseWindowDisplay, density: (*ADBDevice).propertyDensity}
)

// displayStages are tried in order; the first stage whose source matches wins.
var displayStages = []displayStage{logicalStage, wmStage, physicalStage, windowStage}

// GetDisplayInfo returns the current display geometry, or nil when no
// diagnostic source could be parsed.
func (r *ADBDevice) GetDisplayInfo(ctx context.Context) *definitions.DisplayInfo {
	info, err := r.ResolveDisplay(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Error getting display info")
		return nil
	}
	return info
}

// ResolveDisplay runs the display stages without caching; the device can
// rotate or change resolution between calls.
func (r *ADBDevice) ResolveDisplay(ctx context.Context) (*definitions.DisplayInfo, error) {
	for _, stage := range displayStages {
		info, ok := stage.parse(r.query(ctx, "ResolveDisplay", stage.queries...))
		if !ok {
			continue
		}
		if stage.density != nil {
			info.Density = stage.density(r, ctx)
		}
		if info.Density <= 0 {
			info.Density = constants.NoDensity
		}
		log.Debug().Str("stage", stage.name).Int("width", info.Width).Int("height", info.Height).Float64("density", info.Density).Msg("[ResolveDisplay] matched")
		return info, nil
	}
	return nil, ErrNoDisplayInfo
}

// query concatenates the outputs of every command; failed commands add nothing.
func (r *ADBDevice) query(ctx context.Context, op string, commands ...[]string) string {
	var sb strings.Builder
	for _, args := range commands {
		output, err := r.shell(ctx, op, args)
		if err != nil {
			continue
		}
		sb.Write(output)
	}
	return sb.String()
}

// displayDensity resolves density for sources that only carry geometry:
// the lcd_density properties first, then the wm and physical display sources.
func (r *ADBDevice) displayDensity(ctx context.Context) float64 {
	if d := r.propertyDensity(ctx); d > 0 {
		return d
	}
	for _, stage := range []displayStage{wmStage, physicalStage} {
		if info, ok := stage.parse(r.query(ctx, "DisplayDensity", stage.queries...)); ok && info.HasDensity() {
			return info.Density
		}
	}
	return constants.NoDensity
}

// propertyDensity reads ro.sf.lcd_density, then qemu.sf.lcd_density, and
// scales the first usable value by constants.BaseDensity.
func (r *ADBDevice) propertyDensity(ctx context.Context) float64 {
	for _, prop := range constants.DensityProperties {
		value := strings.TrimSpace(r.Shell(ctx, []string{"getprop", prop}))
		if value == "" {
			continue
		}
		dpi, err := strconv.ParseFloat(value, 64)
		if err != nil || dpi <= 0 {
			log.Warn().Str("prop", prop).Str("value", value).Msg("[DisplayDensity] ignoring malformed density property")
			continue
		}
		return dpi / constants.BaseDensity
	}
	return constants.NoDensity
}

func parseLogicalDisplay(text string) (*definitions.DisplayInfo, bool) {
	for _, line := range strings.Split(text, "\n") {
		groups := namedGroups(logicalDisplayRE, line)
		if groups == nil {
			continue
		}
		info, ok := geometry(groups)
		if !ok {
			continue
		}
		orientation, err := strconv.Atoi(groups["orientation"])
		if err != nil {
			continue
		}
		info.Orientation = &orientation
		return info, true
	}
	return nil, false
}

// parseWMSizeDensity reads the concatenated output of wm size and wm density.
// The density value is used as reported.
func parseWMSizeDensity(text string) (*definitions.DisplayInfo, bool) {
	groups := namedGroups(physicalSizeRE, text)
	if groups == nil {
		return nil, false
	}
	info, ok := geometry(groups)
	if !ok {
		return nil, false
	}
	density, err := strconv.ParseFloat(groups["density"], 64)
	if err != nil {
		return nil, false
	}
	info.Density = density
	return info, true
}

// parsePhysicalDisplay reads mPhysicalDisplayInfo, whose density is already a factor.
func parsePhysicalDisplay(text string) (*definitions.DisplayInfo, bool) {
	for _, line := range strings.Split(text, "\n") {
		groups := namedGroups(physicalDisplayRE, line)
		if groups == nil {
			continue
		}
		info, ok := geometry(groups)
		if !ok {
			continue
		}
		density, err := strconv.ParseFloat(groups["density"], 64)
		if err != nil {
			continue
		}
		info.Density = density
		return info, true
	}
	return nil, false
}

func parseWindowDisplay(text string) (*definitions.DisplayInfo, bool) {
	for _, line := range strings.Split(text, "\n") {
		groups := namedGroups(unrestrictedRE, line)
		if groups == nil {
			groups = namedGroups(displayWidthHeightRE, line)
		}
		if groups == nil {
			continue
		}
		if info, ok := geometry(groups); ok {
			return info, true
		}
	}
	return nil, false
}

func namedGroups(re *regexp.Regexp, s string) map[string]string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	groups := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if name != "" {
			groups[name] = m[i]
		}
	}
	return groups
}

func geometry(groups map[string]string) (*definitions.DisplayInfo, bool) {
	width, err := strconv.Atoi(groups["width"])
	if err != nil || width <= 0 {
		return nil, false
	}
	height, err := strconv.Atoi(groups["height"])
	if err != nil || height <= 0 {
		return nil, false
	}
	return &definitions.DisplayInfo{Width: width, Height: height}, true
}

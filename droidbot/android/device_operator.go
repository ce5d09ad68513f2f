package android

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spance/droidbot-go/constants"
	"github.com/spance/droidbot-go/droidbot/channel"
	"github.com/spance/droidbot-go/droidbot/definitions"
	"github.com/spance/droidbot-go/droidbot/sink"
)

var (
	ErrNoPackage   = errors.New("no third-party package installed")
	ErrNoActivity  = errors.New("no top activity")
	ErrLaunch      = errors.New("activity manager reported an error")
	ErrScreenshot  = errors.New("screenshot failed")
	ErrNoHostShell = errors.New("operation needs a host adb channel")
)

var topActivityRE = regexp.MustCompile(`\s*ACTIVITY ([A-Za-z0-9_.]+)/([A-Za-z0-9_.]+)`)

const installTimeLayout = "2006-01-02 15:04:05"

// ADBDevice wraps a command channel with device operations. Operations log
// and swallow channel failures; the returned error or ok flag tells internal
// callers what happened.
type ADBDevice struct {
	channel channel.Channel

	mu    sync.Mutex
	state definitions.DeviceState
}

func NewADBDevice(ch channel.Channel) *ADBDevice {
	return &ADBDevice{
		channel: ch,
		state:   definitions.DeviceState{Connected: true},
	}
}

// State returns a snapshot of what the facade knows about the device.
func (r *ADBDevice) State() definitions.DeviceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.state
	if state.Foreground != nil {
		fg := *state.Foreground
		state.Foreground = &fg
	}
	return state
}

func (r *ADBDevice) shell(ctx context.Context, op string, args []string) ([]byte, error) {
	log.Debug().Str("cmd", fmt.Sprintf("[%s] run cmd: %s", op, strings.Join(args, " "))).Msg("")

	output, err := r.channel.Execute(ctx, args)
	if err != nil {
		log.Error().Err(err).Msgf("[%s] run cmd failed", op)
		return output, err
	}
	log.Trace().Str("output", string(output)).Msgf("[%s] raw output", op)
	return output, nil
}

// Shell runs a command given either as an argument vector or as a single
// string split on spaces. Other command types are rejected and yield "".
func (r *ADBDevice) Shell(ctx context.Context, command any) string {
	var args []string
	switch c := command.(type) {
	case []string:
		args = c
	case string:
		args = channel.Split(c)
	default:
		log.Error().Str("type", fmt.Sprintf("%T", command)).Msg("[Shell] unsupported command type")
		return ""
	}

	output, err := r.shell(ctx, "Shell", args)
	if err != nil {
		return ""
	}
	return string(output)
}

func (r *ADBDevice) Install(ctx context.Context, apkPath string) error {
	log.Info().Str("path", apkPath).Msg("Installing sample in the device")

	var (
		output []byte
		err    error
	)
	if host, ok := r.channel.(channel.HostChannel); ok {
		log.Debug().Str("cmd", fmt.Sprintf("[Install] run cmd: adb install -r %s", apkPath)).Msg("")
		output, err = host.Host(ctx, "install", "-r", apkPath)
	} else {
		output, err = r.shell(ctx, "Install", []string{"/system/bin/sh", "/system/bin/pm", "install", apkPath})
	}
	if err != nil {
		log.Error().Err(err).Msg("Error installing sample")
		return err
	}
	if strings.Contains(string(output), "Failure") {
		log.Error().Str("output", strings.TrimSpace(string(output))).Msg("Error installing sample")
		return fmt.Errorf("install %s: %s", apkPath, strings.TrimSpace(string(output)))
	}

	log.Info().Str("output", strings.TrimSpace(string(output))).Msg("Installed sample")
	return nil
}

func (r *ADBDevice) LaunchActivity(ctx context.Context, packageName, activity string) error {
	packageActivity := fmt.Sprintf("%s/%s", packageName, activity)
	output, err := r.shell(ctx, "LaunchActivity", []string{
		"/system/bin/sh", "/system/bin/am", "start",
		"-n", packageActivity,
	})
	if err == nil && strings.Contains(string(output), "Error:") {
		err = fmt.Errorf("%w: %s", ErrLaunch, strings.TrimSpace(string(output)))
	}
	if err != nil {
		log.Error().Err(err).Str("component", packageActivity).Msg("Error executing package activity")
		return err
	}

	log.Info().Str("output", strings.TrimSpace(string(output))).Msg("Executed package activity")
	return nil
}

// LaunchURL starts a view intent for url.
func (r *ADBDevice) LaunchURL(ctx context.Context, url string) error {
	output, err := r.shell(ctx, "LaunchURL", []string{
		"/system/bin/sh", "/system/bin/am", "start",
		"-a", "android.intent.action.VIEW",
		"-d", url,
	})
	if err == nil && strings.Contains(string(output), "Error:") {
		err = fmt.Errorf("%w: %s", ErrLaunch, strings.TrimSpace(string(output)))
	}
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("Error starting browser intent")
		return err
	}

	log.Info().Str("output", strings.TrimSpace(string(output))).Msg("Intent returned")
	return nil
}

// Screenshot captures the screen into constants.ScreenshotDir on the device
// and returns the on-device path.
func (r *ADBDevice) Screenshot(ctx context.Context, filename string) (string, bool) {
	if filename == "" {
		filename = fmt.Sprintf("screenshot_%s.png", uuid.New().String())
	}
	target := path.Join(constants.ScreenshotDir, filename)

	output, err := r.shell(ctx, "Screenshot", []string{"/system/bin/screencap", "-p", target})
	if err != nil {
		log.Error().Err(err).Msg("Error creating screenshot")
		return "", false
	}
	outputStr := string(output)
	if strings.Contains(outputStr, "Status: -1") || strings.Contains(outputStr, "Failed") {
		log.Error().Str("output", outputStr).Msg("Screenshot failed with status: -1 or Failed")
		return "", false
	}
	return target, true
}

// CaptureScreen streams a PNG screenshot back through the channel.
func (r *ADBDevice) CaptureScreen(ctx context.Context) (*definitions.Screenshot, error) {
	data, err := r.shell(ctx, "CaptureScreen", []string{"screencap", "-p"})
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		log.Error().Err(err).Msg("Error decoding image")
		return nil, fmt.Errorf("%w: %v", ErrScreenshot, err)
	}

	return &definitions.Screenshot{
		Base64Data: base64.StdEncoding.EncodeToString(data),
		Width:      cfg.Width,
		Height:     cfg.Height,
	}, nil
}

// InstalledPath returns the APK path of an installed package.
func (r *ADBDevice) InstalledPath(ctx context.Context, packageName string) (string, bool) {
	output := r.Shell(ctx, "pm path "+packageName)
	if output == "" {
		return "", false
	}

	firstLine, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	_, apkPath, ok := strings.Cut(firstLine, ":")
	if !ok {
		return "", false
	}
	apkPath = strings.TrimSpace(apkPath)
	if apkPath == "" {
		return "", false
	}

	r.mu.Lock()
	r.state.InstalledPath = apkPath
	r.mu.Unlock()
	return apkPath, true
}

// LastInstalledPackage describes the third-party package with the newest
// install time.
func (r *ADBDevice) LastInstalledPackage(ctx context.Context) (*definitions.App, error) {
	output := r.Shell(ctx, "pm list packages -3")
	packages := lo.FilterMap(strings.Split(output, "\n"), func(line string, _ int) (string, bool) {
		name, ok := strings.CutPrefix(strings.TrimSpace(line), "package:")
		return name, ok && name != ""
	})
	if len(packages) == 0 {
		return nil, ErrNoPackage
	}

	type candidate struct {
		name      string
		installed time.Time
		dump      string
	}
	candidates := lo.Map(packages, func(name string, _ int) candidate {
		dump := r.Shell(ctx, []string{"dumpsys", "package", name})
		return candidate{name: name, installed: parseInstallTime(dump), dump: dump}
	})
	latest := lo.MaxBy(candidates, func(a, b candidate) bool {
		return a.installed.After(b.installed)
	})

	app := &definitions.App{Package: latest.name}
	if apkPath, ok := r.InstalledPath(ctx, latest.name); ok {
		app.Path = apkPath
	}
	app.Activity = r.launcherActivity(ctx, latest.name, latest.dump)

	log.Info().Str("package", app.Package).Str("path", app.Path).Str("activity", app.Activity).Msg("Resolved last installed package")
	return app, nil
}

func parseInstallTime(dump string) time.Time {
	for _, line := range strings.Split(dump, "\n") {
		value, ok := strings.CutPrefix(strings.TrimSpace(line), "firstInstallTime=")
		if !ok {
			continue
		}
		if t, err := time.Parse(installTimeLayout, strings.TrimSpace(value)); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (r *ADBDevice) launcherActivity(ctx context.Context, packageName, dump string) string {
	resolved := r.Shell(ctx, []string{
		"cmd", "package", "resolve-activity", "--brief",
		"-c", "android.intent.category.LAUNCHER", packageName,
	})
	lines := lo.Filter(strings.Split(resolved, "\n"), func(line string, _ int) bool {
		return strings.HasPrefix(strings.TrimSpace(line), packageName+"/")
	})
	if len(lines) > 0 {
		_, activity, _ := strings.Cut(strings.TrimSpace(lines[len(lines)-1]), "/")
		return activity
	}

	// Older releases have no resolve-activity; use the MAIN intent filter table.
	_, mainSection, ok := strings.Cut(dump, "android.intent.action.MAIN:")
	if !ok {
		return ""
	}
	componentRE := regexp.MustCompile(regexp.QuoteMeta(packageName) + `/([A-Za-z0-9_.$]+)`)
	if m := componentRE.FindStringSubmatch(mainSection); m != nil {
		return m[1]
	}
	return ""
}

// TopActivity returns the package/activity on top of the activity stack.
func (r *ADBDevice) TopActivity(ctx context.Context) (string, bool) {
	fg, err := r.topActivity(ctx)
	if err != nil {
		return "", false
	}
	return fg.String(), true
}

func (r *ADBDevice) topActivity(ctx context.Context) (*definitions.ForegroundApp, error) {
	output := r.Shell(ctx, "dumpsys activity top")
	m := topActivityRE.FindStringSubmatch(output)
	if m == nil {
		r.mu.Lock()
		r.state.Foreground = nil
		r.mu.Unlock()
		return nil, ErrNoActivity
	}

	fg := &definitions.ForegroundApp{Package: m[1], Activity: m[2]}
	r.mu.Lock()
	r.state.Foreground = fg
	r.mu.Unlock()
	return fg, nil
}

func (r *ADBDevice) IsForeground(ctx context.Context, app definitions.App) bool {
	fg, err := r.topActivity(ctx)
	if err != nil {
		return false
	}
	return fg.Package == app.Package
}

// Unlock sends MENU then BACK to dismiss a lock screen. Success is not verified.
func (r *ADBDevice) Unlock(ctx context.Context) {
	_ = r.Press(ctx, "MENU")
	_ = r.Press(ctx, "BACK")
}

func (r *ADBDevice) Press(ctx context.Context, key string) error {
	_, err := r.shell(ctx, "Press", []string{"input", "keyevent", constants.NormalizeKey(key)})
	return err
}

func (r *ADBDevice) Tap(ctx context.Context, x, y int) error {
	_, err := r.shell(ctx, "Tap", []string{"input", "tap", strconv.Itoa(x), strconv.Itoa(y)})
	return err
}

func (r *ADBDevice) LongPress(ctx context.Context, x, y int) error {
	return r.Swipe(ctx, x, y, x, y, 3000)
}

func (r *ADBDevice) Swipe(ctx context.Context, startX, startY, endX, endY, durationMs int) error {
	_, err := r.shell(ctx, "Swipe", []string{
		"input", "swipe",
		strconv.Itoa(startX), strconv.Itoa(startY),
		strconv.Itoa(endX), strconv.Itoa(endY),
		strconv.Itoa(durationMs),
	})
	return err
}

// TypeText types into the focused field. input text reads %s as a space.
func (r *ADBDevice) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	_, err := r.shell(ctx, "TypeText", []string{"input", "text", strings.ReplaceAll(text, " ", "%s")})
	return err
}

// HarvestLogs splits the Xposed log into the raw log, the Droidmon API
// monitor lines and the Droidmon error lines of packageName, and sends each
// to s. A missing log is not an error.
func (r *ADBDevice) HarvestLogs(ctx context.Context, packageName string, s sink.Sink) error {
	if !r.fileExists(ctx, constants.XposedLogPath) {
		log.Info().Msg("Could not find any Xposed logs, skipping droidmon logs.")
		return nil
	}
	output, err := r.shell(ctx, "HarvestLogs", []string{"cat", constants.XposedLogPath})
	if err != nil || len(output) == 0 {
		log.Info().Msg("Could not find any Xposed logs, skipping droidmon logs.")
		return nil
	}

	tag := fmt.Sprintf(constants.DroidmonSuccessTagFormat, packageName)
	tagError := fmt.Sprintf(constants.DroidmonErrorTagFormat, packageName)

	var logXposed, logSuccess, logError []string

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, tag) {
			logSuccess = append(logSuccess, afterColon(line))
		}
		if strings.Contains(line, tagError) {
			logError = append(logError, afterColon(line))
		}
		logXposed = append(logXposed, line)
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("[HarvestLogs] scan xposed log failed")
	}

	log.Info().Int("lines", len(logXposed)).Int("success", len(logSuccess)).Int("error", len(logError)).Msg("Harvested droidmon logs")

	return errors.Join(
		s.Send(constants.XposedLogArtifact, []byte(strings.Join(logXposed, "\n"))),
		s.Send(constants.DroidmonLogArtifact, []byte(strings.Join(logSuccess, "\n"))),
		s.Send(constants.DroidmonErrorLogArtifact, []byte(strings.Join(logError, "\n"))),
	)
}

// fileExists lists path and compares the echo. exec-out folds stderr into
// stdout and drops the exit status, so a failed ls only shows in its text.
func (r *ADBDevice) fileExists(ctx context.Context, path string) bool {
	output, err := r.shell(ctx, "FileExists", []string{"ls", path})
	return err == nil && strings.TrimSpace(string(output)) == path
}

func afterColon(line string) string {
	if _, rest, ok := strings.Cut(line, ":"); ok {
		return rest
	}
	return line
}

package android

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"reflect"
	"strings"
	"testing"

	"github.com/spance/droidbot-go/constants"
	"github.com/spance/droidbot-go/droidbot/channel"
	"github.com/spance/droidbot-go/droidbot/channel/channeltest"
	"github.com/spance/droidbot-go/droidbot/definitions"
	"github.com/spance/droidbot-go/droidbot/sink"
)

// shellOnly hides the host side of a channel, like an on-device agent.
type shellOnly struct {
	channel.Channel
}

func TestShellCommandShapes(t *testing.T) {
	ch := channeltest.New().On("echo hi", "hi\n")
	device := NewADBDevice(ch)
	ctx := context.Background()

	if got := device.Shell(ctx, "echo hi"); got != "hi\n" {
		t.Errorf("Shell(string) = %q", got)
	}
	if got := device.Shell(ctx, []string{"echo", "hi"}); got != "hi\n" {
		t.Errorf("Shell([]string) = %q", got)
	}
	if got := device.Shell(ctx, 42); got != "" {
		t.Errorf("Shell(42) = %q, want empty", got)
	}
	if got := device.Shell(ctx, nil); got != "" {
		t.Errorf("Shell(nil) = %q, want empty", got)
	}
	if got := device.Shell(ctx, "missing"); got != "" {
		t.Errorf("Shell(failing) = %q, want empty", got)
	}
	if n := len(ch.Calls()); n != 3 {
		t.Errorf("expected only valid commands to reach the channel, got %d calls: %q", n, ch.Calls())
	}
}

func TestInstalledPath(t *testing.T) {
	ch := channeltest.New().
		On("pm path com.x", "package:/data/app/com.x-1/base.apk\npackage:/data/app/com.x-1/split_config.arm64.apk\n")
	device := NewADBDevice(ch)

	got, ok := device.InstalledPath(context.Background(), "com.x")
	if !ok || got != "/data/app/com.x-1/base.apk" {
		t.Fatalf("InstalledPath() = %q, %v", got, ok)
	}
	if device.State().InstalledPath != got {
		t.Errorf("state not updated: %+v", device.State())
	}

	if got, ok := device.InstalledPath(context.Background(), "com.none"); ok || got != "" {
		t.Errorf("InstalledPath(missing) = %q, %v", got, ok)
	}
}

func TestTopActivity(t *testing.T) {
	ch := channeltest.New().
		On("dumpsys activity top", "TASK com.x id=12 userId=0\n  ACTIVITY com.x/.MainActivity 3f1c2a pid=4242\n    Local Activity 1234 State:\n")
	device := NewADBDevice(ch)
	ctx := context.Background()

	got, ok := device.TopActivity(ctx)
	if !ok || got != "com.x/.MainActivity" {
		t.Fatalf("TopActivity() = %q, %v", got, ok)
	}
	state := device.State()
	if state.Foreground == nil || state.Foreground.Package != "com.x" {
		t.Errorf("foreground not tracked: %+v", state)
	}

	if !device.IsForeground(ctx, definitions.App{Package: "com.x"}) {
		t.Errorf("expected com.x to be foreground")
	}
	if device.IsForeground(ctx, definitions.App{Package: "com.y"}) {
		t.Errorf("com.y must not be foreground")
	}
}

func TestTopActivityMissing(t *testing.T) {
	device := NewADBDevice(channeltest.New().On("dumpsys activity top", "no activities\n"))
	if got, ok := device.TopActivity(context.Background()); ok || got != "" {
		t.Errorf("TopActivity() = %q, %v", got, ok)
	}
	if device.State().Foreground != nil {
		t.Errorf("foreground should be cleared")
	}
}

func TestUnlockAndPress(t *testing.T) {
	ch := channeltest.New().
		On("input keyevent KEYCODE_MENU", "").
		On("input keyevent KEYCODE_BACK", "").
		On("input keyevent 66", "")
	device := NewADBDevice(ch)
	ctx := context.Background()

	device.Unlock(ctx)
	if err := device.Press(ctx, "66"); err != nil {
		t.Errorf("Press(66) error: %v", err)
	}

	want := []string{"input keyevent KEYCODE_MENU", "input keyevent KEYCODE_BACK", "input keyevent 66"}
	if got := ch.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %q, want %q", got, want)
	}
}

func TestLaunch(t *testing.T) {
	ch := channeltest.New().
		On("/system/bin/sh /system/bin/am start -n com.x/.Main", "Starting: Intent { cmp=com.x/.Main }\n").
		On("/system/bin/sh /system/bin/am start -n com.x/.Nope", "Starting: Intent { cmp=com.x/.Nope }\nError type 3\nError: Activity class {com.x/com.x.Nope} does not exist.\n").
		On("/system/bin/sh /system/bin/am start -a android.intent.action.VIEW -d http://example.com", "Starting: Intent { act=android.intent.action.VIEW dat=http://example.com/... }\n")
	device := NewADBDevice(ch)
	ctx := context.Background()

	if err := device.LaunchActivity(ctx, "com.x", ".Main"); err != nil {
		t.Errorf("LaunchActivity() error: %v", err)
	}
	if err := device.LaunchActivity(ctx, "com.x", ".Nope"); !errors.Is(err, ErrLaunch) {
		t.Errorf("LaunchActivity(.Nope) error = %v, want ErrLaunch", err)
	}
	if err := device.LaunchActivity(ctx, "com.y", ".Main"); err == nil {
		t.Errorf("expected channel failure to surface")
	}
	if err := device.LaunchURL(ctx, "http://example.com"); err != nil {
		t.Errorf("LaunchURL() error: %v", err)
	}
}

func TestScreenshot(t *testing.T) {
	ch := channeltest.New().
		On("/system/bin/screencap -p /sdcard/shot.png", "").
		On("/system/bin/screencap -p /sdcard/bad.png", "Status: -1\n")
	device := NewADBDevice(ch)
	ctx := context.Background()

	if got, ok := device.Screenshot(ctx, "shot.png"); !ok || got != "/sdcard/shot.png" {
		t.Errorf("Screenshot(shot.png) = %q, %v", got, ok)
	}
	if got, ok := device.Screenshot(ctx, "bad.png"); ok || got != "" {
		t.Errorf("Screenshot(bad.png) = %q, %v", got, ok)
	}
	if got, ok := device.Screenshot(ctx, "missing.png"); ok || got != "" {
		t.Errorf("Screenshot(missing.png) = %q, %v", got, ok)
	}

	// default names are generated and land in the screenshot directory
	_, _ = device.Screenshot(ctx, "")
	calls := ch.Calls()
	last := calls[len(calls)-1]
	if !strings.HasPrefix(last, "/system/bin/screencap -p /sdcard/screenshot_") || !strings.HasSuffix(last, ".png") {
		t.Errorf("unexpected default screenshot command %q", last)
	}
}

func TestCaptureScreen(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 3))); err != nil {
		t.Fatal(err)
	}
	device := NewADBDevice(channeltest.New().On("screencap -p", buf.String()))

	shot, err := device.CaptureScreen(context.Background())
	if err != nil {
		t.Fatalf("CaptureScreen() error: %v", err)
	}
	if shot.Width != 4 || shot.Height != 3 || shot.Base64Data == "" {
		t.Errorf("unexpected screenshot %dx%d", shot.Width, shot.Height)
	}

	device = NewADBDevice(channeltest.New().On("screencap -p", "not a png"))
	if _, err := device.CaptureScreen(context.Background()); !errors.Is(err, ErrScreenshot) {
		t.Errorf("CaptureScreen(garbage) error = %v, want ErrScreenshot", err)
	}
}

func TestInstall(t *testing.T) {
	ctx := context.Background()

	host := channeltest.New().OnHost("install -r /tmp/sample.apk", "Performing Streamed Install\nSuccess\n")
	if err := NewADBDevice(host).Install(ctx, "/tmp/sample.apk"); err != nil {
		t.Errorf("host Install() error: %v", err)
	}
	if got := host.Calls(); len(got) != 1 || got[0] != "host install -r /tmp/sample.apk" {
		t.Errorf("host install calls = %q", got)
	}

	local := channeltest.New().
		On("/system/bin/sh /system/bin/pm install /data/local/tmp/sample.apk", "Success\n").
		On("/system/bin/sh /system/bin/pm install /data/local/tmp/broken.apk", "Failure [INSTALL_PARSE_FAILED_NOT_APK]\n")
	device := NewADBDevice(shellOnly{local})
	if err := device.Install(ctx, "/data/local/tmp/sample.apk"); err != nil {
		t.Errorf("local Install() error: %v", err)
	}
	if err := device.Install(ctx, "/data/local/tmp/broken.apk"); err == nil {
		t.Errorf("expected install failure to surface")
	}
}

func TestLastInstalledPackage(t *testing.T) {
	ch := channeltest.New().
		On("pm list packages -3", "package:com.a\npackage:com.b\n").
		On("dumpsys package com.a", "Packages:\n  Package [com.a]\n    firstInstallTime=2024-01-01 10:00:00\n").
		On("dumpsys package com.b", "Packages:\n  Package [com.b]\n    firstInstallTime=2025-03-01 10:00:00\n").
		On("pm path com.b", "package:/data/app/com.b-1/base.apk\n").
		On("cmd package resolve-activity --brief -c android.intent.category.LAUNCHER com.b", "priority=0 preferredOrder=0 match=0x108000 specificIndex=-1 isDefault=true\ncom.b/.LauncherActivity\n")

	app, err := NewADBDevice(ch).LastInstalledPackage(context.Background())
	if err != nil {
		t.Fatalf("LastInstalledPackage() error: %v", err)
	}
	want := definitions.App{Path: "/data/app/com.b-1/base.apk", Package: "com.b", Activity: ".LauncherActivity"}
	if *app != want {
		t.Errorf("app = %+v, want %+v", *app, want)
	}
}

func TestLastInstalledPackageLegacyActivity(t *testing.T) {
	ch := channeltest.New().
		On("pm list packages -3", "package:com.old\n").
		On("dumpsys package com.old", "Activity Resolver Table:\n  Non-Data Actions:\n      android.intent.action.MAIN:\n        41a2b3c com.old/.Splash filter 41a2b3d\n").
		On("pm path com.old", "package:/data/app/com.old-1.apk\n")

	app, err := NewADBDevice(ch).LastInstalledPackage(context.Background())
	if err != nil {
		t.Fatalf("LastInstalledPackage() error: %v", err)
	}
	if app.Activity != ".Splash" || app.Path != "/data/app/com.old-1.apk" {
		t.Errorf("app = %+v", *app)
	}

	_, err = NewADBDevice(channeltest.New().On("pm list packages -3", "")).LastInstalledPackage(context.Background())
	if !errors.Is(err, ErrNoPackage) {
		t.Errorf("error = %v, want ErrNoPackage", err)
	}
}

func TestHarvestLogs(t *testing.T) {
	xposed := strings.Join([]string{
		"...Droidmon-apimonitor-com.x: result1",
		"...Droidmon-shell-com.x: err1",
		"unrelated line",
	}, "\n") + "\n"
	ch := channeltest.New().
		On("ls "+constants.XposedLogPath, constants.XposedLogPath+"\n").
		On("cat "+constants.XposedLogPath, xposed)
	mem := sink.NewMemory()

	if err := NewADBDevice(ch).HarvestLogs(context.Background(), "com.x", mem); err != nil {
		t.Fatalf("HarvestLogs() error: %v", err)
	}

	raw, _ := mem.Get(constants.XposedLogArtifact)
	success, _ := mem.Get(constants.DroidmonLogArtifact)
	failure, _ := mem.Get(constants.DroidmonErrorLogArtifact)

	if string(success) != " result1" {
		t.Errorf("success bucket = %q", success)
	}
	if string(failure) != " err1" {
		t.Errorf("error bucket = %q", failure)
	}
	for _, line := range []string{"...Droidmon-apimonitor-com.x: result1", "...Droidmon-shell-com.x: err1", "unrelated line"} {
		if !strings.Contains(string(raw), line) {
			t.Errorf("raw bucket misses %q", line)
		}
	}
}

func TestHarvestLogsMissingFile(t *testing.T) {
	mem := sink.NewMemory()
	ch := channeltest.New().Fail("ls "+constants.XposedLogPath, errors.New("No such file or directory"))

	if err := NewADBDevice(ch).HarvestLogs(context.Background(), "com.x", mem); err != nil {
		t.Fatalf("HarvestLogs() error: %v", err)
	}
	if mem.Len() != 0 {
		t.Errorf("expected no artifacts, got %d", mem.Len())
	}
	if n := ch.Count("cat " + constants.XposedLogPath); n != 0 {
		t.Errorf("cat ran %d times for a missing log", n)
	}
}

// exec-out returns the error text on stdout with a clean exit.
func TestHarvestLogsMissingFileOverExecOut(t *testing.T) {
	missing := "ls: " + constants.XposedLogPath + ": No such file or directory\n"
	ch := channeltest.New().
		On("ls "+constants.XposedLogPath, missing).
		On("cat "+constants.XposedLogPath, "cat: "+constants.XposedLogPath+": No such file or directory\n")
	mem := sink.NewMemory()

	if err := NewADBDevice(ch).HarvestLogs(context.Background(), "com.x", mem); err != nil {
		t.Fatalf("HarvestLogs() error: %v", err)
	}
	if mem.Len() != 0 {
		raw, _ := mem.Get(constants.XposedLogArtifact)
		t.Errorf("expected no artifacts, got %d (raw %q)", mem.Len(), raw)
	}
}

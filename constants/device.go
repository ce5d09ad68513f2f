package constants

const (
	ADB   = "adb"
	Local = "local"
)

// Policies understood by the event package.
const (
	PolicyMonkey = "monkey"
	PolicyRandom = "random"
	PolicyLLM    = "llm"
)

const (
	// ScreenshotDir is where screencap writes on the device.
	ScreenshotDir = "/sdcard"

	// XposedLogPath is the Xposed installer error log that Droidmon writes hooks into.
	XposedLogPath = "/data/data/de.robv.android.xposed.installer/log/error.log"

	DroidmonSuccessTagFormat = "Droidmon-apimonitor-%s"
	DroidmonErrorTagFormat   = "Droidmon-shell-%s"
)

// Artifact names handed to the result sink by a log harvest.
const (
	XposedLogArtifact        = "logs/xposed.log"
	DroidmonLogArtifact      = "logs/droidmon.log"
	DroidmonErrorLogArtifact = "logs/droidmon_error.log"
)

const (
	// BaseDensity is the mdpi reference density that lcd_density values are divided by.
	BaseDensity = 160.0

	// NoDensity marks a display whose density could not be determined.
	NoDensity = -1.0
)

var DensityProperties = []string{"ro.sf.lcd_density", "qemu.sf.lcd_density"}

const (
	DefaultScreenWidth  = 1080
	DefaultScreenHeight = 1920
)

package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"github.com/spance/droidbot-go/constants"
	"github.com/spance/droidbot-go/droidbot"
	"github.com/spance/droidbot-go/droidbot/android"
	"github.com/spance/droidbot-go/droidbot/channel"
	"github.com/spance/droidbot-go/droidbot/definitions"
	"github.com/spance/droidbot-go/droidbot/event"
	"github.com/spance/droidbot-go/droidbot/sink"
	"github.com/spance/droidbot-go/utils"
	"github.com/spf13/cobra"
)

// Config holds all the configuration values from command line arguments
type Config struct {
	DeviceID  string `json:"device_id"`
	Transport string `json:"transport"`

	ConfigFile    string        `json:"config_file"`
	OutputDir     string        `json:"output_dir"`
	Package       string        `json:"package"`
	Activity      string        `json:"activity"`
	Install       string        `json:"install"`
	LaunchApp     bool          `json:"launch_app"`
	Policy        string        `json:"policy"`
	EventCount    int           `json:"event_count"`
	EventInterval time.Duration `json:"event_interval"`
	MaxWait       time.Duration `json:"max_wait"`
	PollInterval  time.Duration `json:"poll_interval"`
	Timeout       time.Duration `json:"timeout"`

	BaseURL  string `json:"base_url"`
	Model    string `json:"model"`
	APIKey   string `json:"-"`
	MaxSteps int    `json:"max_steps"`
	Lang     string `json:"lang"`

	ListDevices bool   `json:"list_devices"`
	Connect     string `json:"connect"`
	Disconnect  bool   `json:"disconnect"`
	EnableTCPIP int    `json:"enable_tcpip"`
	GetDeviceIP bool   `json:"get_device_ip"`
	DisplayInfo bool   `json:"display_info"`
	TopActivity bool   `json:"top_activity"`
	URL         string `json:"url"`
	Screenshot  string `json:"screenshot"`
	Harvest     bool   `json:"harvest"`

	Debug bool `json:"debug"`
}

var rootCmd = &cobra.Command{
	Use:   "droidbot",
	Short: "DroidBot - Android app automation and telemetry",
	Long: `DroidBot starts an application on an Android device, waits for it to reach
the foreground, drives UI events into it and collects the Droidmon logs.`,
	Example: `  # Exercise the most recently installed app with monkey
  droidbot --device-id emulator-5554

  # Install a sample and explore it with random events
  droidbot --install sample.apk --policy random --event-count 500

  # Let a vision model explore the app
  droidbot --package com.example --activity .MainActivity --policy llm --base-url http://localhost:8000/v1

  # Use an analysis config file
  droidbot --config analysis.conf --output-dir ./results

  # Inspect the device
  droidbot --display-info
  droidbot --top-activity
  droidbot --list-devices

  # Connect to a remote device
  droidbot --connect 192.168.1.100:5555`,
	Run: func(cmd *cobra.Command, args []string) {
		commandRan = true
		log.Debug().Str("config", utils.JsonIndent(config)).Msg("Configuration")
	},
}

var config = &Config{}

// commandRan stays false for --help and similar early exits.
var commandRan bool

// Helper function to get environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Helper function to get environment variable as int with default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Helper function to get environment variable as float32 with default value
func getEnvFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatValue)
		}
	}
	return defaultValue
}

// Helper function to get environment variable as duration with default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func init() {
	flags := rootCmd.PersistentFlags()

	// Device options
	flags.StringVarP(&config.DeviceID, "device-id", "d",
		getEnv("DROIDBOT_DEVICE_ID", ""),
		"ADB device ID")

	flags.StringVar(&config.Transport, "transport",
		getEnv("DROIDBOT_TRANSPORT", constants.ADB),
		"Command transport: adb from a host, local when running on the device")

	// Session options
	flags.StringVar(&config.ConfigFile, "config", getEnv("DROIDBOT_CONFIG", ""),
		"Analysis config file")

	flags.StringVarP(&config.OutputDir, "output-dir", "o",
		getEnv("DROIDBOT_OUTPUT_DIR", "./droidbot-output"),
		"Directory for harvested logs")

	flags.StringVarP(&config.Package, "package", "p", "",
		"Package under test (default: most recently installed third-party package)")

	flags.StringVarP(&config.Activity, "activity", "a", "",
		"Activity to launch")

	flags.StringVar(&config.Install, "install", "",
		"Install this APK before the session")

	flags.BoolVar(&config.LaunchApp, "launch", true,
		"Unlock the screen and launch the app before waiting for it")

	flags.StringVar(&config.Policy, "policy",
		getEnv("DROIDBOT_POLICY", constants.PolicyMonkey),
		"Event policy: monkey, random or llm")

	flags.IntVar(&config.EventCount, "event-count",
		getEnvInt("DROIDBOT_EVENT_COUNT", 100),
		"Number of events for the monkey and random policies")

	flags.DurationVar(&config.EventInterval, "event-interval",
		getEnvDuration("DROIDBOT_EVENT_INTERVAL", 400*time.Millisecond),
		"Pause between two events")

	flags.DurationVar(&config.MaxWait, "max-wait",
		getEnvDuration("DROIDBOT_MAX_WAIT", 0),
		"Give up when the app is not in the foreground after this long (0: wait forever)")

	flags.DurationVar(&config.PollInterval, "poll-interval",
		getEnvDuration("DROIDBOT_POLL_INTERVAL", time.Second),
		"Interval between two foreground checks")

	flags.DurationVar(&config.Timeout, "timeout",
		getEnvDuration("DROIDBOT_TIMEOUT", 0),
		"Overall session timeout (0: none)")

	// Model options
	flags.StringVar(&config.BaseURL, "base-url",
		getEnv("DROIDBOT_BASE_URL", "https://open.bigmodel.cn/api/paas/v4"),
		"Model API base URL")

	flags.StringVar(&config.Model, "model",
		getEnv("DROIDBOT_MODEL", "autoglm-phone"),
		"Model name")

	flags.StringVar(&config.APIKey, "apikey",
		getEnv("DROIDBOT_API_KEY", "EMPTY"),
		"API key for model authentication")

	flags.IntVar(&config.MaxSteps, "max-steps",
		getEnvInt("DROIDBOT_MAX_STEPS", 50),
		"Maximum steps for the llm policy")

	flags.StringVar(&config.Lang, "lang",
		getEnv("DROIDBOT_LANG", "cn"),
		"Language for the exploration prompt (cn or en, default: cn)")

	// One-shot device commands
	flags.BoolVar(&config.ListDevices, "list-devices", false,
		"List connected devices and exit")

	flags.StringVarP(&config.Connect, "connect", "c", "",
		"Connect to remote device (e.g., 192.168.1.100:5555)")

	flags.BoolVar(&config.Disconnect, "disconnect", false,
		"Disconnect the remote device given by --device-id and exit")

	flags.IntVar(&config.EnableTCPIP, "enable-tcpip", 0,
		"Enable TCP/IP debugging on USB device on this port and exit")

	flags.BoolVar(&config.GetDeviceIP, "get-device-ip", false,
		"Print the device IP and exit")

	flags.BoolVar(&config.DisplayInfo, "display-info", false,
		"Print display geometry and density and exit")

	flags.BoolVar(&config.TopActivity, "top-activity", false,
		"Print the foreground activity and exit")

	flags.StringVar(&config.URL, "url", "",
		"Open a URL in the browser and exit")

	flags.StringVar(&config.Screenshot, "screenshot", "",
		"Capture a screenshot into /sdcard under this name and exit")

	flags.BoolVar(&config.Harvest, "harvest", false,
		"Harvest Droidmon logs of --package into --output-dir and exit")

	flags.BoolVar(&config.Debug, "debug", false,
		"Enable debug mode (default: false)")
}

func main() {
	parseArgs()
	if !commandRan {
		return
	}

	// Configure zerolog
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if config.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	device := android.NewADBDevice(newChannel())

	if hitCmd := handleDeviceCommands(ctx, device); hitCmd {
		return
	}

	if config.Transport == constants.ADB {
		if passed := checkSystemRequirements(ctx); !passed {
			log.Info().Msg(strings.Repeat("-", 50))
			log.Error().Msg("❌ System check failed. Please fix the issues above.")
			return
		}
	}

	if err := applyConfigFile(); err != nil {
		log.Error().Err(err).Msg("Loading analysis config failed")
		return
	}

	if config.Policy == constants.PolicyLLM {
		if passed := checkModelAPI(ctx, config.BaseURL, config.Model, config.APIKey); !passed {
			log.Error().Msg("❌ Model API check failed. Please fix the issues above.")
			return
		}
	}

	if config.Install != "" {
		if err := device.Install(ctx, config.Install); err != nil {
			return
		}
	}

	if err := runSession(ctx, device); err != nil {
		log.Error().Err(err).Msg("Session failed")
		return
	}
	log.Info().Msg("🎉 Session finished")
}

func parseArgs() *Config {
	// Set pre-run validation
	rootCmd.PersistentPreRunE = validateArgs

	// Execute the command
	cobra.CheckErr(rootCmd.Execute())

	return config
}

func validateArgs(cmd *cobra.Command, args []string) error {
	if config.Lang != "cn" && config.Lang != "en" {
		return fmt.Errorf("invalid language option: %s. Must be 'cn' or 'en'", config.Lang)
	}

	if config.Transport != constants.ADB && config.Transport != constants.Local {
		return fmt.Errorf("invalid transport: %s. Must be 'adb' or 'local'", config.Transport)
	}

	switch config.Policy {
	case constants.PolicyMonkey, constants.PolicyRandom, constants.PolicyLLM:
	default:
		return fmt.Errorf("invalid policy: %s. Must be 'monkey', 'random' or 'llm'", config.Policy)
	}

	return nil
}

func newChannel() channel.Channel {
	if config.Transport == constants.Local {
		return channel.NewLocal()
	}
	return channel.NewADB(config.DeviceID)
}

// applyConfigFile lets the analysis config fill what the flags left open.
func applyConfigFile() error {
	if config.ConfigFile == "" {
		return nil
	}
	cfg, err := definitions.LoadConfig(config.ConfigFile)
	if err != nil {
		return err
	}
	log.Info().Str("file", config.ConfigFile).Str("category", cfg.Category).Str("target", cfg.Target).Msg("Loaded analysis config")

	if config.Package == "" {
		config.Package = cfg.Package
	}
	if config.Activity == "" {
		config.Activity = cfg.Activity
	}
	if cfg.Policy != "" && !rootCmd.PersistentFlags().Changed("policy") {
		config.Policy = cfg.Policy
	}
	if cfg.EventCount > 0 && !rootCmd.PersistentFlags().Changed("event-count") {
		config.EventCount = cfg.EventCount
	}
	if cfg.Timeout > 0 && config.Timeout == 0 {
		config.Timeout = time.Duration(cfg.Timeout) * time.Second
	}
	if ms := cfg.GetInt("throttle", 0); ms > 0 && !rootCmd.PersistentFlags().Changed("event-interval") {
		config.EventInterval = time.Duration(ms) * time.Millisecond
	}
	if cfg.Category == "file" && config.Install == "" && cfg.FileName != "" {
		config.Install = cfg.GetString("apk_path", cfg.FileName)
	}
	return validateArgs(rootCmd, nil)
}

func runSession(ctx context.Context, device *android.ADBDevice) error {
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	if err := device.WaitForDevice(ctx); err != nil {
		return err
	}
	if info, err := device.GetDeviceInfo(ctx); err == nil {
		log.Info().Str("model", info.Model).Str("android", info.AndroidVersion).Str("status", info.Status).Msg("Device ready")
	}

	opts := droidbot.Options{
		OutputDir:    config.OutputDir,
		LaunchApp:    config.LaunchApp,
		MaxWait:      config.MaxWait,
		PollInterval: config.PollInterval,
		Sink:         sink.NewDir(config.OutputDir),
	}
	if config.Package != "" {
		app := &definitions.App{Package: config.Package, Activity: config.Activity}
		if apkPath, ok := device.InstalledPath(ctx, config.Package); ok {
			app.Path = apkPath
		}
		opts.App = app
	}

	eventOpts := event.Options{
		Count:    config.EventCount,
		Throttle: config.EventInterval,
		Explore: definitions.ExploreConfig{
			MaxSteps: config.MaxSteps,
			Lang:     config.Lang,
		},
		Model: &definitions.ModelConfig{
			BaseURL:          config.BaseURL,
			ModelName:        config.Model,
			APIKey:           config.APIKey,
			Lang:             config.Lang,
			MaxTokens:        getEnvInt("DROIDBOT_MAX_TOKENS", 3000),
			Temperature:      getEnvFloat32("DROIDBOT_TEMPERATURE", 0.0),
			TopP:             getEnvFloat32("DROIDBOT_TOP_P", 0.85),
			FrequencyPenalty: getEnvFloat32("DROIDBOT_FREQUENCY_PENALTY", 0.2),
			RequestTimeout:   getEnvDuration("DROIDBOT_MODEL_TIMEOUT", 2*time.Minute),
		},
	}

	controller, err := droidbot.NewController(ctx, device, func(app definitions.App) (event.Generator, error) {
		return event.New(config.Policy, device, app, eventOpts)
	}, opts)
	if err != nil {
		return err
	}

	printConfiguration(controller)

	if err := controller.Start(ctx); err != nil {
		return err
	}
	return controller.Wait()
}

func handleDeviceCommands(ctx context.Context, device *android.ADBDevice) bool {
	// --list-devices
	if config.ListDevices {
		devices, _ := device.ListDevices(ctx)
		if len(devices) == 0 {
			log.Info().Msg("No devices connected.")
		} else {
			log.Info().Msg("Connected devices:")
			log.Info().Msg(strings.Repeat("-", 60))
			for _, d := range devices {
				statusIcon := "✅"
				if d.Status != "device" {
					statusIcon = "❌"
				}
				modelInfo := ""
				if d.Model != "" {
					modelInfo = fmt.Sprintf(" (%s)", d.Model)
				}
				log.Info().Str("device", fmt.Sprintf("  %s %-30s [%s]%s", statusIcon, d.DeviceID, d.ConnectionType, modelInfo)).Msg("")
			}
		}
		return true
	}

	// --connect
	if config.Connect != "" {
		log.Info().Msgf("Connecting to %s...", config.Connect)
		message, err := device.Connect(ctx, config.Connect)
		if err != nil {
			log.Error().Str("msg", message).Msg("❌")
		} else {
			log.Info().Str("msg", message).Msg("✅")
		}
		return true
	}

	// --disconnect
	if config.Disconnect {
		message, err := device.Disconnect(ctx)
		statusSymbol := "✅"
		if err != nil {
			statusSymbol = "❌"
		}
		log.Info().Msgf("%s %s", statusSymbol, message)
		return true
	}

	// --enable-tcpip
	if config.EnableTCPIP > 0 {
		port := config.EnableTCPIP
		log.Info().Msgf("Enabling TCP/IP debugging on port %d...", port)

		if err := device.EnableTCPIP(ctx, port); err != nil {
			log.Error().Err(err).Msg("❌ enable tcpip failed")
		} else {
			log.Info().Msg("✅ enable tcpip success")
		}
		return true
	}

	// --get-device-ip
	if config.GetDeviceIP {
		ip, err := device.GetDeviceIP(ctx)
		if err != nil {
			log.Error().Err(err).Msg("❌ get device ip failed")
		} else {
			log.Info().Msgf("✅ device ip: %s", ip)
		}
		return true
	}

	// --display-info
	if config.DisplayInfo {
		if info := device.GetDisplayInfo(ctx); info != nil {
			log.Info().Str("display", utils.JsonString(info)).Msg("✅")
		}
		return true
	}

	// --top-activity
	if config.TopActivity {
		if top, ok := device.TopActivity(ctx); ok {
			log.Info().Msgf("✅ top activity: %s", top)
		} else {
			log.Error().Msg("❌ no top activity")
		}
		return true
	}

	// --url
	if config.URL != "" {
		_ = device.LaunchURL(ctx, config.URL)
		return true
	}

	// --screenshot
	if config.Screenshot != "" {
		if path, ok := device.Screenshot(ctx, config.Screenshot); ok {
			log.Info().Msgf("✅ screenshot: %s", path)
		}
		return true
	}

	// --harvest
	if config.Harvest {
		if config.Package == "" {
			log.Error().Msg("❌ --harvest needs --package")
			return true
		}
		if err := device.HarvestLogs(ctx, config.Package, sink.NewDir(config.OutputDir)); err != nil {
			log.Error().Err(err).Msg("❌ harvest failed")
		} else {
			log.Info().Str("dir", config.OutputDir).Msg("✅ logs harvested")
		}
		return true
	}

	return false
}

func checkSystemRequirements(ctx context.Context) bool {
	log.Info().Msg("🔍 Checking system requirements...")
	log.Info().Msg(strings.Repeat("-", 50))

	// Check 1: Tool installed
	log.Info().Msg("1. Checking ADB installation... ")
	if _, err := exec.LookPath("adb"); err != nil && os.Getenv("ANDROID_HOME") == "" {
		log.Error().Msg("❌ FAILED")
		log.Info().Msg("   Error: ADB is not installed or not in PATH.")
		log.Info().Msg("   Solution: Install ADB:")
		log.Info().Msg("     - macOS: brew install android-platform-tools")
		log.Info().Msg("     - Linux: sudo apt install android-tools-adb")
		log.Info().Msg("     - Windows: Download from https://developer.android.com/studio/releases/platform-tools")
		return false
	}
	log.Info().Msg("✅ OK")

	// Check 2: Device connected
	log.Info().Msg("2. Checking connected devices... ")
	probe := android.NewADBDevice(channel.NewADB(""))
	devices, err := probe.ListDevices(ctx)
	if err != nil {
		log.Error().Msg("❌ FAILED")
		log.Info().Msgf("   Error: adb devices failed: %v", err)
		return false
	}

	var deviceIDs []string
	for _, d := range devices {
		if d.Status == "device" {
			deviceIDs = append(deviceIDs, d.DeviceID)
		}
	}
	if len(deviceIDs) == 0 {
		log.Error().Msg("❌ FAILED")
		log.Info().Msg("   Error: No devices connected.")
		log.Info().Msg("   Solution:")
		log.Info().Msg("     1. Enable USB debugging on your Android device")
		log.Info().Msg("     2. Connect via USB and authorize the connection")
		log.Info().Msg("     3. Or connect remotely: droidbot --connect <ip>:<port>")
		return false
	}
	displayIDs := deviceIDs
	if len(displayIDs) > 2 {
		displayIDs = append(deviceIDs[:2:2], "...")
	}
	log.Info().Msgf("✅ OK (%d device(s): %s)", len(deviceIDs), strings.Join(displayIDs, ", "))

	log.Info().Msg(strings.Repeat("-", 50))
	log.Info().Msg("✅ All system checks passed!")

	return true
}

// printConfiguration prints the configuration information
func printConfiguration(controller *droidbot.Controller) {
	app := controller.App()

	log.Info().Msg(strings.Repeat("=", 50))
	log.Info().Msg("DroidBot - Android app automation and telemetry")
	log.Info().Msg(strings.Repeat("=", 50))
	log.Info().Msgf("Package: %s", app.Package)
	if app.Activity != "" {
		log.Info().Msgf("Activity: %s", app.Activity)
	}
	if app.Path != "" {
		log.Info().Msgf("APK: %s", app.Path)
	}
	log.Info().Msgf("Policy: %s", config.Policy)
	if config.Policy == constants.PolicyLLM {
		log.Info().Msgf("Model: %s", config.Model)
		log.Info().Msgf("Base URL: %s", config.BaseURL)
		log.Info().Msgf("Max Steps: %d", config.MaxSteps)
	} else {
		log.Info().Msgf("Events: %d every %s", config.EventCount, config.EventInterval)
	}
	log.Info().Msgf("Output: %s", config.OutputDir)
	if config.DeviceID != "" {
		log.Info().Msgf("Device: %s", config.DeviceID)
	}
	log.Info().Msg(strings.Repeat("=", 50))
}

func checkModelAPI(ctx context.Context, baseURL, modelName, apiKey string) bool {
	log.Info().Msg("🔍 Checking model API...")
	log.Info().Msg(strings.Repeat("-", 50))

	log.Info().Msgf("1. Checking API connectivity (%s)... ", baseURL)

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	client := openai.NewClientWithConfig(cfg)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: modelName,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: "please return hello world",
				},
			},
			MaxCompletionTokens: 5,
			Temperature:         0,
		},
	)
	if err != nil {
		log.Error().Msg("❌ FAILED")
		errorMsg := err.Error()
		switch {
		case strings.Contains(errorMsg, "connection refused") || strings.Contains(errorMsg, "connection error"):
			log.Info().Msgf("   Error: Cannot connect to %s", baseURL)
			log.Info().Msg("   Solution:")
			log.Info().Msg("     1. Check if the model server is running")
			log.Info().Msg("     2. Verify the base URL is correct")
			log.Info().Msgf("     3. Try: curl %s/chat/completions", baseURL)
		case strings.Contains(strings.ToLower(errorMsg), "timed out") || strings.Contains(errorMsg, "timeout"):
			log.Info().Msgf("   Error: Connection to %s timed out", baseURL)
		case strings.Contains(errorMsg, "no such host") || strings.Contains(errorMsg, "name resolution"):
			log.Info().Msg("   Error: Cannot resolve hostname")
		default:
			log.Info().Msgf("   Error: %s", errorMsg)
		}
		return false
	}

	if len(resp.Choices) == 0 {
		log.Error().Msg("❌ FAILED")
		log.Error().Msg("   Error: Received empty response from API")
		return false
	}

	log.Info().Msg(strings.Repeat("-", 50))
	log.Info().Msg("✅ Model API checks passed!")

	return true
}

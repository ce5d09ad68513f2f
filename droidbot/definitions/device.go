package definitions

type ConnectionType string

const (
	USB    ConnectionType = "usb"
	WiFi   ConnectionType = "wifi"
	Remote ConnectionType = "remote"
)

type DeviceInfo struct {
	DeviceID       string         `json:"device_id"`
	Status         string         `json:"status"`
	ConnectionType ConnectionType `json:"connection_type"`
	Model          string         `json:"model,omitempty"`
	AndroidVersion string         `json:"android_version,omitempty"`
}

// ForegroundApp is the package/activity pair on top of the activity stack.
type ForegroundApp struct {
	Package  string `json:"package"`
	Activity string `json:"activity"`
}

func (f ForegroundApp) String() string {
	return f.Package + "/" + f.Activity
}

// DeviceState is what the facade knows about its device. It is only mutated
// through facade calls.
type DeviceState struct {
	InstalledPath string         `json:"installed_path,omitempty"`
	Foreground    *ForegroundApp `json:"foreground,omitempty"`
	Connected     bool           `json:"connected"`
}

// Screenshot represents a captured screenshot.
type Screenshot struct {
	Base64Data string `json:"base64_data"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

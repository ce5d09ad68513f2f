package android

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spance/droidbot-go/droidbot/channel"
	"github.com/spance/droidbot-go/droidbot/definitions"
)

func (r *ADBDevice) host() (channel.HostChannel, error) {
	host, ok := r.channel.(channel.HostChannel)
	if !ok {
		return nil, ErrNoHostShell
	}
	return host, nil
}

func (r *ADBDevice) Connect(ctx context.Context, address string) (string, error) {
	host, err := r.host()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	log.Debug().Str("cmd", fmt.Sprintf("[Connect] run cmd: adb connect %s", address)).Msg("")

	rawOutput, err := host.Host(ctx, "connect", address)
	if err != nil {
		log.Error().Err(err).Msg("[Connect] run cmd failed")
		return fmt.Sprintf("Connect error: %v", err), err
	}

	output := string(rawOutput)
	lowerOutput := strings.ToLower(output)

	if strings.Contains(lowerOutput, "already connected") {
		r.setConnected(true)
		return fmt.Sprintf("Already connected to %s", address), nil
	}
	if strings.Contains(lowerOutput, " connected") {
		r.setConnected(true)
		return fmt.Sprintf("Connected to %s", address), nil
	}

	return fmt.Sprintf("Connection error: %s", strings.TrimSpace(output)), fmt.Errorf("connect %s: %s", address, strings.TrimSpace(output))
}

// Disconnect releases the device handle. Remote devices are also detached from
// the adb server; local and USB devices are only marked disconnected.
func (r *ADBDevice) Disconnect(ctx context.Context) (string, error) {
	if !r.State().Connected {
		return "Already disconnected", nil
	}
	r.setConnected(false)

	host, err := r.host()
	if err != nil || !strings.Contains(host.Serial(), ":") {
		return "Disconnected", nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	log.Debug().Str("cmd", fmt.Sprintf("[Disconnect] run cmd: adb disconnect %s", host.Serial())).Msg("")

	rawOutput, err := host.Host(ctx, "disconnect", host.Serial())
	if err != nil {
		log.Error().Err(err).Msg("[Disconnect] run cmd failed")
		return fmt.Sprintf("Disconnect error: %v", err), err
	}
	log.Debug().Str("output", string(rawOutput)).Msg("[Disconnect] raw output")

	return strings.TrimSpace(string(rawOutput)), nil
}

func (r *ADBDevice) setConnected(connected bool) {
	r.mu.Lock()
	r.state.Connected = connected
	r.mu.Unlock()
}

func (r *ADBDevice) ListDevices(ctx context.Context) ([]definitions.DeviceInfo, error) {
	host, err := r.host()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rawOutput, err := host.Host(ctx, "devices", "-l")
	if err != nil {
		log.Error().Err(err).Msg("[ListDevices] run cmd failed")
		return nil, err
	}
	return parseDevices(string(rawOutput)), nil
}

func parseDevices(output string) []definitions.DeviceInfo {
	var devices []definitions.DeviceInfo
	scanner := bufio.NewScanner(strings.NewReader(output))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		deviceID := parts[0]
		status := parts[1]

		connType := definitions.USB
		if strings.Contains(deviceID, ":") {
			connType = definitions.Remote
		}

		model, _ := lo.Find(parts[2:], func(part string) bool {
			return strings.HasPrefix(part, "model:")
		})
		model = strings.TrimPrefix(model, "model:")

		devices = append(devices, definitions.DeviceInfo{
			DeviceID:       deviceID,
			Status:         status,
			ConnectionType: connType,
			Model:          model,
		})
	}

	return devices
}

// IsConnected asks the adb server for the device state. On-device channels
// are always connected while the handle is open.
func (r *ADBDevice) IsConnected(ctx context.Context) bool {
	host, err := r.host()
	if err != nil {
		return r.State().Connected
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := host.Host(ctx, "get-state")
	connected := err == nil && strings.TrimSpace(string(output)) == "device"
	r.setConnected(connected)
	return connected
}

// WaitForDevice blocks until adb reports the device or ctx ends.
func (r *ADBDevice) WaitForDevice(ctx context.Context) error {
	host, err := r.host()
	if err != nil {
		return nil
	}
	if _, err := host.Host(ctx, "wait-for-device"); err != nil {
		log.Error().Err(err).Msg("[WaitForDevice] run cmd failed")
		return err
	}
	r.setConnected(true)
	return nil
}

func (r *ADBDevice) GetDeviceInfo(ctx context.Context) (*definitions.DeviceInfo, error) {
	info := &definitions.DeviceInfo{
		Status:         "device",
		ConnectionType: definitions.USB,
		Model:          strings.TrimSpace(r.Shell(ctx, "getprop ro.product.model")),
		AndroidVersion: strings.TrimSpace(r.Shell(ctx, "getprop ro.build.version.release")),
	}
	if host, err := r.host(); err == nil {
		info.DeviceID = host.Serial()
		if strings.Contains(info.DeviceID, ":") {
			info.ConnectionType = definitions.Remote
		}
	}
	if !r.IsConnected(ctx) {
		info.Status = "offline"
	}
	return info, nil
}

func (r *ADBDevice) EnableTCPIP(ctx context.Context, port int) error {
	host, err := r.host()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	output, err := host.Host(ctx, "tcpip", strconv.Itoa(port))
	if err != nil {
		log.Error().Err(err).Msg("[EnableTCPIP] run cmd failed")
		return err
	}

	if strings.Contains(strings.ToLower(string(output)), "restarting") {
		return nil
	}
	return fmt.Errorf("error enabling TCP/IP: %s", strings.TrimSpace(string(output)))
}

func (r *ADBDevice) GetDeviceIP(ctx context.Context) (string, error) {
	output := r.Shell(ctx, "ip route")
	for _, line := range strings.Split(output, "\n") {
		parts := strings.Fields(line)
		for i, part := range parts {
			if part == "src" && i+1 < len(parts) {
				return parts[i+1], nil
			}
		}
	}

	output = r.Shell(ctx, "ip addr show wlan0")
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "inet ") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				return strings.Split(parts[1], "/")[0], nil
			}
		}
	}
	return "", fmt.Errorf("no ip address found")
}

package globals

// FirmwareVersion is set at build time via -ldflags
var FirmwareVersion = "dev"

// Writable data directory
var DataDir = "/oresat-live-output"

// Firmware data
var FirmwareDataDir = DataDir + "/.firmware-data"

// Config
var ConfigPath = FirmwareDataDir + "/config.json"

// Static settings (YAML), overridable with --config
var SettingsPath = "/etc/dxwifi/dxwifi.yaml"

// Logs
var LogsPath = FirmwareDataDir + "/logs.json"
var LogFilePath = FirmwareDataDir + "/dxwifi.log"

// Captured files waiting for downlink
var OutputDir = DataDir + "/frames"

// Transmission history
var HistoryPath = FirmwareDataDir + "/history.json"

// Embedded assets are extracted here at start-up
var AssetsPath = FirmwareDataDir + "/assets"

// Static test asset sent when static_test_image is enabled
var TestImagePath = AssetsPath + "/test-image.jpeg"

// Radio firmware
var FirmwareDir = "/lib/firmware/ath9k_htc"

const FirmwareLinkName = "htc_9271-1.dev.0.fw"
const RadioModule = "ath9k_htc"

// Monitor-mode interface used by tx
const MonitorInterface = "mon0"

// Sysfs root for network interfaces
var NetClassDir = "/sys/class/net"

// External binaries
var TxBinary = "/usr/bin/tx"
var BringupScript = "/usr/bin/startmonitor.sh"
var CameraDevice = "/dev/v4l/by-id/usb-Empia._USB_Camera_SN202106-video-index0"

package connectivity

import "time"

// Quality is the classified network quality of a device link.
type Quality string

const (
	QualityOffline Quality = "offline"
	QualityPoor    Quality = "poor"
	QualityFair    Quality = "fair"
	QualityGood    Quality = "good"
)

// Transport is the raw link type reported by the host platform.
type Transport string

const (
	TransportNone     Transport = "none"
	TransportWifi     Transport = "wifi"
	TransportEthernet Transport = "ethernet"
	TransportCellular Transport = "cellular"
	TransportOther    Transport = "other"
)

// CellularGeneration is the optional sub-generation for cellular links.
type CellularGeneration string

const (
	Generation5G      CellularGeneration = "5g"
	Generation4G      CellularGeneration = "4g"
	Generation3G      CellularGeneration = "3g"
	Generation2G      CellularGeneration = "2g"
	GenerationUnknown CellularGeneration = ""
)

// RawSignal is everything the monitor consumes from the host platform.
type RawSignal struct {
	Connected         bool
	Transport         Transport
	Generation        CellularGeneration
	InternetReachable bool
}

// State is the classified connection state exposed to subscribers.
type State struct {
	Quality           Quality       `json:"quality"`
	InternetReachable bool          `json:"isInternetReachable"`
	OfflineFor        time.Duration `json:"offlineFor"`
}

// Offline reports whether the device should use the edge path.
func (s State) Offline() bool {
	return s.Quality == QualityOffline
}

package connectivity

import (
	"fmt"
	"time"
)

// Severity grades how loudly the client should surface an outage.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// OfflineSeverity escalates with how long the device has been offline.
func OfflineSeverity(offlineFor time.Duration) Severity {
	switch {
	case offlineFor >= time.Hour:
		return SeverityCritical
	case offlineFor >= time.Minute:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// OfflineNotice renders the user-facing outage message for a duration.
func OfflineNotice(offlineFor time.Duration) string {
	switch {
	case offlineFor >= time.Hour:
		hours := int(offlineFor.Hours())
		return fmt.Sprintf("Offline for %d hours. Translations use the on-device model.", hours)
	case offlineFor >= time.Minute:
		minutes := int(offlineFor.Minutes())
		return fmt.Sprintf("Offline for %d minutes. Translations use the on-device model.", minutes)
	default:
		return "You are offline. Translations use the on-device model."
	}
}

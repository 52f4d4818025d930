package backend

import "strings"

// Quality is the caller's bitrate preference.
type Quality int

const (
	QualityHigh Quality = iota
	QualityMedium
	QualityLow
)

// ParseQuality maps "128"/"192"/"320" or low/medium/high to a Quality.
// Anything unrecognized is treated as best effort.
func ParseQuality(s string) Quality {
	v := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "k")
	switch v {
	case "128", "low":
		return QualityLow
	case "192", "medium", "mid":
		return QualityMedium
	default:
		return QualityHigh
	}
}

// Bitrate returns the ceiling in kbps.
func (q Quality) Bitrate() int {
	switch q {
	case QualityLow:
		return 128
	case QualityMedium:
		return 192
	default:
		return 320
	}
}

func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	default:
		return "high"
	}
}

// FormatSelector returns the yt-dlp -f expression for the quality tier.
// Lower tiers cap the audio bitrate and fall back to the worst stream
// rather than silently upgrading.
func (q Quality) FormatSelector() string {
	switch q {
	case QualityLow:
		return "bestaudio[abr<=128]/worst"
	case QualityMedium:
		return "bestaudio[abr<=192]/bestaudio[abr<=128]/worst"
	default:
		return "bestaudio/best"
	}
}

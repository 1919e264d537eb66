package ui

import (
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
)

// Theme defines UI color tokens used across widgets and text tags.
type Theme struct {
	Bg          tcell.Color
	Surface     tcell.Color
	Border      tcell.Color
	FocusBorder tcell.Color
	TextPrimary tcell.Color
	TextMuted   tcell.Color
	Accent      tcell.Color
	Success     tcell.Color
	Warning     tcell.Color
	Error       tcell.Color
	Header      tcell.Color

	// Text tag colors (for tview dynamic color markup)
	TagMuted   string
	TagAccent  string
	TagSuccess string
	TagWarning string
	TagError   string
}

func hex(s string) tcell.Color { return tcell.GetColor(s) }

func themeDark() Theme {
	return Theme{
		Bg:          hex("#0e1116"),
		Surface:     hex("#12161e"),
		Border:      hex("#2b3240"),
		FocusBorder: hex("#4aa8ff"),
		TextPrimary: hex("#e6edf3"),
		TextMuted:   hex("#8a939f"),
		Accent:      hex("#2dd4bf"),
		Success:     hex("#22c55e"),
		Warning:     hex("#f59e0b"),
		Error:       hex("#ef4444"),
		Header:      hex("#eab308"),

		TagMuted:   "#8a939f",
		TagAccent:  "#2dd4bf",
		TagSuccess: "#22c55e",
		TagWarning: "#f59e0b",
		TagError:   "#ef4444",
	}
}

func themeLight() Theme {
	return Theme{
		Bg:          hex("#f8fafc"),
		Surface:     hex("#ffffff"),
		Border:      hex("#cbd5e1"),
		FocusBorder: hex("#2563eb"),
		TextPrimary: hex("#0f172a"),
		TextMuted:   hex("#64748b"),
		Accent:      hex("#0d9488"),
		Success:     hex("#15803d"),
		Warning:     hex("#b45309"),
		Error:       hex("#b91c1c"),
		Header:      hex("#a16207"),

		TagMuted:   "#64748b",
		TagAccent:  "#0d9488",
		TagSuccess: "#15803d",
		TagWarning: "#b45309",
		TagError:   "#b91c1c",
	}
}

func themeHighContrast() Theme {
	return Theme{
		Bg:          tcell.ColorBlack,
		Surface:     tcell.ColorBlack,
		Border:      tcell.ColorWhite,
		FocusBorder: tcell.ColorYellow,
		TextPrimary: tcell.ColorWhite,
		TextMuted:   hex("#c0c0c0"),
		Accent:      tcell.ColorAqua,
		Success:     tcell.ColorLime,
		Warning:     tcell.ColorYellow,
		Error:       tcell.ColorRed,
		Header:      tcell.ColorYellow,

		TagMuted:   "#c0c0c0",
		TagAccent:  "#00ffff",
		TagSuccess: "#00ff00",
		TagWarning: "#ffff00",
		TagError:   "#ff0000",
	}
}

var themeOrder = []string{"dark", "light", "high-contrast"}

func themeByName(name string) Theme {
	switch name {
	case "light":
		return themeLight()
	case "high-contrast":
		return themeHighContrast()
	default:
		return themeDark()
	}
}

func nextThemeName(current string) string {
	for i, name := range themeOrder {
		if name == current {
			return themeOrder[(i+1)%len(themeOrder)]
		}
	}
	return themeOrder[0]
}

// detectTrueColor mirrors what most terminals advertise; tcell downsamples
// for the rest.
func detectTrueColor() bool {
	ct := strings.ToLower(os.Getenv("COLORTERM"))
	return strings.Contains(ct, "truecolor") || strings.Contains(ct, "24bit")
}

package climate

import (
	"fmt"
	"strconv"
)

func heatingDebug(st *State, d Decision, in Inputs, outside float64, hasOutside bool) string {
	room := formatReading(in.RoomTemp)
	avg := formatReading(in.HouseAvgTemp)
	out := "N/A"
	if hasOutside {
		out = fmt.Sprintf("%.1f°C", outside)
	}

	if d.Action == ActionOff {
		return fmt.Sprintf("OFF | R: %s°C | H: %s°C | O: %s | %s%s", room, avg, out, d.Reason, runtimeInfo(d))
	}

	mode := "Comfort"
	switch {
	case st.Override:
		mode = "Force Comfort"
	case st.ForceEco:
		mode = "Force Eco"
	}

	temp := formatTemp(d.Temperature) + "°C"
	if d.WeatherCompensation > 0 {
		temp = fmt.Sprintf("%s°C (B:%s +%s)", formatTemp(d.Temperature),
			formatTemp(d.BaseTemperature), formatTemp(d.WeatherCompensation))
	}

	return fmt.Sprintf("ON | %s %s | R: %s°C | H: %s°C | O: %s | %s%s", mode, temp, room, avg, out, d.Reason, runtimeInfo(d))
}

func coolingDebug(d Decision, in Inputs) string {
	room := formatReading(in.RoomTemp)
	if d.Action == ActionOff {
		return fmt.Sprintf("COOL OFF | R: %s°C | %s", room, d.Reason)
	}
	return fmt.Sprintf("COOL ON | %s°C | R: %s°C | %s", formatTemp(d.Temperature), room, d.Reason)
}

func runtimeInfo(d Decision) string {
	if minutes := d.MinRuntimeRemainingMinutes(); minutes > 0 {
		return fmt.Sprintf(" | Min runtime: %d min", minutes)
	}
	return ""
}

func formatReading(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", *v)
}

// formatTemp prints a temperature with as few digits as needed: 21, 20.5
func formatTemp(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package climate

import "time"

// evaluateWindows advances the window hysteresis and reports whether
// heating/cooling must stop.
//
// An opening only stops the heat pump once it has been open longer than
// the delay. Closing it before then cancels the timer. Closing it after the
// stop starts a cooldown of the same length before control resumes.
func evaluateWindows(st *State, open []string, delay time.Duration, now time.Time) bool {
	st.OpenWindows = open

	if len(open) > 0 {
		st.WindowCooldownSince = time.Time{}

		if st.WindowOpenSince.IsZero() {
			st.WindowOpenSince = now
			return false
		}
		return now.Sub(st.WindowOpenSince) > delay
	}

	if st.WindowOpenSince.IsZero() {
		st.WindowCooldownSince = time.Time{}
		return false
	}

	if now.Sub(st.WindowOpenSince) < delay {
		st.WindowOpenSince = time.Time{}
		st.WindowCooldownSince = time.Time{}
		return false
	}

	if st.WindowCooldownSince.IsZero() {
		st.WindowCooldownSince = now
	}

	if now.Sub(st.WindowCooldownSince) < delay {
		return true
	}

	st.WindowOpenSince = time.Time{}
	st.WindowCooldownSince = time.Time{}
	return false
}

func windowStopReason(st *State) string {
	if !st.WindowCooldownSince.IsZero() {
		return "Window closed - Waiting restore"
	}
	return "Window/Door open"
}

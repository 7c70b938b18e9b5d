package notify

import (
	"strconv"
	"strings"
	"time"

	"github.com/corebit/corebit-server/internal/models"
)

// CurrentShiftUsers returns the UserIDs on duty at `now` for whichever
// configured shift `now` falls into. If no shift's window contains `now`,
// it returns nil — the caller then resolves only global subscriptions.
func CurrentShiftUsers(now time.Time, shifts []*models.OnDutyShift) []string {
	for _, shift := range shifts {
		if shiftContains(shift, now) {
			return shift.UserIDs
		}
	}
	return nil
}

// shiftContains implements "closed-start, open-end" membership: a timestamp
// belongs to the shift if start <= local-time < end, with ranges that
// straddle midnight (end <= start) wrapping to the next day.
func shiftContains(shift *models.OnDutyShift, now time.Time) bool {
	loc := time.UTC
	if shift.Timezone != "" {
		if l, err := time.LoadLocation(shift.Timezone); err == nil {
			loc = l
		}
	}
	local := now.In(loc)
	nowMinutes := local.Hour()*60 + local.Minute()

	start, ok := parseHHMM(shift.StartTime)
	if !ok {
		return false
	}
	end, ok := parseHHMM(shift.EndTime)
	if !ok {
		return false
	}

	if start <= end {
		return nowMinutes >= start && nowMinutes < end
	}
	// Straddles midnight: active from start through midnight, and from
	// midnight up to (but not including) end.
	return nowMinutes >= start || nowMinutes < end
}

func parseHHMM(s string) (int, bool) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	hh, err1 := strconv.Atoi(h)
	mm, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return hh*60 + mm, true
}

package security

import (
	"strings"
	"sync"
	"time"
)

const maxRecentActivities = 100

// activityRisk is one scored activity kept in a user's rolling history.
type activityRisk struct {
	activityType string
	riskScore    float64
	timestamp    time.Time
}

// userRiskProfile accumulates a user's historical risk across sessions.
type userRiskProfile struct {
	userID           string
	baseRiskScore    float64
	recentActivities []activityRisk
	lastUpdated      time.Time
}

// riskCalculator scores authentication events and in-session activity.
// Rules are intentionally simple pattern checks, matching the original's
// own placeholder heuristics; a real deployment would plug a model in
// here, not hand-tune more string matches.
type riskCalculator struct {
	mu       sync.Mutex
	profiles map[string]*userRiskProfile
}

func newRiskCalculator() *riskCalculator {
	return &riskCalculator{profiles: make(map[string]*userRiskProfile)}
}

// calculateBaseRisk scores a new session at login time: authentication
// method risk, a flat contribution for any recorded source IP (no
// allow-list lookup is in scope here), and 10% of the user's historical
// base risk score.
func (r *riskCalculator) calculateBaseRisk(userID string, method AuthenticationMethod, sourceIP string) float64 {
	risk := baseRisk[method]

	if sourceIP != "" {
		risk += 5.0
	}

	r.mu.Lock()
	if profile, ok := r.profiles[userID]; ok {
		risk += profile.baseRiskScore * 0.1
	}
	r.mu.Unlock()

	return clampRisk(risk)
}

// assessActivity scores a single activity description, using keyword
// heuristics plus a check for whether this activity type is novel for the
// user.
func (r *riskCalculator) assessActivity(userID, activity string) float64 {
	risk := 0.0
	lower := strings.ToLower(activity)

	if strings.Contains(lower, "admin") {
		risk += 20.0
	}
	if strings.Contains(lower, "delete") {
		risk += 15.0
	}
	if strings.Contains(lower, "export") {
		risk += 10.0
	}

	r.mu.Lock()
	if profile, ok := r.profiles[userID]; ok {
		seen := 0
		for _, a := range profile.recentActivities {
			if strings.Contains(a.activityType, activity) {
				seen++
			}
		}
		if seen == 0 {
			risk += 10.0
		}
	}
	r.mu.Unlock()

	return clampRisk(risk)
}

// updateProfile records an activity against the user's rolling history,
// capped at the most recent maxRecentActivities entries.
func (r *riskCalculator) updateProfile(userID, activity string, riskModifier float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[userID]
	if !ok {
		profile = &userRiskProfile{userID: userID}
		r.profiles[userID] = profile
	}

	profile.recentActivities = append(profile.recentActivities, activityRisk{
		activityType: activity,
		riskScore:    riskModifier,
		timestamp:    time.Now(),
	})
	if len(profile.recentActivities) > maxRecentActivities {
		profile.recentActivities = profile.recentActivities[1:]
	}
	profile.lastUpdated = time.Now()
}

func clampRisk(risk float64) float64 {
	if risk < 0 {
		return 0
	}
	if risk > 100 {
		return 100
	}
	return risk
}

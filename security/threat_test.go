package security

import "testing"

func TestThresholdLevel_Bands(t *testing.T) {
	cases := []struct {
		score float64
		want  ThreatLevel
	}{
		{0, ThreatLow},
		{39.9, ThreatLow},
		{40, ThreatMedium},
		{59.9, ThreatMedium},
		{60, ThreatHigh},
		{79.9, ThreatHigh},
		{80, ThreatCritical},
		{100, ThreatCritical},
	}
	for _, tc := range cases {
		if got := thresholdLevel(tc.score); got != tc.want {
			t.Errorf("thresholdLevel(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestRecommendedActions_EscalateWithScore(t *testing.T) {
	if len(recommendedActions(10)) != 0 {
		t.Error("low risk should recommend no actions")
	}
	if len(recommendedActions(45)) != 1 {
		t.Error("medium risk should recommend exactly one action")
	}
	if len(recommendedActions(65)) != 2 {
		t.Error("high risk should recommend two actions")
	}
	if len(recommendedActions(85)) != 2 {
		t.Error("critical risk should recommend two actions")
	}
}

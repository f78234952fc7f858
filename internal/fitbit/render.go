package fitbit

import (
	"fmt"
	"strings"
)

// AuthRequestLines は認可リンクを案内する返信テキストの行を返す。
func AuthRequestLines(authURL string) []string {
	return []string{
		"Fitbitデータへのアクセス許可が必要です\n下記URLからFitbitデータへのアクセス許可をお願いします",
		authURL,
	}
}

// SummaryText は当日のアクティビティサマリーの返信テキストを組み立てる。
func (s *ActivitySummary) SummaryText(displayName string) string {
	if displayName == "" {
		displayName = "unknown"
	}
	lines := []string{
		displayName + "'s today activity summary ",
		fmt.Sprintf(", sedentary minutes = %d", s.SedentaryMinutes),
		fmt.Sprintf(", lightly active minutes = %d", s.LightlyActiveMinutes),
		fmt.Sprintf(", fairly active minutes = %d", s.FairlyActiveMinutes),
		fmt.Sprintf(", very active minutes = %d", s.VeryActiveMinutes),
		fmt.Sprintf(", calories BMR = %d", s.CaloriesBMR),
		fmt.Sprintf(", calories Out = %d", s.CaloriesOut),
		fmt.Sprintf(", activity calories = %d", s.ActivityCalories),
		fmt.Sprintf(", marginal calories = %d", s.MarginalCalories),
		fmt.Sprintf(", elevation = %g", s.Elevation),
		fmt.Sprintf(", floors = %d", s.Floors),
		fmt.Sprintf(", resting heart rate = %d", s.RestingHeartRate),
		fmt.Sprintf(", steps = %d", s.Steps),
	}
	return strings.Join(lines, "\n")
}

// SummaryText は当日の睡眠サマリーの返信テキストを組み立てる。
func (s *SleepSummary) SummaryText(displayName string) string {
	if displayName == "" {
		displayName = "unknown"
	}
	lines := []string{
		displayName + "'s today sleep summary ",
		fmt.Sprintf(", total minutes asleep = %d", s.TotalMinutesAsleep),
		fmt.Sprintf(", total time in bed = %d", s.TotalTimeInBed),
		fmt.Sprintf(", stages wake = %d", s.Stages.Wake),
		fmt.Sprintf(", stages rem = %d", s.Stages.REM),
		fmt.Sprintf(", stages light = %d", s.Stages.Light),
		fmt.Sprintf(", stages deep = %d", s.Stages.Deep),
	}
	return strings.Join(lines, "\n")
}

package fitbit

// Resource はFetcherが取得できるFitbitリソース名を表す。
type Resource string

// 取得可能なリソース名
const (
	ResourceProfile   Resource = "profile"
	ResourceActivity  Resource = "activity"
	ResourceStep      Resource = "step"
	ResourceHeartRate Resource = "heartrate"
	ResourceSleep     Resource = "sleep"
)

// FetchedResource は正規化済みのFitbitレスポンスを表す。
// プロバイダーJSONのうち実際に利用するフィールドのみを射影する。
// 未知のフィールドはパース時に無視される。
type FetchedResource interface {
	ResourceKind() Resource
}

// Profile はFitbitユーザープロフィールの正規化射影。
type Profile struct {
	DisplayName       string `json:"displayName"`
	FullName          string `json:"fullName"`
	Avatar            string `json:"avatar"`
	AverageDailySteps int    `json:"averageDailySteps"`
	MemberSince       string `json:"memberSince"`
	Timezone          string `json:"timezone"`
}

// ResourceKind はFetchedResourceインターフェースを実装する。
func (*Profile) ResourceKind() Resource { return ResourceProfile }

// ActivitySummary は当日のアクティビティサマリーの正規化射影。
type ActivitySummary struct {
	SedentaryMinutes     int     `json:"sedentaryMinutes"`
	LightlyActiveMinutes int     `json:"lightlyActiveMinutes"`
	FairlyActiveMinutes  int     `json:"fairlyActiveMinutes"`
	VeryActiveMinutes    int     `json:"veryActiveMinutes"`
	CaloriesBMR          int     `json:"caloriesBMR"`
	CaloriesOut          int     `json:"caloriesOut"`
	ActivityCalories     int     `json:"activityCalories"`
	MarginalCalories     int     `json:"marginalCalories"`
	Elevation            float64 `json:"elevation"`
	Floors               int     `json:"floors"`
	RestingHeartRate     int     `json:"restingHeartRate"`
	Steps                int     `json:"steps"`
}

// ResourceKind はFetchedResourceインターフェースを実装する。
func (*ActivitySummary) ResourceKind() Resource { return ResourceActivity }

// StepPoint は歩数系列の1データ点。
type StepPoint struct {
	DateTime string `json:"dateTime"`
	Steps    int    `json:"steps"`
}

// StepSeries は当日の歩数系列の正規化射影。
type StepSeries struct {
	Points []StepPoint `json:"points"`
}

// ResourceKind はFetchedResourceインターフェースを実装する。
func (*StepSeries) ResourceKind() Resource { return ResourceStep }

// HeartRatePoint は心拍系列の1データ点。
type HeartRatePoint struct {
	DateTime         string `json:"dateTime"`
	RestingHeartRate int    `json:"restingHeartRate"`
}

// HeartRateSeries は当日の心拍系列の正規化射影。
type HeartRateSeries struct {
	Points []HeartRatePoint `json:"points"`
}

// ResourceKind はFetchedResourceインターフェースを実装する。
func (*HeartRateSeries) ResourceKind() Resource { return ResourceHeartRate }

// SleepStages は睡眠ステージごとの分数。
type SleepStages struct {
	Wake  int `json:"wake"`
	REM   int `json:"rem"`
	Light int `json:"light"`
	Deep  int `json:"deep"`
}

// SleepSummary は当日の睡眠サマリーの正規化射影。
type SleepSummary struct {
	TotalMinutesAsleep int         `json:"totalMinutesAsleep"`
	TotalSleepRecords  int         `json:"totalSleepRecords"`
	TotalTimeInBed     int         `json:"totalTimeInBed"`
	Stages             SleepStages `json:"stages"`
}

// ResourceKind はFetchedResourceインターフェースを実装する。
func (*SleepSummary) ResourceKind() Resource { return ResourceSleep }

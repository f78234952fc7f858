package fitbit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/fitbot/internal/model"
)

const defaultAPIBaseURL = "https://api.fitbit.com"

// リソースごとのパステンプレート。[date]はサーバーローカル日付に置換される。
const (
	pathProfile       = "/1/user/-/profile.json"
	pathActivityDaily = "/1/user/-/activities/date/[date].json"
	pathStep          = "/1/user/-/activities/steps/date/today/1d.json"
	pathHeartRate     = "/1/user/-/activities/heart/date/today/1d.json"
	pathSleep         = "/1.2/user/-/sleep/date/[date].json"
)

// ParseResource はリソース名文字列をResourceに解決する。
// 列挙外の名前はエラーを返す。
func ParseResource(name string) (Resource, error) {
	switch Resource(name) {
	case ResourceProfile, ResourceActivity, ResourceStep, ResourceHeartRate, ResourceSleep:
		return Resource(name), nil
	default:
		return "", fmt.Errorf("unknown fitbit resource %q", name)
	}
}

// TokenResolver はトークン解決のインターフェース。Managerが実装する。
type TokenResolver interface {
	// ResolveToken は有効なトークンまたは認可URLを返す。
	ResolveToken(ctx context.Context, identity string) (*oauth2.Token, string, error)
}

// FetchMetrics はリソース取得のメトリクス収集インターフェース。
type FetchMetrics interface {
	RecordFetchLatency(duration time.Duration)
	RecordFetchStatus(statusCode int)
}

// nopFetchMetrics は収集を行わないFetchMetrics実装。
type nopFetchMetrics struct{}

func (nopFetchMetrics) RecordFetchLatency(time.Duration) {}
func (nopFetchMetrics) RecordFetchStatus(int)            {}

// FetchResult はリソース取得の結果を表す。
// AuthURLが非空の場合はトークン未保持であり、呼び出し側はエンドユーザーを
// 認可URLへリダイレクトする。これはエラーではなく制御フローの分岐である。
type FetchResult struct {
	AuthURL  string
	Resource FetchedResource
}

// Fetcher は固定されたリソース名に対する署名付きリクエストを組み立て、
// レスポンスを正規化して返す。リトライは行わない（必要なら呼び出し側の責務）。
type Fetcher struct {
	resolver   TokenResolver
	baseURL    string
	httpClient *http.Client
	metrics    FetchMetrics
	now        func() time.Time
}

// NewFetcher はFetcherを生成する。baseURLが空の場合は本番エンドポイントを
// 使用する。metricsがnilの場合は収集を行わない。
func NewFetcher(resolver TokenResolver, baseURL string, timeout time.Duration, metrics FetchMetrics) *Fetcher {
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = nopFetchMetrics{}
	}
	return &Fetcher{
		resolver: resolver,
		baseURL:  baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		now:     time.Now,
	}
}

// resourcePath はリソースの完全なAPIパスを返す。
// 日付テンプレートにはnowのサーバーローカル日付をYYYY-MM-DDで埋め込む。
func resourcePath(resource Resource, now time.Time) string {
	date := now.Format("2006-01-02")
	switch resource {
	case ResourceProfile:
		return pathProfile
	case ResourceActivity:
		return strings.ReplaceAll(pathActivityDaily, "[date]", date)
	case ResourceStep:
		return pathStep
	case ResourceHeartRate:
		return pathHeartRate
	case ResourceSleep:
		return strings.ReplaceAll(pathSleep, "[date]", date)
	default:
		return pathActivityDaily
	}
}

// Fetch はアイデンティティのトークンを解決し、リソースを取得して
// 正規化して返す。トークン未保持の場合はAuthURLのみを持つ結果を返す。
// HTTP非2xxおよびトランスポート障害はFetchErrorとして返す。
func (f *Fetcher) Fetch(ctx context.Context, identity string, resource Resource) (*FetchResult, error) {
	token, authURL, err := f.resolver.ResolveToken(ctx, identity)
	if err != nil {
		return nil, err
	}
	if authURL != "" {
		return &FetchResult{AuthURL: authURL}, nil
	}

	reqURL := f.baseURL + resourcePath(resource, f.now())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, model.NewFetchError(string(resource), 0, "", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	f.metrics.RecordFetchLatency(time.Since(start))
	if err != nil {
		return nil, model.NewFetchError(string(resource), 0, "", err)
	}
	defer resp.Body.Close()

	f.metrics.RecordFetchStatus(resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewFetchError(string(resource), resp.StatusCode, "", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewFetchError(string(resource), resp.StatusCode, string(body), nil)
	}

	normalized, err := normalizeResponse(resource, body)
	if err != nil {
		return nil, model.NewFetchError(string(resource), resp.StatusCode, "", err)
	}

	return &FetchResult{Resource: normalized}, nil
}

// --- プロバイダーJSONのワイヤ形状（利用フィールドのみ） ---

type wireProfileResponse struct {
	User struct {
		DisplayName       string `json:"displayName"`
		FullName          string `json:"fullName"`
		Avatar            string `json:"avatar"`
		AverageDailySteps int    `json:"averageDailySteps"`
		MemberSince       string `json:"memberSince"`
		Timezone          string `json:"timezone"`
	} `json:"user"`
}

type wireActivityResponse struct {
	Summary struct {
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
	} `json:"summary"`
}

type wireStepResponse struct {
	ActivitiesSteps []struct {
		DateTime string `json:"dateTime"`
		Value    string `json:"value"`
	} `json:"activities-steps"`
}

type wireHeartRateResponse struct {
	ActivitiesHeart []struct {
		DateTime string `json:"dateTime"`
		Value    struct {
			RestingHeartRate int `json:"restingHeartRate"`
		} `json:"value"`
	} `json:"activities-heart"`
}

type wireSleepResponse struct {
	Summary struct {
		TotalMinutesAsleep int `json:"totalMinutesAsleep"`
		TotalSleepRecords  int `json:"totalSleepRecords"`
		TotalTimeInBed     int `json:"totalTimeInBed"`
		Stages             struct {
			Wake  int `json:"wake"`
			REM   int `json:"rem"`
			Light int `json:"light"`
			Deep  int `json:"deep"`
		} `json:"stages"`
	} `json:"summary"`
}

// normalizeResponse はプロバイダーJSONをリソースごとの正規化射影に変換する。
// 未知のフィールドは構造体タグの仕組み上、無視される。
func normalizeResponse(resource Resource, body []byte) (FetchedResource, error) {
	switch resource {
	case ResourceProfile:
		var wire wireProfileResponse
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, fmt.Errorf("failed to parse profile response: %w", err)
		}
		return &Profile{
			DisplayName:       wire.User.DisplayName,
			FullName:          wire.User.FullName,
			Avatar:            wire.User.Avatar,
			AverageDailySteps: wire.User.AverageDailySteps,
			MemberSince:       wire.User.MemberSince,
			Timezone:          wire.User.Timezone,
		}, nil

	case ResourceActivity:
		var wire wireActivityResponse
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, fmt.Errorf("failed to parse activity response: %w", err)
		}
		s := wire.Summary
		return &ActivitySummary{
			SedentaryMinutes:     s.SedentaryMinutes,
			LightlyActiveMinutes: s.LightlyActiveMinutes,
			FairlyActiveMinutes:  s.FairlyActiveMinutes,
			VeryActiveMinutes:    s.VeryActiveMinutes,
			CaloriesBMR:          s.CaloriesBMR,
			CaloriesOut:          s.CaloriesOut,
			ActivityCalories:     s.ActivityCalories,
			MarginalCalories:     s.MarginalCalories,
			Elevation:            s.Elevation,
			Floors:               s.Floors,
			RestingHeartRate:     s.RestingHeartRate,
			Steps:                s.Steps,
		}, nil

	case ResourceStep:
		var wire wireStepResponse
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, fmt.Errorf("failed to parse step response: %w", err)
		}
		series := &StepSeries{}
		for _, p := range wire.ActivitiesSteps {
			// プロバイダーは歩数を文字列で返す
			steps, _ := strconv.Atoi(p.Value)
			series.Points = append(series.Points, StepPoint{
				DateTime: p.DateTime,
				Steps:    steps,
			})
		}
		return series, nil

	case ResourceHeartRate:
		var wire wireHeartRateResponse
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, fmt.Errorf("failed to parse heartrate response: %w", err)
		}
		series := &HeartRateSeries{}
		for _, p := range wire.ActivitiesHeart {
			series.Points = append(series.Points, HeartRatePoint{
				DateTime:         p.DateTime,
				RestingHeartRate: p.Value.RestingHeartRate,
			})
		}
		return series, nil

	case ResourceSleep:
		var wire wireSleepResponse
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, fmt.Errorf("failed to parse sleep response: %w", err)
		}
		s := wire.Summary
		return &SleepSummary{
			TotalMinutesAsleep: s.TotalMinutesAsleep,
			TotalSleepRecords:  s.TotalSleepRecords,
			TotalTimeInBed:     s.TotalTimeInBed,
			Stages: SleepStages{
				Wake:  s.Stages.Wake,
				REM:   s.Stages.REM,
				Light: s.Stages.Light,
				Deep:  s.Stages.Deep,
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown fitbit resource %q", resource)
	}
}

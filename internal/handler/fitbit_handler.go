package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/hitoshi/fitbot/internal/fitbit"
	"github.com/hitoshi/fitbot/internal/middleware"
	"github.com/hitoshi/fitbot/internal/model"
)

// TokenLifecycle はFitbitハンドラーが必要とするトークンライフサイクルの
// インターフェース。fitbit.Managerが実装する。
type TokenLifecycle interface {
	AuthCodeURL(identity string) string
	AuthorizeCallback(ctx context.Context, identity, code string) (*oauth2.Token, error)
}

// FitbitFetcher はFitbitリソースの取得機能を定義する。fitbit.Fetcherが実装する。
type FitbitFetcher interface {
	Fetch(ctx context.Context, identity string, resource fitbit.Resource) (*fitbit.FetchResult, error)
}

// ProfileStore はFitbitプロフィールのキャッシュ機能を定義する。
// fitbit.Storeが実装する。
type ProfileStore interface {
	SetProfile(identity string, profile *fitbit.Profile)
}

// FitbitHandler はFitbit連携のHTTPハンドラー。
type FitbitHandler struct {
	lifecycle TokenLifecycle
	fetcher   FitbitFetcher
	profiles  ProfileStore
}

// NewFitbitHandler はFitbitHandlerを生成する。
func NewFitbitHandler(lifecycle TokenLifecycle, fetcher FitbitFetcher, profiles ProfileStore) *FitbitHandler {
	return &FitbitHandler{
		lifecycle: lifecycle,
		fetcher:   fetcher,
		profiles:  profiles,
	}
}

// identityFromQuery はクエリパラメーターからアイデンティティを導出する。
// 指定がない場合は既定のアイデンティティを使用する。
func identityFromQuery(r *http.Request, key string) string {
	if identity := r.URL.Query().Get(key); identity != "" {
		return identity
	}
	return fitbit.DefaultIdentity
}

// InitAuth は認可フローを開始する。
// GET /fitbit/auth
func (h *FitbitHandler) InitAuth(w http.ResponseWriter, r *http.Request) {
	identity := identityFromQuery(r, "identity")
	http.Redirect(w, r, h.lifecycle.AuthCodeURL(identity), http.StatusFound)
}

// callbackResponse は認可コールバック成功時のレスポンスボディ。
type callbackResponse struct {
	Status   string `json:"status"`
	Identity string `json:"identity"`
}

// AuthCallback は認可コードをトークンに交換する。
// GET /fitbit/callback
//
// stateパラメーターには認可開始時のアイデンティティが載っている。
// 交換成功時はプロフィールを取得してキャッシュする（失敗してもエラーにしない）。
func (h *FitbitHandler) AuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "認可コードがありません。",
			Category: "validation",
			Action:   "認可フローを最初からやり直してください。",
		})
		return
	}
	identity := identityFromQuery(r, "state")

	if _, err := h.lifecycle.AuthorizeCallback(r.Context(), identity, code); err != nil {
		slog.Warn("認可コードの交換に失敗しました",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewAuthExchangeAPIError())
		return
	}

	// プロフィールのキャッシュはベストエフォート
	if result, err := h.fetcher.Fetch(r.Context(), identity, fitbit.ResourceProfile); err == nil && result.Resource != nil {
		if profile, ok := result.Resource.(*fitbit.Profile); ok {
			h.profiles.SetProfile(identity, profile)
		}
	} else if err != nil {
		slog.Warn("プロフィールの取得に失敗しました",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(callbackResponse{
		Status:   "success",
		Identity: identity,
	})
}

// GetResource はFitbitリソースを取得して正規化済みJSONを返す。
// GET /fitbit/{resource}
//
// トークン未保持の場合は認可URLへ302リダイレクトする。
func (h *FitbitHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "resource")
	// ルートは複数形を受け付ける
	if name == "steps" {
		name = "step"
	}

	resource, err := fitbit.ParseResource(name)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "UNKNOWN_RESOURCE",
			Message:  "指定されたリソースは存在しません。",
			Category: "validation",
			Action:   "profile, activity, steps, heartrate, sleep のいずれかを指定してください。",
		})
		return
	}

	identity := identityFromQuery(r, "identity")
	result, err := h.fetcher.Fetch(r.Context(), identity, resource)
	if err != nil {
		var fetchErr *model.FetchError
		if errors.As(err, &fetchErr) {
			middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewFetchAPIError(string(resource), fetchErr.Status, fetchErr.Body))
			return
		}
		var refreshErr *model.TokenRefreshError
		if errors.As(err, &refreshErr) {
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
				Code:     model.ErrCodeTokenRefresh,
				Message:  "トークンの更新に失敗しました。",
				Category: "auth",
				Action:   "再度アクセスして認可フローをやり直してください。",
			})
			return
		}
		slog.Error("リソース取得に失敗しました",
			slog.String("resource", string(resource)),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	if result.AuthURL != "" {
		http.Redirect(w, r, result.AuthURL, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result.Resource)
}

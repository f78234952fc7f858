// Package fitbit はFitbit APIのOAuth2トークン管理とリソース取得を提供する。
package fitbit

import (
	"sync"

	"golang.org/x/oauth2"
)

// DefaultIdentity は単一ユーザー運用時の暗黙のアイデンティティキー。
const DefaultIdentity = "default"

// entry は1アイデンティティ分のトークンとプロフィールのキャッシュ。
// muがトークンの読み書き（リフレッシュ中の差し替えを含む）を直列化する。
// エントリ単位のロックのため、異なるアイデンティティ同士はブロックしない。
type entry struct {
	mu      sync.Mutex
	token   *oauth2.Token
	profile *Profile
}

// Store はアイデンティティごとのトークンキャッシュ。
// エントリは初回アクセス時に遅延生成され、プロセス終了まで生存する。
// 明示的なエビクションは行わない。
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore はStoreを生成する。
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
	}
}

// entry はアイデンティティのエントリを返す。存在しない場合は生成する。
func (s *Store) entry(identity string) *entry {
	s.mu.RLock()
	e, ok := s.entries[identity]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 書き込みロック獲得までの間に他のgoroutineが生成している場合がある
	if e, ok := s.entries[identity]; ok {
		return e
	}
	e = &entry{}
	s.entries[identity] = e
	return e
}

// Token はアイデンティティの現在のトークンを返す。
// 未認可の場合はnilとfalseを返す。
func (s *Store) Token(identity string) (*oauth2.Token, bool) {
	e := s.entry(identity)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.token == nil {
		return nil, false
	}
	return e.token, true
}

// CachedProfile はキャッシュ済みのFitbitプロフィールを返す。
// 未取得の場合はnilを返す。
func (s *Store) CachedProfile(identity string) *Profile {
	e := s.entry(identity)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile
}

// SetProfile はFitbitプロフィールをキャッシュする。
// 認可交換の成功後、トークン保存より後に呼び出すこと。
func (s *Store) SetProfile(identity string, profile *Profile) {
	e := s.entry(identity)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profile = profile
}

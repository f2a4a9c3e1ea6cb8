package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// AutoShareShownKey 是分享提示已展示标记在持久化状态中的键
const AutoShareShownKey = "auto_share_shown"

// FlagStore 保存跨会话持久的客户端标记
type FlagStore interface {
	AutoShareShown() bool
	MarkAutoShareShown() error
}

// persistedState 是状态文件的JSON结构
type persistedState struct {
	SessionCookie  string `json:"session_cookie,omitempty"`
	AutoShareShown bool   `json:"auto_share_shown"`
}

// FileStore 把客户端状态保存在一个JSON文件里，写入时先写临时文件再改名
type FileStore struct {
	mu    sync.Mutex
	path  string
	state persistedState
}

// DefaultStatePath 返回用户配置目录下的默认状态文件路径
func DefaultStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "commentator-ranking", "state.json"), nil
}

// OpenFileStore 读取状态文件，文件不存在时从空状态开始
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取状态文件失败: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("状态文件格式错误 %s: %w", path, err)
	}
	return s, nil
}

func (s *FileStore) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) AutoShareShown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.AutoShareShown
}

func (s *FileStore) MarkAutoShareShown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.AutoShareShown {
		return nil
	}
	s.state.AutoShareShown = true
	return s.saveLocked()
}

// SessionCookie 返回上次保存的会话cookie值
func (s *FileStore) SessionCookie() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SessionCookie
}

// SetSessionCookie 保存会话cookie值，值未变化时不写文件
func (s *FileStore) SetSessionCookie(v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.SessionCookie == v {
		return nil
	}
	s.state.SessionCookie = v
	return s.saveLocked()
}

// MemoryStore 是只存在于内存中的 FlagStore
type MemoryStore struct {
	mu    sync.Mutex
	shown bool
}

func (m *MemoryStore) AutoShareShown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shown
}

func (m *MemoryStore) MarkAutoShareShown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown = true
	return nil
}

package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// credentialsFile は認証ディレクトリ内の認証情報ファイル名。
const credentialsFile = "creds.json"

// Credentials は永続化されたセッション認証情報。
type Credentials struct {
	Material  []byte    `json:"material"`
	Rotation  uint64    `json:"rotation"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CredentialStore は認証情報を固定ディレクトリに保存するストア。
// 書き込みはManagerのみが行い、ログアウト時はディレクトリごと消去する。
// トランスポート実装は自身の鍵データを同じディレクトリに置くことで、
// 消去時に一括で破棄されるようにする。
type CredentialStore struct {
	dir string
	mu  sync.Mutex
}

// NewCredentialStore はCredentialStoreを生成する。
func NewCredentialStore(dir string) *CredentialStore {
	return &CredentialStore{dir: dir}
}

// Dir は認証ディレクトリのパスを返す。
func (s *CredentialStore) Dir() string {
	return s.dir
}

// Load は保存済みの認証情報を読み込む。
// 未保存の場合はnilを返す。ディレクトリが存在しない場合は作成する。
func (s *CredentialStore) Load() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}
	return s.read()
}

// Save は認証情報を上書き保存し、ローテーションカウンタを1つ進める。
// 一時ファイルへ書き込んでfsyncした後にrenameするため、
// 途中でプロセスが落ちても直前の内容か新しい内容のどちらかが残る。
func (s *CredentialStore) Save(material []byte) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}

	current, err := s.read()
	if err != nil {
		return nil, err
	}

	next := &Credentials{
		Material:  material,
		UpdatedAt: time.Now().UTC(),
	}
	if current != nil {
		next.Rotation = current.Rotation + 1
	}

	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, credentialsFile+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to sync credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close credential file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, credentialsFile)); err != nil {
		return nil, fmt.Errorf("failed to replace credentials: %w", err)
	}

	return next, nil
}

// Erase は認証ディレクトリを丸ごと削除する。
// 存在しない場合もエラーにしない。
func (s *CredentialStore) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to erase credentials: %w", err)
	}
	return nil
}

func (s *CredentialStore) read() (*Credentials, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, credentialsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return &creds, nil
}

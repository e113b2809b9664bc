package whatsapp

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCredentialStore_LoadEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "auth")
	s := NewCredentialStore(dir)

	creds, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if creds != nil {
		t.Errorf("Load() = %+v, want nil", creds)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Error("expected credential directory to be created")
	}
}

func TestCredentialStore_SaveRotates(t *testing.T) {
	s := NewCredentialStore(t.TempDir())

	first, err := s.Save([]byte("k1"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	second, err := s.Save([]byte("k2"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if first.Rotation != 0 || second.Rotation != 1 {
		t.Errorf("rotations = %d, %d, want 0, 1", first.Rotation, second.Rotation)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(loaded.Material) != "k2" || loaded.Rotation != 1 {
		t.Errorf("Load() = (%q, %d), want (k2, 1)", loaded.Material, loaded.Rotation)
	}

	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 1 || entries[0].Name() != credentialsFile {
		t.Errorf("directory entries = %v, want only %s", entries, credentialsFile)
	}
}

func TestCredentialStore_Erase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "auth")
	s := NewCredentialStore(dir)

	if _, err := s.Save([]byte("k1")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// トランスポートの鍵データも同じディレクトリに置かれる
	if err := os.WriteFile(filepath.Join(dir, "whatsmeow.db"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := s.Erase(); err != nil {
		t.Fatalf("Erase() error = %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("expected credential directory to be removed")
	}

	creds, err := s.Load()
	if err != nil || creds != nil {
		t.Errorf("Load() after Erase = (%+v, %v), want (nil, nil)", creds, err)
	}

	// 存在しない状態での消去もエラーにならない
	if err := NewCredentialStore(filepath.Join(t.TempDir(), "missing")).Erase(); err != nil {
		t.Errorf("Erase() on missing dir error = %v", err)
	}
}

func TestCredentialStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, credentialsFile), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewCredentialStore(dir).Load(); err == nil {
		t.Error("expected error for corrupt credential file")
	}
}

package secret

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"gopkg.in/yaml.v3"
)

const (
	fileVersion = 1
	saltSize    = 16
	hkdfInfo    = "cockpit secret store v1"
)

// ErrTampered는 저장된 값의 복호화/무결성 검증에 실패했을 때 반환됩니다
var ErrTampered = errors.New("저장된 값의 무결성 검증 실패")

// fileDocument는 디스크에 기록되는 YAML 문서 구조입니다
type fileDocument struct {
	Version int               `yaml:"version"`
	Salt    string            `yaml:"salt"`
	Entries map[string]string `yaml:"entries"`
}

// FileStore는 값을 암호화하여 YAML 파일에 보관하는 저장소입니다.
// 각 값은 XChaCha20-Poly1305로 봉인되며, 키 이름을 추가 인증 데이터로 사용합니다.
type FileStore struct {
	path       string
	passphrase []byte
	mu         sync.Mutex
}

// NewFileStore는 주어진 경로와 암호문구로 파일 저장소를 생성합니다
func NewFileStore(path, passphrase string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: 파일 경로가 비어 있습니다", ErrStorage)
	}
	if passphrase == "" {
		return nil, fmt.Errorf("%w: 암호문구가 비어 있습니다", ErrStorage)
	}
	return &FileStore{path: path, passphrase: []byte(passphrase)}, nil
}

// Path는 저장 파일 경로를 반환합니다
func (s *FileStore) Path() string {
	return s.path
}

// Put은 값을 암호화하여 저장합니다
func (s *FileStore) Put(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return newStorageError("put", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return newStorageError("put", key, err)
	}
	if doc.Salt == "" {
		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return newStorageError("put", key, fmt.Errorf("salt 생성 실패: %w", err))
		}
		doc.Salt = base64.StdEncoding.EncodeToString(salt)
	}

	sealed, err := s.seal(doc.Salt, key, value)
	if err != nil {
		return newStorageError("put", key, err)
	}
	doc.Entries[key] = sealed

	if err := s.save(doc); err != nil {
		return newStorageError("put", key, err)
	}
	return nil
}

// Get은 값을 복호화하여 반환합니다
func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, newStorageError("get", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", false, newStorageError("get", key, err)
	}
	sealed, ok := doc.Entries[key]
	if !ok {
		return "", false, nil
	}

	value, err := s.open(doc.Salt, key, sealed)
	if err != nil {
		return "", false, newStorageError("get", key, err)
	}
	return value, true, nil
}

// Clear는 값을 삭제합니다. 파일이 없거나 키가 없으면 아무 것도 하지 않습니다.
func (s *FileStore) Clear(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return newStorageError("clear", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return newStorageError("clear", key, err)
	}
	if _, ok := doc.Entries[key]; !ok {
		return nil
	}
	delete(doc.Entries, key)

	if err := s.save(doc); err != nil {
		return newStorageError("clear", key, err)
	}
	return nil
}

// load는 파일을 읽어 문서를 반환합니다. 파일이 없으면 빈 문서를 반환합니다.
func (s *FileStore) load() (*fileDocument, error) {
	doc := &fileDocument{Version: fileVersion, Entries: make(map[string]string)}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("파일 읽기 실패: %w", err)
	}

	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("파일 파싱 실패: %w", err)
	}
	if doc.Version != fileVersion {
		return nil, fmt.Errorf("지원하지 않는 파일 버전: %d", doc.Version)
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]string)
	}
	return doc, nil
}

// save는 임시 파일에 기록한 뒤 이름을 바꿔 원자적으로 교체합니다
func (s *FileStore) save(doc *fileDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("문서 직렬화 실패: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("디렉터리 생성 실패: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".secrets-*.tmp")
	if err != nil {
		return fmt.Errorf("임시 파일 생성 실패: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("임시 파일 쓰기 실패: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("권한 설정 실패: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("임시 파일 닫기 실패: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("파일 교체 실패: %w", err)
	}
	return nil
}

// deriveKey는 암호문구와 salt로부터 HKDF-SHA256으로 대칭키를 유도합니다
func (s *FileStore) deriveKey(encodedSalt string) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(encodedSalt)
	if err != nil {
		return nil, fmt.Errorf("salt 디코딩 실패: %w", err)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, s.passphrase, salt, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("키 유도 실패: %w", err)
	}
	return key, nil
}

func (s *FileStore) seal(encodedSalt, name, value string) (string, error) {
	key, err := s.deriveKey(encodedSalt)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("AEAD 생성 실패: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(value)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce 생성 실패: %w", err)
	}

	out := aead.Seal(nonce, nonce, []byte(value), []byte(name))
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *FileStore) open(encodedSalt, name, sealed string) (string, error) {
	key, err := s.deriveKey(encodedSalt)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("AEAD 생성 실패: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTampered, err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrTampered
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(name))
	if err != nil {
		return "", ErrTampered
	}
	return string(plain), nil
}

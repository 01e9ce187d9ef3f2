package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// UploadMeta 原始上传文件的元信息
type UploadMeta struct {
	ImportID  string    `json:"importId"`
	Filename  string    `json:"filename"`
	Size      int       `json:"size"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"createdAt"`
}

// Archive 保存原始上传文件，便于调整词表后重新识别
type Archive struct {
	dir string
}

// NewArchive dir 一般为数据目录下的 uploads
func NewArchive(dir string) (*Archive, error) {
	if err := ensureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create upload archive: %w", err)
	}
	return &Archive{dir: dir}, nil
}

// Save 写入 <id><ext> 与 <id>.json
func (a *Archive) Save(id, filename string, data []byte, at time.Time) (UploadMeta, error) {
	sum := sha256.Sum256(data)
	meta := UploadMeta{
		ImportID:  id,
		Filename:  filename,
		Size:      len(data),
		SHA256:    hex.EncodeToString(sum[:]),
		CreatedAt: at.UTC(),
	}
	if err := writeFileAtomic(a.dataPath(id, filename), data); err != nil {
		return meta, fmt.Errorf("failed to archive upload: %w", err)
	}
	if err := writeJSONAtomic(filepath.Join(a.dir, id+".json"), meta); err != nil {
		return meta, fmt.Errorf("failed to archive upload meta: %w", err)
	}
	return meta, nil
}

// Load 读取归档的原始文件
func (a *Archive) Load(id string) (UploadMeta, []byte, error) {
	var meta UploadMeta
	if err := readJSON(filepath.Join(a.dir, id+".json"), &meta); err != nil {
		return meta, nil, err
	}
	data, err := os.ReadFile(a.dataPath(id, meta.Filename))
	return meta, data, err
}

func (a *Archive) dataPath(id, filename string) string {
	return filepath.Join(a.dir, id+strings.ToLower(filepath.Ext(filename)))
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(data, '\n'))
}

func writeFileAtomic(path string, data []byte) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

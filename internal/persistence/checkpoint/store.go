package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quasilyte/gdata/v2"
)

const LatestName = "latest.ckpt.zst"

// FileStore keeps the most recent checkpoint of a run under Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore { return &FileStore{Dir: dir} }

func (s *FileStore) Path() string { return filepath.Join(s.Dir, LatestName) }

func (s *FileStore) Save(ck CheckpointV1) (string, error) {
	p := s.Path()
	if err := Write(p, ck); err != nil {
		return "", err
	}
	return p, nil
}

// Load returns ok=false when no checkpoint has been written yet.
func (s *FileStore) Load() (CheckpointV1, bool, error) {
	ck, err := Read(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return CheckpointV1{}, false, nil
	}
	if err != nil {
		return CheckpointV1{}, false, err
	}
	return ck, true, nil
}

const (
	gdataObject   = "checkpoints"
	gdataProperty = "latest"
)

// GdataStore keeps the latest checkpoint in the per-user application data directory.
type GdataStore struct {
	app string
	m   *gdata.Manager
}

func OpenGdataStore(appName string) (*GdataStore, error) {
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("open gdata %q: %w", appName, err)
	}
	return &GdataStore{app: appName, m: m}, nil
}

func (s *GdataStore) Save(ck CheckpointV1) (string, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, ck); err != nil {
		return "", err
	}
	if err := s.m.SaveObjectProp(gdataObject, gdataProperty, buf.Bytes()); err != nil {
		return "", fmt.Errorf("save checkpoint: %w", err)
	}
	return fmt.Sprintf("gdata:%s/%s/%s", s.app, gdataObject, gdataProperty), nil
}

func (s *GdataStore) Load() (CheckpointV1, bool, error) {
	if !s.m.ObjectPropExists(gdataObject, gdataProperty) {
		return CheckpointV1{}, false, nil
	}
	data, err := s.m.LoadObjectProp(gdataObject, gdataProperty)
	if err != nil {
		return CheckpointV1{}, false, fmt.Errorf("load checkpoint: %w", err)
	}
	ck, err := Decode(bytes.NewReader(data))
	if err != nil {
		return CheckpointV1{}, false, err
	}
	return ck, true, nil
}

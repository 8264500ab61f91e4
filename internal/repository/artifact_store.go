package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"OilCast/internal/domain/models"
	domrepo "OilCast/internal/domain/repository"
	"OilCast/internal/services/forecast"
	applogger "OilCast/pkg/logger"
)

// FileArtifactStore keeps one directory of JSON artifacts:
// <id>_model.json, <id>_scaler.json (scaled models only) and <id>_meta.json.
type FileArtifactStore struct {
	dir string
	l   *applogger.Logger
}

func NewFileArtifactStore(dir string, l *applogger.Logger) *FileArtifactStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &FileArtifactStore{dir: dir, l: l}
}

// ModelPath returns the predictor file for id.
func (s *FileArtifactStore) ModelPath(id models.ModelID) string {
	return filepath.Join(s.dir, string(id)+"_model.json")
}

// ScalerPath returns the scaler file for id.
func (s *FileArtifactStore) ScalerPath(id models.ModelID) string {
	return filepath.Join(s.dir, string(id)+"_scaler.json")
}

// MetaPath returns the metadata sidecar for id.
func (s *FileArtifactStore) MetaPath(id models.ModelID) string {
	return filepath.Join(s.dir, string(id)+"_meta.json")
}

func (s *FileArtifactStore) Save(_ context.Context, id models.ModelID, a *domrepo.Artifacts) error {
	if a == nil || a.Predictor == nil {
		return fmt.Errorf("save %s: no predictor", id)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}

	model, err := forecast.EncodePredictor(a.Predictor)
	if err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}
	if err := writeFileAtomic(s.ModelPath(id), model); err != nil {
		return fmt.Errorf("save %s model: %w", id, err)
	}

	if a.Scaler != nil {
		sc, ok := a.Scaler.(*forecast.StandardScaler)
		if !ok {
			return fmt.Errorf("save %s: unsupported scaler %T", id, a.Scaler)
		}
		b, err := json.Marshal(sc)
		if err != nil {
			return fmt.Errorf("save %s scaler: %w", id, err)
		}
		if err := writeFileAtomic(s.ScalerPath(id), b); err != nil {
			return fmt.Errorf("save %s scaler: %w", id, err)
		}
	} else if err := os.Remove(s.ScalerPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("save %s: remove stale scaler: %w", id, err)
	}

	if a.Meta != nil {
		b, err := json.MarshalIndent(a.Meta, "", "  ")
		if err != nil {
			return fmt.Errorf("save %s meta: %w", id, err)
		}
		if err := writeFileAtomic(s.MetaPath(id), b); err != nil {
			return fmt.Errorf("save %s meta: %w", id, err)
		}
	}

	s.l.Info("model artifacts saved",
		applogger.String("model", string(id)),
		applogger.String("dir", s.dir),
		applogger.Bool("scaled", a.Scaler != nil),
	)
	return nil
}

// Load reads the artifacts for id. A missing predictor, or a missing scaler
// for a model registered as scaled, is ErrArtifactNotFound. Metadata is
// optional.
func (s *FileArtifactStore) Load(_ context.Context, id models.ModelID) (*domrepo.Artifacts, error) {
	spec, err := models.LookupModel(id)
	if err != nil {
		return nil, err
	}

	b, err := readArtifact(s.ModelPath(id))
	if err != nil {
		return nil, fmt.Errorf("load %s model: %w", id, err)
	}
	p, err := forecast.DecodePredictor(b)
	if err != nil {
		return nil, fmt.Errorf("load %s model: %w", id, err)
	}
	out := &domrepo.Artifacts{Predictor: p}

	b, err = readArtifact(s.ScalerPath(id))
	switch {
	case err == nil:
		var sc forecast.StandardScaler
		if err := json.Unmarshal(b, &sc); err != nil {
			return nil, fmt.Errorf("load %s scaler: %w", id, err)
		}
		out.Scaler = &sc
	case errors.Is(err, models.ErrArtifactNotFound) && !spec.Scaled:
	default:
		return nil, fmt.Errorf("load %s scaler: %w", id, err)
	}

	b, err = readArtifact(s.MetaPath(id))
	switch {
	case err == nil:
		var meta models.ModelMeta
		if err := json.Unmarshal(b, &meta); err != nil {
			return nil, fmt.Errorf("load %s meta: %w", id, err)
		}
		out.Meta = &meta
	case errors.Is(err, models.ErrArtifactNotFound):
		s.l.Warn("model metadata missing", applogger.String("model", string(id)))
	default:
		return nil, fmt.Errorf("load %s meta: %w", id, err)
	}
	return out, nil
}

func readArtifact(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", models.ErrArtifactNotFound, path)
	}
	return b, err
}

func writeFileAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

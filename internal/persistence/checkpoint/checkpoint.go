package checkpoint

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/agent"
)

const Version = 1

type Header struct {
	Version    int    `json:"version"`
	RunID      string `json:"run_id"`
	Generation int    `json:"generation"`
	SavedAt    string `json:"saved_at"`
}

// CheckpointV1 is a trained value function plus the settings needed to rebuild and
// resume it. Replay memory is not part of a checkpoint.
type CheckpointV1 struct {
	Header Header `json:"header"`

	Shape        []int               `json:"shape"`
	Layers       []agent.LayerParams `json:"layers"`
	Optimizer    string              `json:"optimizer"`
	LearningRate float64             `json:"learning_rate"`
	Gamma        float64             `json:"gamma"`
	Epsilon      float64             `json:"epsilon"`
	DecayRate    float64             `json:"decay_rate"`
	Seed         int64               `json:"seed"`

	// Stats of the generation that produced this checkpoint.
	Steps       int     `json:"steps"`
	TotalReward float64 `json:"total_reward"`

	TuningDigest string `json:"tuning_digest,omitempty"`
}

// Net rebuilds the value function stored in the checkpoint.
func (c CheckpointV1) Net() (*agent.QNet, error) {
	return agent.NetFromParams(c.Layers, agent.NetConfig{
		LearningRate: c.LearningRate,
		Optimizer:    c.Optimizer,
		Seed:         c.Seed,
	})
}

// Encode writes zstd(JSON header line + gob body).
func Encode(w io.Writer, ck CheckpointV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(ck.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&ck); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func Decode(r io.Reader) (CheckpointV1, error) {
	var ck CheckpointV1
	dec, err := zstd.NewReader(r)
	if err != nil {
		return ck, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return ck, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return ck, fmt.Errorf("parse header: %w", err)
	}
	if h.Version != Version {
		return ck, fmt.Errorf("unsupported checkpoint version %d", h.Version)
	}
	if err := gob.NewDecoder(br).Decode(&ck); err != nil {
		return ck, fmt.Errorf("gob decode: %w", err)
	}
	return ck, nil
}

// Write stores ck at path through a temp file so readers never see a partial file.
func Write(path string, ck CheckpointV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ckpt-*")
	if err != nil {
		return err
	}
	if err := Encode(tmp, ck); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func Read(path string) (CheckpointV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return CheckpointV1{}, err
	}
	defer f.Close()
	return Decode(f)
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	err = json.Unmarshal(line, &h)
	return h, err
}

// Package archive persists the engine's data contracts as gzip-compressed
// JSON files, one contract per file. Decoding validates the probe contract
// up front so a malformed capture fails the run before any clustering
// happens, rather than surfacing as a wrong metric later.
package archive

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/gzip"

	jsoniter "github.com/json-iterator/go"

	"github.com/airtrace/probelink-engine/internal/heuristics"
	"github.com/airtrace/probelink-engine/pkg/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Archive file names, shared by writers and readers.
const (
	TokenProbesFile = "token_to_probe.json.gz"
	GroundTruthFile = "token_to_mac.json.gz"
	PairTotalsFile  = "valid_combinations.json.gz"
	DeviceFile      = "mac_to_probe.json.gz"
)

// rawProbe mirrors models.Probe with pointer fields so missing keys are
// distinguishable from zero values during contract validation.
type rawProbe struct {
	SSID        *uint32  `json:"ssid"`
	Timestamp   *float64 `json:"timestamp"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

func (r rawProbe) validate(token string) (models.Probe, error) {
	if r.SSID == nil {
		return models.Probe{}, fmt.Errorf("%w: token %s probe missing ssid", heuristics.ErrMalformedProbe, token)
	}
	if r.Timestamp == nil {
		return models.Probe{}, fmt.Errorf("%w: token %s probe missing timestamp", heuristics.ErrMalformedProbe, token)
	}
	ts := *r.Timestamp
	if math.IsNaN(ts) || math.IsInf(ts, 0) || ts < 0 {
		return models.Probe{}, fmt.Errorf("%w: token %s probe timestamp %v", heuristics.ErrMalformedProbe, token, ts)
	}
	return models.Probe{SSID: *r.SSID, Timestamp: ts, Fingerprint: r.Fingerprint}, nil
}

// WriteJSON gzip-encodes v into path, creating parent directories.
func WriteJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("archive %s: %w", path, err)
	}
	defer f.Close()

	zw, err := gzip.NewWriterLevel(f, gzip.BestSpeed)
	if err != nil {
		return fmt.Errorf("archive %s: %w", path, err)
	}
	if err := json.NewEncoder(zw).Encode(v); err != nil {
		zw.Close()
		return fmt.Errorf("archive %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("archive %s: %w", path, err)
	}
	return f.Close()
}

// ReadJSON decodes the gzip JSON file at path into v.
func ReadJSON(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive %s: %w", path, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("archive %s: %w", path, err)
	}
	defer zr.Close()

	if err := json.NewDecoder(zr).Decode(v); err != nil && err != io.EOF {
		return fmt.Errorf("archive %s: %w", path, err)
	}
	return nil
}

// Store is a dataset directory holding the archived contracts. It lazily
// loads and caches each contract and satisfies the pipeline's data
// provider and ground-truth source capabilities.
type Store struct {
	dir string

	probes models.TokenProbes
	truth  models.GroundTruth
	totals *models.PairTotals
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// TokenProbes loads and validates the token→probes contract.
func (s *Store) TokenProbes() (models.TokenProbes, error) {
	if s.probes != nil {
		return s.probes, nil
	}

	raw := make(map[string][]rawProbe)
	if err := ReadJSON(filepath.Join(s.dir, TokenProbesFile), &raw); err != nil {
		return nil, err
	}

	probes := make(models.TokenProbes, len(raw))
	for tokenStr, rawProbes := range raw {
		token, err := strconv.Atoi(tokenStr)
		if err != nil {
			return nil, fmt.Errorf("%w: token id %q is not numeric", heuristics.ErrMalformedProbe, tokenStr)
		}
		list := make([]models.Probe, 0, len(rawProbes))
		for _, r := range rawProbes {
			p, err := r.validate(tokenStr)
			if err != nil {
				return nil, err
			}
			list = append(list, p)
		}
		probes[models.TokenID(token)] = list
	}

	s.probes = probes
	return probes, nil
}

// GroundTruth returns the token→identity contract. Load must have
// succeeded first; the accessor itself cannot report errors because it
// backs the validator's truth-source capability.
func (s *Store) GroundTruth() models.GroundTruth {
	return s.truth
}

// PairTotals returns the precomputed pair totals contract. Load must have
// succeeded first.
func (s *Store) PairTotals() models.PairTotals {
	if s.totals == nil {
		return models.PairTotals{}
	}
	return *s.totals
}

// Load eagerly reads every contract so callers fail fast instead of
// discovering a broken archive mid-run.
func (s *Store) Load() error {
	if _, err := s.TokenProbes(); err != nil {
		return err
	}

	truth := make(map[string]string)
	if err := ReadJSON(filepath.Join(s.dir, GroundTruthFile), &truth); err != nil {
		return err
	}
	out := make(models.GroundTruth, len(truth))
	for tokenStr, mac := range truth {
		token, err := strconv.Atoi(tokenStr)
		if err != nil {
			return fmt.Errorf("archive: ground truth token id %q is not numeric", tokenStr)
		}
		out[models.TokenID(token)] = mac
	}
	s.truth = out

	var totals models.PairTotals
	if err := ReadJSON(filepath.Join(s.dir, PairTotalsFile), &totals); err != nil {
		return err
	}
	s.totals = &totals
	return nil
}

// SaveDataset writes a simulated dataset (probes, truth, totals) into dir.
func SaveDataset(dir string, probes models.TokenProbes, truth models.GroundTruth, totals models.PairTotals) error {
	probesOut := make(map[string][]models.Probe, len(probes))
	for token, list := range probes {
		probesOut[strconv.Itoa(int(token))] = list
	}
	truthOut := make(map[string]string, len(truth))
	for token, mac := range truth {
		truthOut[strconv.Itoa(int(token))] = mac
	}

	if err := WriteJSON(filepath.Join(dir, TokenProbesFile), probesOut); err != nil {
		return err
	}
	if err := WriteJSON(filepath.Join(dir, GroundTruthFile), truthOut); err != nil {
		return err
	}
	return WriteJSON(filepath.Join(dir, PairTotalsFile), totals)
}

// SaveDevices writes the per-device capture (mac→probes) the simulator
// consumes.
func SaveDevices(dir string, devices map[string][]models.Probe) error {
	return WriteJSON(filepath.Join(dir, DeviceFile), devices)
}

// LoadDevices reads the per-device capture back, validating each probe.
func LoadDevices(dir string) (map[string][]models.Probe, error) {
	raw := make(map[string][]rawProbe)
	if err := ReadJSON(filepath.Join(dir, DeviceFile), &raw); err != nil {
		return nil, err
	}
	devices := make(map[string][]models.Probe, len(raw))
	for mac, rawProbes := range raw {
		list := make([]models.Probe, 0, len(rawProbes))
		for _, r := range rawProbes {
			p, err := r.validate(mac)
			if err != nil {
				return nil, err
			}
			list = append(list, p)
		}
		devices[mac] = list
	}
	return devices, nil
}

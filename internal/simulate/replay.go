package simulate

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/blindspot/internal/alert"
)

// Script is a recorded sequence of reading batches played back by the
// REPLAY scenario, one batch per tick, looping at the end.
type Script struct {
	Name    string
	Batches [][]alert.SensedObject
}

type scriptFile struct {
	Name    string            `yaml:"name"`
	Batches [][]scriptReading `yaml:"batches"`
}

type scriptReading struct {
	Object   string   `yaml:"object"`
	Distance float64  `yaml:"distance_m"`
	Speed    float64  `yaml:"speed_mps"`
	TTC      *float64 `yaml:"ttc_s"`
}

// LoadScript reads a replay script from a YAML file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay: read file: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes a replay script. A reading without ttc_s gets
// distance divided by speed, which then must be positive. Values must be
// finite so snapshots stay JSON-encodable.
func ParseScript(data []byte) (*Script, error) {
	var f scriptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("replay: parse yaml: %w", err)
	}
	if len(f.Batches) == 0 {
		return nil, errors.New("replay: script has no batches")
	}

	s := &Script{Name: f.Name, Batches: make([][]alert.SensedObject, len(f.Batches))}
	for i, batch := range f.Batches {
		out := make([]alert.SensedObject, 0, len(batch))
		for j, r := range batch {
			obj := alert.ObjectType(r.Object)
			if !obj.Sensed() {
				return nil, fmt.Errorf("replay: batch %d reading %d: unknown object %q", i, j, r.Object)
			}
			var ttc float64
			switch {
			case r.TTC != nil:
				ttc = *r.TTC
			case r.Speed > 0:
				ttc = r.Distance / r.Speed
			default:
				return nil, fmt.Errorf("replay: batch %d reading %d: needs ttc_s or a positive speed_mps", i, j)
			}
			if !finite(r.Distance, r.Speed, ttc) {
				return nil, fmt.Errorf("replay: batch %d reading %d: values must be finite", i, j)
			}
			out = append(out, alert.SensedObject{
				ObjectType:     obj,
				DistanceMeters: r.Distance,
				SpeedMps:       r.Speed,
				TTCSeconds:     ttc,
			})
		}
		s.Batches[i] = out
	}
	return s, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// player steps through a Script. The zero value plays nothing.
type player struct {
	mu     sync.Mutex
	script *Script
	next   int
}

func (p *player) load(s *Script) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = s
	p.next = 0
}

func (p *player) step() []alert.SensedObject {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.script == nil || len(p.script.Batches) == 0 {
		return []alert.SensedObject{}
	}
	b := p.script.Batches[p.next%len(p.script.Batches)]
	p.next++
	return append([]alert.SensedObject{}, b...)
}

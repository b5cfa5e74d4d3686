package backend

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/relvacode/iso8601"
	"gopkg.in/yaml.v3"

	"git.sr.ht/~whereswaldon/sensorview/sensors"
)

// Manifest describes the sensors and channels of a dataset. The order of
// entries in the file is the order of the resulting view.
type Manifest struct {
	Name string `yaml:"name"`
	// Start and End optionally fix the view's time range (ISO 8601). When
	// omitted the range is the span of the loaded readings.
	Start    string        `yaml:"start,omitempty"`
	End      string        `yaml:"end,omitempty"`
	Sensors  []SensorSpec  `yaml:"sensors"`
	Channels []ChannelSpec `yaml:"channels"`
}

type SensorSpec struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name,omitempty"`
	Description string       `yaml:"description,omitempty"`
	Group       string       `yaml:"group,omitempty"`
	Location    LocationSpec `yaml:"location,omitempty"`
	ObjectID    int          `yaml:"objectId,omitempty"`
}

type LocationSpec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type ChannelSpec struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Type        string `yaml:"type,omitempty"`
	Unit        string `yaml:"unit,omitempty"`
	// Min and Max are the expected value range. Either may be left out, in
	// which case it is taken from the observed readings.
	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`
}

// ReadManifest decodes a YAML manifest.
func ReadManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			// An empty manifest is valid and declares nothing.
			return &m, nil
		}
		return nil, fmt.Errorf("failed decoding manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifest reads the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed opening manifest: %w", err)
	}
	defer f.Close()
	return ReadManifest(f)
}

func (m *Manifest) validate() error {
	seenSensors := make(map[string]bool, len(m.Sensors))
	for i, s := range m.Sensors {
		if s.ID == "" {
			return fmt.Errorf("manifest sensor %d has no id", i)
		}
		if seenSensors[s.ID] {
			return fmt.Errorf("%w: %q", sensors.ErrDuplicateSensor, s.ID)
		}
		seenSensors[s.ID] = true
	}
	seenChannels := make(map[string]bool, len(m.Channels))
	for i, c := range m.Channels {
		if c.ID == "" {
			return fmt.Errorf("manifest channel %d has no id", i)
		}
		if seenChannels[c.ID] {
			return fmt.Errorf("%w: %q", sensors.ErrDuplicateChannel, c.ID)
		}
		seenChannels[c.ID] = true
		if _, err := sensors.ParseChannelType(c.Type); err != nil {
			return fmt.Errorf("manifest channel %q: %w", c.ID, err)
		}
	}
	if _, _, _, err := m.timeRange(); err != nil {
		return err
	}
	return nil
}

// timeRange parses the optional start and end. ok is true only when both are
// present.
func (m *Manifest) timeRange() (start, end time.Time, ok bool, err error) {
	if m.Start == "" && m.End == "" {
		return time.Time{}, time.Time{}, false, nil
	}
	if m.Start == "" || m.End == "" {
		return time.Time{}, time.Time{}, false, errors.New("manifest must set both start and end, or neither")
	}
	start, err = iso8601.ParseString(m.Start)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("failed parsing manifest start: %w", err)
	}
	end, err = iso8601.ParseString(m.End)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("failed parsing manifest end: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, false, fmt.Errorf("manifest end %v precedes start %v", end, start)
	}
	return start, end, true, nil
}

func (s SensorSpec) sensor() sensors.Sensor {
	name := s.Name
	if name == "" {
		name = s.ID
	}
	return sensors.Sensor{
		Name:        name,
		Description: s.Description,
		GroupName:   s.Group,
		Location: sensors.Location{
			X: s.Location.X,
			Y: s.Location.Y,
			Z: s.Location.Z,
		},
		ObjectID: s.ObjectID,
	}
}

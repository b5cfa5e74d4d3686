package display

import (
	"time"

	"git.sr.ht/~whereswaldon/sensorview/selection"
	"git.sr.ht/~whereswaldon/sensorview/sensors"
)

// FirstSpriteID is the object id of the first sprite. Sprite ids are
// allocated above the range used by model objects.
const FirstSpriteID = 1000000

// Sprite marks a sensor's location in the model.
type Sprite struct {
	ObjectID int
	Sensor   sensors.SensorID
	Position sensors.Location
}

// Sprites places one sprite per sensor, numbered in view order.
type Sprites struct {
	sel      *selection.Controller
	sprites  []Sprite
	bySprite map[int]sensors.SensorID
	builds   int

	// OnSensorClicked is invoked by Click.
	OnSensorClicked func(sensors.SensorID)
}

var _ selection.Consumer = (*Sprites)(nil)

func NewSprites(sel *selection.Controller) *Sprites {
	return &Sprites{sel: sel}
}

func (s *Sprites) Sprites() []Sprite { return s.sprites }

func (s *Sprites) Builds() int { return s.builds }

// SensorFor maps a sprite object id back to its sensor.
func (s *Sprites) SensorFor(objectID int) (sensors.SensorID, bool) {
	id, ok := s.bySprite[objectID]
	return id, ok
}

// Click reports a click on the sprite with the given object id. Clicks on
// unknown ids are ignored.
func (s *Sprites) Click(objectID int) {
	id, ok := s.SensorFor(objectID)
	if !ok || s.OnSensorClicked == nil {
		return
	}
	s.OnSensorClicked(id)
}

func (s *Sprites) DataViewChanged(_, _ sensors.View) {
	s.refresh()
}

func (s *Sprites) TimeChanged(_, _ time.Time) {}

func (s *Sprites) SensorChanged(_, _ sensors.SensorID) {}

func (s *Sprites) ChannelChanged(_, _ sensors.ChannelID) {}

func (s *Sprites) refresh() {
	s.sprites = nil
	s.bySprite = map[int]sensors.SensorID{}
	view := s.sel.DataView()
	if view == nil {
		return
	}
	objectID := FirstSpriteID
	for id, sensor := range view.Sensors().All() {
		s.sprites = append(s.sprites, Sprite{
			ObjectID: objectID,
			Sensor:   id,
			Position: sensor.Location,
		})
		s.bySprite[objectID] = id
		objectID++
	}
	s.builds++
}

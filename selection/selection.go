// Package selection holds the shared "current view, time, sensor and
// channel" selection and fans each change out to registered consumers.
//
// A Controller has a single owner. All reads, writes and notifications
// happen synchronously on the owner's goroutine; the Controller is not safe
// for concurrent use. Hooks must not write back into the Controller they are
// notified by: doing so panics with ErrReentrantSet.
package selection

import (
	"errors"
	"log/slog"
	"time"

	"git.sr.ht/~whereswaldon/sensorview/sensors"
)

// ErrReentrantSet is the panic value raised when a hook calls a setter.
var ErrReentrantSet = errors.New("selection changed from inside a change hook")

// Consumer receives every kind of selection change. Values are the raw
// selection before and after the change; a zero value means unset.
type Consumer interface {
	DataViewChanged(old, new sensors.View)
	TimeChanged(old, new time.Time)
	SensorChanged(old, new sensors.SensorID)
	ChannelChanged(old, new sensors.ChannelID)
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used to default an unset time.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithLogger sets the logger used to trace selection changes.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// Controller owns the selection tuple.
type Controller struct {
	view    sensors.View
	time    time.Time
	sensor  sensors.SensorID
	channel sensors.ChannelID

	onView    listeners[sensors.View]
	onTime    listeners[time.Time]
	onSensor  listeners[sensors.SensorID]
	onChannel listeners[sensors.ChannelID]

	notifying bool
	now       func() time.Time
	logger    *slog.Logger
}

func New(opts ...Option) *Controller {
	c := &Controller{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DataView returns the current view, or nil if none is set. There is no
// default view.
func (c *Controller) DataView() sensors.View {
	return c.view
}

// Time returns the current time, or the clock's present time if unset.
func (c *Controller) Time() time.Time {
	if c.time.IsZero() {
		return c.now()
	}
	return c.time
}

// SensorID returns the selected sensor, defaulting to the first sensor of
// the current view. ok is false when nothing is selected and there is no
// view to default from.
func (c *Controller) SensorID() (id sensors.SensorID, ok bool) {
	if c.sensor != "" {
		return c.sensor, true
	}
	if c.view == nil {
		return "", false
	}
	id, _, ok = c.view.Sensors().First()
	return id, ok
}

// ChannelID returns the selected channel, defaulting to the first channel
// of the current view.
func (c *Controller) ChannelID() (id sensors.ChannelID, ok bool) {
	if c.channel != "" {
		return c.channel, true
	}
	if c.view == nil {
		return "", false
	}
	id, _, ok = c.view.Channels().First()
	return id, ok
}

// SetDataView replaces the current view. Hooks run even when the same view
// is supplied again, so consumers always rebuild their derived state.
func (c *Controller) SetDataView(view sensors.View) {
	c.enter()
	defer c.leave()
	old := c.view
	c.view = view
	c.logger.Debug("data view changed", "set", view != nil)
	c.onView.notify(old, view)
}

// SetTime moves the time cursor. The zero time clears it.
func (c *Controller) SetTime(t time.Time) {
	c.enter()
	defer c.leave()
	old := c.time
	c.time = t
	c.logger.Debug("time changed", "old", old, "new", t)
	c.onTime.notify(old, t)
}

// SetSensorID selects a sensor. The empty ID clears the selection.
func (c *Controller) SetSensorID(id sensors.SensorID) {
	c.enter()
	defer c.leave()
	old := c.sensor
	c.sensor = id
	c.logger.Debug("sensor changed", "old", old, "new", id)
	c.onSensor.notify(old, id)
}

// SetChannelID selects a channel. The empty ID clears the selection.
func (c *Controller) SetChannelID(id sensors.ChannelID) {
	c.enter()
	defer c.leave()
	old := c.channel
	c.channel = id
	c.logger.Debug("channel changed", "old", old, "new", id)
	c.onChannel.notify(old, id)
}

// ClearDataView is SetDataView(nil).
func (c *Controller) ClearDataView() { c.SetDataView(nil) }

// ClearTime is SetTime with the zero time.
func (c *Controller) ClearTime() { c.SetTime(time.Time{}) }

// ClearSensorID is SetSensorID("").
func (c *Controller) ClearSensorID() { c.SetSensorID("") }

// ClearChannelID is SetChannelID("").
func (c *Controller) ClearChannelID() { c.SetChannelID("") }

// OnDataViewChanged subscribes fn to view changes. The returned function
// unsubscribes it.
func (c *Controller) OnDataViewChanged(fn func(old, new sensors.View)) (cancel func()) {
	return c.onView.add(fn)
}

// OnTimeChanged subscribes fn to time changes.
func (c *Controller) OnTimeChanged(fn func(old, new time.Time)) (cancel func()) {
	return c.onTime.add(fn)
}

// OnSensorChanged subscribes fn to sensor changes.
func (c *Controller) OnSensorChanged(fn func(old, new sensors.SensorID)) (cancel func()) {
	return c.onSensor.add(fn)
}

// OnChannelChanged subscribes fn to channel changes.
func (c *Controller) OnChannelChanged(fn func(old, new sensors.ChannelID)) (cancel func()) {
	return c.onChannel.add(fn)
}

// Register subscribes every method of consumer.
func (c *Controller) Register(consumer Consumer) (cancel func()) {
	cancels := []func(){
		c.OnDataViewChanged(consumer.DataViewChanged),
		c.OnTimeChanged(consumer.TimeChanged),
		c.OnSensorChanged(consumer.SensorChanged),
		c.OnChannelChanged(consumer.ChannelChanged),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func (c *Controller) enter() {
	if c.notifying {
		panic(ErrReentrantSet)
	}
	c.notifying = true
}

func (c *Controller) leave() {
	c.notifying = false
}

package selection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~whereswaldon/sensorview/sensors"
)

var fixedNow = time.Date(2024, time.February, 2, 10, 30, 0, 0, time.UTC)

func newTestController() *Controller {
	return New(WithClock(func() time.Time { return fixedNow }))
}

func buildView(t *testing.T, sensorIDs []sensors.SensorID, channelIDs []sensors.ChannelID) *sensors.MemoryView {
	t.Helper()
	b := sensors.NewBuilder()
	for _, id := range sensorIDs {
		require.NoError(t, b.AddSensor(id, sensors.Sensor{Name: string(id)}))
	}
	for _, id := range channelIDs {
		require.NoError(t, b.AddChannel(id, sensors.Channel{Name: string(id), Min: 0, Max: 1}))
	}
	return b.Build()
}

func TestDefaults(t *testing.T) {
	c := newTestController()

	assert.Nil(t, c.DataView())
	assert.Equal(t, fixedNow, c.Time())
	_, ok := c.SensorID()
	assert.False(t, ok)
	_, ok = c.ChannelID()
	assert.False(t, ok)

	c.SetDataView(buildView(t, []sensors.SensorID{"S1", "S2"}, []sensors.ChannelID{"temp", "co2"}))
	id, ok := c.SensorID()
	require.True(t, ok)
	assert.Equal(t, sensors.SensorID("S1"), id)
	ch, ok := c.ChannelID()
	require.True(t, ok)
	assert.Equal(t, sensors.ChannelID("temp"), ch)

	c.SetSensorID("S2")
	id, _ = c.SensorID()
	assert.Equal(t, sensors.SensorID("S2"), id)

	// An explicit selection survives a view whose first sensor differs.
	c.SetDataView(buildView(t, []sensors.SensorID{"S3", "S2"}, nil))
	id, _ = c.SensorID()
	assert.Equal(t, sensors.SensorID("S2"), id)
	_, ok = c.ChannelID()
	assert.False(t, ok, "view without channels has no default channel")

	c.ClearSensorID()
	id, _ = c.SensorID()
	assert.Equal(t, sensors.SensorID("S3"), id)

	c.ClearDataView()
	_, ok = c.SensorID()
	assert.False(t, ok)
}

func TestTimeDefault(t *testing.T) {
	c := newTestController()
	set := fixedNow.Add(-time.Hour)
	c.SetTime(set)
	assert.Equal(t, set, c.Time())
	c.ClearTime()
	assert.Equal(t, fixedNow, c.Time())
}

func TestTimeHookFiresOnce(t *testing.T) {
	c := newTestController()
	type call struct{ old, new time.Time }
	var calls []call
	c.OnTimeChanged(func(old, new time.Time) {
		calls = append(calls, call{old, new})
	})
	var others int
	c.OnDataViewChanged(func(_, _ sensors.View) { others++ })
	c.OnSensorChanged(func(_, _ sensors.SensorID) { others++ })
	c.OnChannelChanged(func(_, _ sensors.ChannelID) { others++ })

	ts := fixedNow.Add(-10 * time.Minute)
	c.SetTime(ts)

	require.Len(t, calls, 1)
	assert.True(t, calls[0].old.IsZero())
	assert.Equal(t, ts, calls[0].new)
	assert.Zero(t, others)
}

func TestHooksAreUnconditional(t *testing.T) {
	c := newTestController()
	view := buildView(t, []sensors.SensorID{"a"}, []sensors.ChannelID{"x"})

	var views, sensorsSeen, channels int
	c.OnDataViewChanged(func(_, _ sensors.View) { views++ })
	c.OnSensorChanged(func(old, new sensors.SensorID) {
		sensorsSeen++
		assert.Equal(t, old, new)
	})
	c.OnChannelChanged(func(_, _ sensors.ChannelID) { channels++ })

	c.SetDataView(view)
	c.SetDataView(view)
	c.SetSensorID("")
	c.SetSensorID("")
	c.SetChannelID("x")
	c.SetChannelID("x")
	c.ClearChannelID()

	assert.Equal(t, 2, views)
	assert.Equal(t, 2, sensorsSeen)
	assert.Equal(t, 3, channels)
}

func TestHookOldNewValues(t *testing.T) {
	c := newTestController()
	first := buildView(t, []sensors.SensorID{"a"}, nil)
	second := buildView(t, []sensors.SensorID{"b"}, nil)

	var got [][2]sensors.View
	c.OnDataViewChanged(func(old, new sensors.View) {
		got = append(got, [2]sensors.View{old, new})
	})
	c.SetDataView(first)
	c.SetDataView(second)
	c.SetDataView(nil)

	require.Len(t, got, 3)
	assert.Nil(t, got[0][0])
	assert.Same(t, first, got[0][1])
	assert.Same(t, first, got[1][0])
	assert.Same(t, second, got[1][1])
	assert.Same(t, second, got[2][0])
	assert.Nil(t, got[2][1])

	var channels [][2]sensors.ChannelID
	c.OnChannelChanged(func(old, new sensors.ChannelID) {
		channels = append(channels, [2]sensors.ChannelID{old, new})
	})
	c.SetChannelID("temp")
	c.SetChannelID("co2")
	c.ClearChannelID()
	assert.Equal(t, [][2]sensors.ChannelID{{"", "temp"}, {"temp", "co2"}, {"co2", ""}}, channels)
}

func TestHookSeesNewState(t *testing.T) {
	c := newTestController()
	view := buildView(t, []sensors.SensorID{"first"}, nil)
	var seen sensors.SensorID
	c.OnDataViewChanged(func(_, _ sensors.View) {
		seen, _ = c.SensorID()
	})
	c.SetDataView(view)
	assert.Equal(t, sensors.SensorID("first"), seen)
}

func TestSubscriptionOrderAndCancel(t *testing.T) {
	c := newTestController()
	var order []string
	cancelA := c.OnSensorChanged(func(_, _ sensors.SensorID) { order = append(order, "a") })
	c.OnSensorChanged(func(_, _ sensors.SensorID) { order = append(order, "b") })
	var cancelC func()
	cancelC = c.OnSensorChanged(func(_, _ sensors.SensorID) {
		order = append(order, "c")
		// Unsubscribing from inside a hook is allowed.
		cancelC()
	})

	c.SetSensorID("x")
	assert.Equal(t, []string{"a", "b", "c"}, order)

	order = nil
	cancelA()
	cancelA()
	c.SetSensorID("y")
	assert.Equal(t, []string{"b"}, order)
}

type recordingConsumer struct {
	events []string
}

func (r *recordingConsumer) DataViewChanged(_, _ sensors.View) {
	r.events = append(r.events, "view")
}

func (r *recordingConsumer) TimeChanged(_, _ time.Time) {
	r.events = append(r.events, "time")
}

func (r *recordingConsumer) SensorChanged(_, _ sensors.SensorID) {
	r.events = append(r.events, "sensor")
}

func (r *recordingConsumer) ChannelChanged(_, _ sensors.ChannelID) {
	r.events = append(r.events, "channel")
}

func TestRegister(t *testing.T) {
	c := newTestController()
	r := &recordingConsumer{}
	cancel := c.Register(r)

	c.SetDataView(nil)
	c.SetTime(fixedNow)
	c.SetSensorID("s")
	c.SetChannelID("c")
	assert.Equal(t, []string{"view", "time", "sensor", "channel"}, r.events)

	cancel()
	c.SetTime(fixedNow)
	assert.Len(t, r.events, 4)
}

func TestReentrantSetPanics(t *testing.T) {
	c := newTestController()
	c.OnSensorChanged(func(_, new sensors.SensorID) {
		if new == "loop" {
			c.SetChannelID("c")
		}
	})
	assert.PanicsWithValue(t, ErrReentrantSet, func() {
		c.SetSensorID("loop")
	})

	// The controller stays usable after the panic is recovered.
	assert.NotPanics(t, func() {
		c.SetSensorID("fine")
		c.SetChannelID("c")
	})
	ch, _ := c.ChannelID()
	assert.Equal(t, sensors.ChannelID("c"), ch)
}

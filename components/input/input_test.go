package input

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/sholes/drivers/driver"
)

func newMagDevice(t *testing.T) *Device {
	t.Helper()
	d := NewDevice("magnetometer", clock.NewMock())
	test.That(t, d.SetAbsParams(AbsoluteHat0X, AbsInfo{Min: -128, Max: 127, Fuzz: 4, Flat: 4}), test.ShouldBeNil)
	test.That(t, d.SetAbsParams(AbsoluteHat0Y, AbsInfo{Min: -128, Max: 127, Fuzz: 4, Flat: 4}), test.ShouldBeNil)
	test.That(t, d.SetAbsParams(AbsoluteRudder, AbsInfo{Min: 0, Max: 1}), test.ShouldBeNil)
	return d
}

func TestControlCodes(t *testing.T) {
	for control, expected := range map[Control]uint16{
		AbsoluteThrottle: 0x06,
		AbsoluteRudder:   0x07,
		AbsoluteBrake:    0x0a,
		AbsoluteHat0X:    0x10,
		AbsoluteHat0Y:    0x11,
	} {
		code, ok := control.Code()
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, code, test.ShouldEqual, expected)
	}
	_, ok := Control("AbsoluteX").Code()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestSetAbsParams(t *testing.T) {
	d := newMagDevice(t)
	err := d.SetAbsParams(Control("AbsoluteWheel"), AbsInfo{})
	test.That(t, errors.Is(err, driver.ErrInvalidArgument), test.ShouldBeTrue)
	err = d.SetAbsParams(AbsoluteBrake, AbsInfo{Min: 1, Max: 0})
	test.That(t, errors.Is(err, driver.ErrInvalidArgument), test.ShouldBeTrue)

	info, ok := d.AbsParams(AbsoluteHat0Y)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, info, test.ShouldResemble, AbsInfo{Min: -128, Max: 127, Fuzz: 4, Flat: 4})

	controls, err := d.GetControls(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, controls, test.ShouldResemble, []Control{AbsoluteHat0X, AbsoluteHat0Y, AbsoluteRudder})
}

func TestSyncDeliversFrames(t *testing.T) {
	ctx := context.Background()
	d := newMagDevice(t)

	var frames []map[Control]Event
	d.RegisterFrameCallback(func(ctx context.Context, frame map[Control]Event) {
		frames = append(frames, frame)
	})
	var xValues []float64
	test.That(t, d.RegisterControlCallback(ctx, AbsoluteHat0X, []EventType{PositionChangeAbs},
		func(ctx context.Context, ev Event) { xValues = append(xValues, ev.Value) }), test.ShouldBeNil)
	var all int
	test.That(t, d.RegisterControlCallback(ctx, AbsoluteRudder, []EventType{AllEvents},
		func(ctx context.Context, ev Event) { all++ }), test.ShouldBeNil)

	err := d.RegisterControlCallback(ctx, AbsoluteBrake, []EventType{AllEvents}, func(context.Context, Event) {})
	test.That(t, errors.Is(err, driver.ErrInvalidArgument), test.ShouldBeTrue)

	d.ReportAbs(AbsoluteHat0X, 72)
	d.ReportAbs(AbsoluteHat0Y, 117)
	d.ReportAbs(AbsoluteBrake, 0) // undeclared, dropped
	d.ReportAbs(AbsoluteRudder, 1)
	test.That(t, frames, test.ShouldHaveLength, 0)

	d.Sync(ctx)
	test.That(t, frames, test.ShouldHaveLength, 1)
	test.That(t, frames[0], test.ShouldHaveLength, 3)
	test.That(t, frames[0][AbsoluteHat0Y].Value, test.ShouldEqual, 117.0)
	test.That(t, xValues, test.ShouldResemble, []float64{72})
	test.That(t, all, test.ShouldEqual, 1)
	test.That(t, d.Frames(), test.ShouldEqual, int64(1))

	// An empty sync is not a frame.
	d.Sync(ctx)
	test.That(t, d.Frames(), test.ShouldEqual, int64(1))

	events, err := d.GetEvents(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, events[AbsoluteHat0X].Value, test.ShouldEqual, 72.0)
	test.That(t, events[AbsoluteHat0X].Event, test.ShouldEqual, PositionChangeAbs)

	test.That(t, d.RegisterControlCallback(ctx, AbsoluteHat0X, []EventType{PositionChangeAbs}, nil), test.ShouldBeNil)
	d.ReportAbs(AbsoluteHat0X, 1)
	d.Sync(ctx)
	test.That(t, xValues, test.ShouldResemble, []float64{72})
}

func TestOpenCloseRefcount(t *testing.T) {
	ctx := context.Background()
	d := newMagDevice(t)
	var opens, closes int
	d.SetOpenClose(
		func(ctx context.Context) error { opens++; return nil },
		func(ctx context.Context) error { closes++; return nil },
	)

	test.That(t, d.Open(ctx), test.ShouldBeNil)
	test.That(t, d.Open(ctx), test.ShouldBeNil)
	test.That(t, opens, test.ShouldEqual, 1)
	test.That(t, d.Close(ctx), test.ShouldBeNil)
	test.That(t, closes, test.ShouldEqual, 0)
	test.That(t, d.Close(ctx), test.ShouldBeNil)
	test.That(t, closes, test.ShouldEqual, 1)
	test.That(t, errors.Is(d.Close(ctx), driver.ErrInvalidArgument), test.ShouldBeTrue)

	openErr := errors.New("power on failed")
	d.SetOpenClose(func(ctx context.Context) error { return openErr }, nil)
	test.That(t, errors.Is(d.Open(ctx), openErr), test.ShouldBeTrue)
	test.That(t, d.Users(), test.ShouldEqual, 0)
}

func TestSubsystem(t *testing.T) {
	ctx := context.Background()
	s := NewSubsystem()

	empty := NewDevice("empty", nil)
	test.That(t, errors.Is(s.Register(empty), driver.ErrInvalidArgument), test.ShouldBeTrue)

	d := newMagDevice(t)
	test.That(t, s.Register(d), test.ShouldBeNil)
	test.That(t, errors.Is(s.Register(newMagDevice(t)), driver.ErrBusy), test.ShouldBeTrue)

	found, ok := s.Lookup("magnetometer")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, found, test.ShouldEqual, d)
	test.That(t, s.Names(), test.ShouldResemble, []string{"magnetometer"})

	var closed bool
	d.SetOpenClose(nil, func(ctx context.Context) error { closed = true; return nil })
	test.That(t, d.Open(ctx), test.ShouldBeNil)
	test.That(t, s.Unregister(ctx, d), test.ShouldBeNil)
	test.That(t, closed, test.ShouldBeTrue)
	_, ok = s.Lookup("magnetometer")
	test.That(t, ok, test.ShouldBeFalse)
}

func TestEventTimesUseDeviceClock(t *testing.T) {
	mockClock := clock.NewMock()
	d := NewDevice("magnetometer", mockClock)
	test.That(t, d.SetAbsParams(AbsoluteThrottle, AbsInfo{Min: -30, Max: 85, Fuzz: 4, Flat: 4}), test.ShouldBeNil)
	mockClock.Add(time.Minute)
	d.ReportAbs(AbsoluteThrottle, 20)
	d.Sync(context.Background())
	events, err := d.GetEvents(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, events[AbsoluteThrottle].Time.Equal(mockClock.Now()), test.ShouldBeTrue)
}

package led

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/sholes/drivers/driver"
)

func TestClassDevice(t *testing.T) {
	ctx := context.Background()
	var got []uint8
	cd := NewClassDevice("lcd-backlight", func(ctx context.Context, v uint8) { got = append(got, v) })

	cd.SetBrightness(ctx, 100)
	cd.SetBrightness(ctx, 0)
	test.That(t, got, test.ShouldResemble, []uint8{100, 0})
	test.That(t, cd.Brightness(), test.ShouldEqual, uint8(0))

	mode := "0"
	test.That(t, cd.CreateFile(Attribute{
		Name: "als",
		Show: func(ctx context.Context) (string, error) { return mode + "\n", nil },
		Store: func(ctx context.Context, buf string) (int, error) {
			mode = buf
			return len(buf), nil
		},
	}), test.ShouldBeNil)
	test.That(t, errors.Is(cd.CreateFile(Attribute{Name: "als"}), driver.ErrBusy), test.ShouldBeTrue)
	test.That(t, errors.Is(cd.CreateFile(Attribute{}), driver.ErrInvalidArgument), test.ShouldBeTrue)

	out, err := cd.Show(ctx, "als")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldEqual, "0\n")
	n, err := cd.Store(ctx, "als", "1")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 1)
	out, err = cd.Show(ctx, "als")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldEqual, "1\n")

	test.That(t, cd.CreateFile(Attribute{Name: "zone", Show: func(context.Context) (string, error) { return "2\n", nil }}), test.ShouldBeNil)
	_, err = cd.Store(ctx, "zone", "1")
	test.That(t, errors.Is(err, driver.ErrInvalidArgument), test.ShouldBeTrue)

	cd.RemoveFile("als")
	_, err = cd.Show(ctx, "als")
	test.That(t, errors.Is(err, driver.ErrNotPresent), test.ShouldBeTrue)
}

func TestClass(t *testing.T) {
	c := NewClass()
	cd := NewClassDevice("lcd-backlight", nil)
	test.That(t, c.Register(cd), test.ShouldBeNil)
	test.That(t, errors.Is(c.Register(NewClassDevice("lcd-backlight", nil)), driver.ErrBusy), test.ShouldBeTrue)

	found, ok := c.Lookup("lcd-backlight")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, found, test.ShouldEqual, cd)

	c.Unregister(cd)
	_, ok = c.Lookup("lcd-backlight")
	test.That(t, ok, test.ShouldBeFalse)
}

package miscdevice

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/sholes/drivers/driver"
)

func TestIOCEncoding(t *testing.T) {
	// _IOR(0xA1, 0x01, char[3]) from a 32-bit ARM kernel build.
	cmd := IOR(0xA1, 0x01, 3)
	test.That(t, cmd, test.ShouldEqual, uint32(0x8003A101))
	test.That(t, IOCSize(cmd), test.ShouldEqual, 3)
	test.That(t, IOCDir(cmd), test.ShouldEqual, uint32(iocRead))
	test.That(t, IOCType(cmd), test.ShouldEqual, uint32(0xA1))

	cmd = IOW(0xA1, 0x04, 4)
	test.That(t, cmd, test.ShouldEqual, uint32(0x4004A104))
	test.That(t, IOCDir(cmd), test.ShouldEqual, uint32(iocWrite))
	test.That(t, IOCSize(IO(0xA1, 9)), test.ShouldEqual, 0)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	var opened, released int
	var seen []uint32
	dev := &Device{
		Name:    "akm8973",
		Minor:   DynamicMinor,
		Open:    func(ctx context.Context) error { opened++; return nil },
		Release: func(ctx context.Context) error { released++; return nil },
		Ioctl: func(ctx context.Context, cmd uint32, arg []byte) error {
			seen = append(seen, cmd)
			arg[0] = 27
			return nil
		},
	}
	test.That(t, r.Register(dev), test.ShouldBeNil)
	test.That(t, dev.Minor, test.ShouldEqual, firstDynamicMinor)
	test.That(t, errors.Is(r.Register(&Device{Name: "akm8973", Minor: DynamicMinor}), driver.ErrBusy), test.ShouldBeTrue)
	test.That(t, errors.Is(r.Register(&Device{Name: "other", Minor: firstDynamicMinor}), driver.ErrBusy), test.ShouldBeTrue)
	test.That(t, errors.Is(r.Register(&Device{Minor: DynamicMinor}), driver.ErrInvalidArgument), test.ShouldBeTrue)

	second := &Device{Name: "second", Minor: DynamicMinor}
	test.That(t, r.Register(second), test.ShouldBeNil)
	test.That(t, second.Minor, test.ShouldEqual, firstDynamicMinor+1)

	f, err := r.Open(ctx, "akm8973")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, opened, test.ShouldEqual, 1)

	buf := make([]byte, 4)
	cmd := IOR(0xA1, 0x03, 4)
	test.That(t, f.Ioctl(ctx, cmd, buf), test.ShouldBeNil)
	test.That(t, buf[0], test.ShouldEqual, byte(27))
	test.That(t, seen, test.ShouldResemble, []uint32{cmd})

	err = f.Ioctl(ctx, cmd, buf[:2])
	test.That(t, errors.Is(err, driver.ErrInvalidArgument), test.ShouldBeTrue)

	test.That(t, f.Close(ctx), test.ShouldBeNil)
	test.That(t, f.Close(ctx), test.ShouldBeNil)
	test.That(t, released, test.ShouldEqual, 1)
	test.That(t, f.Ioctl(ctx, cmd, buf), test.ShouldNotBeNil)

	r.Deregister(dev)
	_, err = r.Open(ctx, "akm8973")
	test.That(t, errors.Is(err, driver.ErrNotPresent), test.ShouldBeTrue)
}

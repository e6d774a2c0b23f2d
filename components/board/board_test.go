package board

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestBasicDigitalInterrupt(t *testing.T) {
	i := NewBasicDigitalInterrupt(DigitalInterruptConfig{Name: "mag_int", Pin: "17"})
	test.That(t, i.Name(), test.ShouldEqual, "mag_int")

	c := make(chan Tick, 2)
	i.AddCallback(c)
	test.That(t, i.Tick(context.Background(), true, 100), test.ShouldBeNil)
	test.That(t, i.Tick(context.Background(), false, 200), test.ShouldBeNil)
	test.That(t, <-c, test.ShouldResemble, Tick{Name: "mag_int", High: true, TimestampNanosec: 100})
	test.That(t, <-c, test.ShouldResemble, Tick{Name: "mag_int", High: false, TimestampNanosec: 200})

	count, err := i.Value(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, count, test.ShouldEqual, int64(2))

	i.RemoveCallback(c)
	test.That(t, i.Tick(context.Background(), true, 300), test.ShouldBeNil)
	test.That(t, len(c), test.ShouldEqual, 0)
}

func TestTickRespectsContext(t *testing.T) {
	i := NewBasicDigitalInterrupt(DigitalInterruptConfig{Name: "als_int", Pin: "25"})
	i.AddCallback(make(chan Tick))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	test.That(t, i.Tick(ctx, true, 1), test.ShouldEqual, context.DeadlineExceeded)
}

func TestConfigValidate(t *testing.T) {
	i2c := I2CConfig{}
	err := i2c.Validate("path")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"name" is required`)

	i2c.Name = "i2c2"
	err = i2c.Validate("path")
	test.That(t, err.Error(), test.ShouldContainSubstring, `"bus" is required`)
	i2c.Bus = "2"
	test.That(t, i2c.Validate("path"), test.ShouldBeNil)
	i2c.FrequencyKHz = -1
	test.That(t, i2c.Validate("path"), test.ShouldNotBeNil)

	di := DigitalInterruptConfig{Name: "mag_int"}
	err = di.Validate("path")
	test.That(t, err.Error(), test.ShouldContainSubstring, `"pin" is required`)
	di.Pin = "17"
	test.That(t, di.Validate("path"), test.ShouldBeNil)
	di.Chip = "gpiochip0"
	test.That(t, di.Validate("path"), test.ShouldNotBeNil)

	pin := GPIOPinConfig{Name: "mag_power"}
	test.That(t, pin.Validate("path"), test.ShouldNotBeNil)
	pin.Pin = "GPIO_175"
	test.That(t, pin.Validate("path"), test.ShouldBeNil)
}

package registry

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/sholes/drivers/driver"
	"github.com/sholes/drivers/logging"
)

type testConfig struct {
	Bus     string `json:"i2c_bus"`
	Addr    int    `json:"i2c_addr"`
	Retries int    `json:"i2c_retries,omitempty"`
	Swap    bool   `json:"xy_swap,omitempty"`
}

func (cfg *testConfig) Validate(path string) error {
	if cfg.Bus == "" {
		return errors.Errorf("%s: i2c_bus is required", path)
	}
	return nil
}

func registerTestModel(t *testing.T, model Model) {
	t.Helper()
	Register(model, Registration{
		Constructor: func(ctx context.Context, deps Dependencies, conf DeviceConfig, logger logging.Logger) (driver.Driver, error) {
			return nil, nil
		},
		AttributeMapConverter: func(attributes AttributeMap) (ConfigValidator, error) {
			return TransformAttributeMap[*testConfig](attributes)
		},
	})
	t.Cleanup(func() { Deregister(model) })
}

func TestRegister(t *testing.T) {
	registerTestModel(t, "test-model")

	_, ok := Lookup("test-model")
	test.That(t, ok, test.ShouldBeTrue)
	_, ok = Lookup("other-model")
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, RegisteredModels(), test.ShouldContain, Model("test-model"))

	test.That(t, func() { registerTestModel(t, "test-model") }, test.ShouldPanic)
	test.That(t, func() { Register("no-constructor", Registration{}) }, test.ShouldPanic)
}

func TestTransformAttributeMap(t *testing.T) {
	attrs := AttributeMap{
		"i2c_bus":     "i2c2",
		"i2c_addr":    float64(28),
		"i2c_retries": "3",
		"xy_swap":     true,
	}
	test.That(t, attrs.Has("i2c_bus"), test.ShouldBeTrue)
	test.That(t, attrs.Has("pin"), test.ShouldBeFalse)

	cfg, err := TransformAttributeMap[*testConfig](attrs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg, test.ShouldResemble, &testConfig{Bus: "i2c2", Addr: 28, Retries: 3, Swap: true})

	byValue, err := TransformAttributeMap[testConfig](attrs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, byValue.Addr, test.ShouldEqual, 28)

	_, err = TransformAttributeMap[*testConfig](AttributeMap{"i2c_bus": "i2c2", "i2c_speed": 400})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "i2c_speed")
}

func TestDeviceConfigValidate(t *testing.T) {
	registerTestModel(t, "test-model")

	conf := DeviceConfig{Model: "test-model"}
	err := conf.Validate("devices.0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "name")

	conf = DeviceConfig{Name: "mag"}
	test.That(t, conf.Validate("devices.0"), test.ShouldNotBeNil)

	conf = DeviceConfig{Name: "mag", Model: "unknown"}
	err = conf.Validate("devices.0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown model")

	conf = DeviceConfig{Name: "mag", Model: "test-model", Attributes: AttributeMap{"i2c_addr": 28}}
	err = conf.Validate("devices.0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "devices.0.attributes")

	conf = DeviceConfig{Name: "mag", Model: "test-model", Attributes: AttributeMap{"i2c_bus": "i2c2"}}
	test.That(t, conf.Validate("devices.0"), test.ShouldBeNil)
	native, err := NativeConfig[*testConfig](conf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, native.Bus, test.ShouldEqual, "i2c2")

	_, err = NativeConfig[*testConfig](DeviceConfig{Name: "mag"})
	test.That(t, err, test.ShouldNotBeNil)
}

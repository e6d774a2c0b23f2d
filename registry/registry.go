// Package registry maps device models to their constructors and to the typed configs their
// attributes decode into.
package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/sholes/drivers/components/board"
	"github.com/sholes/drivers/components/input"
	"github.com/sholes/drivers/components/led"
	"github.com/sholes/drivers/components/miscdevice"
	"github.com/sholes/drivers/driver"
	"github.com/sholes/drivers/logging"
	"github.com/sholes/drivers/utils"
)

// A Model names a device driver, e.g: "lm3530".
type Model string

// An AttributeMap is the raw, untyped attributes of a device config.
type AttributeMap map[string]interface{}

// Has returns whether the given attribute exists.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// A ConfigValidator is a typed device config.
type ConfigValidator interface {
	Validate(path string) error
}

// An I2CTargeter is a config for a chip on an I2C bus.
type I2CTargeter interface {
	I2CTarget() (bus string, addr byte)
}

// Dependencies are the board and host subsystems a driver binds to.
type Dependencies struct {
	Board  board.Board
	Clock  clock.Clock
	LEDs   *led.Class
	Inputs *input.Subsystem
	Misc   *miscdevice.Registry
}

type (
	// A Create creates a driver from its dependencies and a given config.
	Create func(ctx context.Context, deps Dependencies, conf DeviceConfig, logger logging.Logger) (driver.Driver, error)

	// An AttributeMapConverter converts an attribute map into a native config type for a model.
	AttributeMapConverter func(attributes AttributeMap) (ConfigValidator, error)
)

// A Registration stores construction info for a model. A constructor is mandatory.
type Registration struct {
	Constructor Create

	// AttributeMapConverter is used to convert raw attributes to the model's native config.
	AttributeMapConverter AttributeMapConverter
}

var (
	registryMu sync.RWMutex
	registry   = map[Model]Registration{}
)

// Register registers a model and its construction info. It panics on a duplicate model or a
// missing constructor.
func Register(model Model, reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := registry[model]; old {
		panic(errors.Errorf("trying to register two models with the same name %q", model))
	}
	if reg.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for model %q", model))
	}
	registry[model] = reg
}

// Deregister removes a previously registered model.
func Deregister(model Model) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, model)
}

// Lookup looks up a registration by the given model.
func Lookup(model Model) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[model]
	return reg, ok
}

// RegisteredModels returns every registered model, sorted.
func RegisteredModels() []Model {
	registryMu.RLock()
	defer registryMu.RUnlock()
	models := make([]Model, 0, len(registry))
	for m := range registry {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i] < models[j] })
	return models
}

// DeviceConfig describes one device the daemon probes.
type DeviceConfig struct {
	Name       string       `json:"name"`
	Model      Model        `json:"model"`
	Attributes AttributeMap `json:"attributes,omitempty"`

	ConvertedAttributes ConfigValidator `json:"-"`
}

// Validate ensures all parts of the config are valid. The attributes are converted with the model's
// converter and the result is kept in ConvertedAttributes.
func (conf *DeviceConfig) Validate(path string) error {
	if conf.Name == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if conf.Model == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "model")
	}
	reg, ok := Lookup(conf.Model)
	if !ok {
		return goutils.NewConfigValidationError(path, errors.Errorf("unknown model %q", conf.Model))
	}
	if reg.AttributeMapConverter == nil {
		return nil
	}
	converted, err := reg.AttributeMapConverter(conf.Attributes)
	if err != nil {
		return goutils.NewConfigValidationError(path, errors.Wrap(err, "error converting attributes"))
	}
	if err := converted.Validate(fmt.Sprintf("%s.%s", path, "attributes")); err != nil {
		return err
	}
	conf.ConvertedAttributes = converted
	return nil
}

// NativeConfig returns the typed config of a validated device config.
func NativeConfig[T ConfigValidator](conf DeviceConfig) (T, error) {
	native, ok := conf.ConvertedAttributes.(T)
	if !ok {
		return native, utils.NewUnexpectedTypeError(native, conf.ConvertedAttributes)
	}
	return native, nil
}

// TransformAttributeMap uses an attribute map to transform attributes to the prescribed format.
// Numbers given as strings are accepted.
func TransformAttributeMap[T any](attributes AttributeMap) (T, error) {
	var out T

	var forResult interface{}

	toT := reflect.TypeOf(out)
	if toT.Kind() == reflect.Ptr {
		// needs to be allocated then
		var ok bool
		out, ok = reflect.New(toT.Elem()).Interface().(T)
		if !ok {
			return out, errors.Errorf("failed to allocate default config type %T", out)
		}
		forResult = out
	} else {
		forResult = &out
	}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           forResult,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return out, err
	}
	if len(md.Unused) != 0 {
		sort.Strings(md.Unused)
		return out, errors.Errorf("unknown attributes %v", md.Unused)
	}
	return out, nil
}

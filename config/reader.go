package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"

	"github.com/sholes/drivers/logging"
)

// Read reads a config from the given file. `${VAR}` references are replaced from the environment
// before the JSON is decoded.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	cfg := Config{ConfigFilePath: originalPath}
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode Config from json")
	}
	if err := cfg.Ensure(logger); err != nil {
		return nil, errors.Wrapf(err, "failed to process Config")
	}
	return &cfg, nil
}

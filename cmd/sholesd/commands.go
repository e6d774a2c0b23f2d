package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// readingsCommand asks for the device's Readings instead of running a DoCommand.
const readingsCommand = "readings"

// parseCommand turns `key=value` arguments into a DoCommand map. A bare key is true and a comma
// separated value is a list, e.g: "set_cali=0x80,0x80,0x7f". Values stay strings; the drivers
// convert them.
func parseCommand(args []string) (map[string]interface{}, error) {
	if len(args) == 0 {
		return nil, errors.New("no command given")
	}
	cmd := map[string]interface{}{}
	for _, arg := range args {
		key, value, hasValue := strings.Cut(arg, "=")
		if key == "" {
			return nil, errors.Errorf("malformed command argument %q", arg)
		}
		switch {
		case !hasValue:
			cmd[key] = true
		case strings.Contains(value, ","):
			var list []interface{}
			for _, v := range strings.Split(value, ",") {
				list = append(list, v)
			}
			cmd[key] = list
		default:
			cmd[key] = value
		}
	}
	return cmd, nil
}

// Do runs one command line, "<device> <key>[=<value>]...", against a probed device.
func (d *daemon) Do(ctx context.Context, device string, args []string) (map[string]interface{}, error) {
	drv, ok := d.Driver(device)
	if !ok {
		return nil, errors.Errorf("no device named %q", device)
	}
	if len(args) == 1 && args[0] == readingsCommand {
		return drv.Readings(ctx, nil)
	}
	cmd, err := parseCommand(args)
	if err != nil {
		return nil, err
	}
	resp, err := drv.DoCommand(ctx, cmd)
	if err != nil {
		return nil, err
	}
	d.logger.Debugw("command done", "device", device, "command", cmd, "response", resp)
	return resp, nil
}

// serveCommands reads one command per line from `r` and writes each response as a json line to
// `w`, or an "error:" line when the command fails. It returns at the end of input or when `ctx`
// is done.
func (d *daemon) serveCommands(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		resp, cmdErr := d.Do(ctx, fields[0], fields[1:])
		if err := writeResponse(w, resp, cmdErr); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func writeResponse(w io.Writer, resp map[string]interface{}, cmdErr error) error {
	if cmdErr != nil {
		_, err := fmt.Fprintf(w, "error: %v\n", cmdErr)
		return err
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

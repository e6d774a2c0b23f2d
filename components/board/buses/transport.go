package buses

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/sholes/drivers/driver"
	"github.com/sholes/drivers/logging"
)

const (
	// DefaultRetries is the attempt bound used when a config leaves it unset.
	DefaultRetries = 5
	// DefaultRetryDelay is the pause between two failed attempts used when a config leaves it unset.
	DefaultRetryDelay = 5 * time.Millisecond

	// failureLogInterval bounds how often a transport reports giving up. A device that stopped
	// answering would otherwise log once per poll.
	failureLogInterval = 10 * time.Second
)

// Transport performs register reads and writes on one device address with a bounded number of
// attempts. A Transport is not reentrant: the owning driver serializes calls with its own lock.
type Transport struct {
	handle     I2CHandle
	retries    int
	retryDelay time.Duration
	clock      clock.Clock
	logger     logging.Logger

	failureLogs *rate.Limiter
	suppressed  int
}

// NewTransport returns a transport over `handle`. `retries` below one means a single attempt.
func NewTransport(handle I2CHandle, retries int, retryDelay time.Duration, clk clock.Clock, logger logging.Logger) *Transport {
	if retries < 1 {
		retries = 1
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Transport{
		handle:      handle,
		retries:     retries,
		retryDelay:  retryDelay,
		clock:       clk,
		logger:      logger,
		failureLogs: rate.NewLimiter(rate.Every(failureLogInterval), 1),
	}
}

// Retries returns the attempt bound.
func (t *Transport) Retries() int {
	return t.retries
}

// Read returns `n` bytes starting at `register`. Each attempt is one combined transfer: the
// register address write followed by the read.
func (t *Transport) Read(ctx context.Context, register byte, n int) ([]byte, error) {
	if n <= 0 || n > 0xFF {
		return nil, driver.NewInvalidArgumentError("read of %d bytes at %#02x", n, register)
	}
	var out []byte
	err := t.retry(ctx, "read", register, func() error {
		buf, err := t.handle.ReadBlockData(ctx, register, uint8(n))
		if err != nil {
			return err
		}
		if len(buf) != n {
			return errors.Errorf("short read: wanted %d bytes, got %d", n, len(buf))
		}
		out = buf
		return nil
	})
	return out, err
}

// ReadInto fills `buf` starting at `register`.
func (t *Transport) ReadInto(ctx context.Context, register byte, buf []byte) error {
	if len(buf) == 0 {
		return driver.NewInvalidArgumentError("read into empty buffer at %#02x", register)
	}
	data, err := t.Read(ctx, register, len(buf))
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}

// Write sends `register` followed by `data` as a single message.
func (t *Transport) Write(ctx context.Context, register byte, data ...byte) error {
	if len(data) == 0 {
		return driver.NewInvalidArgumentError("write of 0 bytes at %#02x", register)
	}
	return t.retry(ctx, "write", register, func() error {
		return t.handle.WriteBlockData(ctx, register, data)
	})
}

// retry runs `attempt` until it succeeds or the attempt bound is reached. It pauses `retryDelay`
// between attempts, never after the last one, and gives up early when `ctx` is done.
func (t *Transport) retry(ctx context.Context, op string, register byte, attempt func() error) error {
	var lastErr error
	for i := 1; i <= t.retries; i++ {
		if err := ctx.Err(); err != nil {
			return driver.NewTransportError(err, "%s at %#02x canceled", op, register)
		}
		lastErr = attempt()
		if lastErr == nil {
			return nil
		}
		t.logger.Debugw("i2c transfer failed", "op", op, "register", register, "attempt", i, "error", lastErr)
		if i == t.retries {
			break
		}
		if err := t.sleep(ctx); err != nil {
			return driver.NewTransportError(err, "%s at %#02x canceled", op, register)
		}
	}
	if t.failureLogs.AllowN(t.clock.Now(), 1) {
		t.logger.Errorw("i2c transfer failed after retries",
			"op", op, "register", register, "attempts", t.retries, "suppressed", t.suppressed, "error", lastErr)
		t.suppressed = 0
	} else {
		t.suppressed++
	}
	return driver.NewTransportError(lastErr, "%s at %#02x failed after %d attempts", op, register, t.retries)
}

func (t *Transport) sleep(ctx context.Context) error {
	if t.retryDelay <= 0 {
		return nil
	}
	timer := t.clock.Timer(t.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

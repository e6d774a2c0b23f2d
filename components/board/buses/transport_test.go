package buses_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/sholes/drivers/components/board/buses"
	"github.com/sholes/drivers/driver"
	"github.com/sholes/drivers/logging"
	"github.com/sholes/drivers/testutils/inject"
)

var errNack = errors.New("nack")

func flakyHandle(failures int, attempts *int) *inject.I2CHandle {
	return &inject.I2CHandle{
		ReadBlockDataFunc: func(ctx context.Context, register byte, numBytes uint8) ([]byte, error) {
			*attempts++
			if *attempts <= failures {
				return nil, errNack
			}
			out := make([]byte, numBytes)
			for i := range out {
				out[i] = register + byte(i)
			}
			return out, nil
		},
		WriteBlockDataFunc: func(ctx context.Context, register byte, data []byte) error {
			*attempts++
			if *attempts <= failures {
				return errNack
			}
			return nil
		},
	}
}

func TestReadRetriesThenSucceeds(t *testing.T) {
	logger := logging.NewTestLogger(t)
	retryDelay := 20 * time.Millisecond
	for k := 0; k < 5; k++ {
		attempts := 0
		tr := buses.NewTransport(flakyHandle(k, &attempts), 5, retryDelay, clock.New(), logger)

		start := time.Now()
		data, err := tr.Read(context.Background(), 0xC1, 4)
		elapsed := time.Since(start)

		test.That(t, err, test.ShouldBeNil)
		test.That(t, data, test.ShouldResemble, []byte{0xC1, 0xC2, 0xC3, 0xC4})
		test.That(t, attempts, test.ShouldEqual, k+1)
		test.That(t, elapsed, test.ShouldBeGreaterThanOrEqualTo, time.Duration(k)*retryDelay)
	}
}

func TestReadTwoFailuresElapsedBound(t *testing.T) {
	retryDelay := 10 * time.Millisecond
	attempts := 0
	tr := buses.NewTransport(flakyHandle(2, &attempts), 5, retryDelay, clock.New(), logging.NewTestLogger(t))

	start := time.Now()
	data, err := tr.Read(context.Background(), 0x40, 1)
	elapsed := time.Since(start)

	test.That(t, err, test.ShouldBeNil)
	test.That(t, data, test.ShouldResemble, []byte{0x40})
	test.That(t, attempts, test.ShouldEqual, 3)
	test.That(t, elapsed, test.ShouldBeGreaterThanOrEqualTo, 2*retryDelay)
	test.That(t, elapsed, test.ShouldBeLessThan, 2*retryDelay+500*time.Millisecond)
}

func TestRetriesExhausted(t *testing.T) {
	attempts := 0
	tr := buses.NewTransport(flakyHandle(100, &attempts), 3, 0, clock.New(), logging.NewTestLogger(t))

	_, err := tr.Read(context.Background(), 0xC1, 4)
	test.That(t, errors.Is(err, driver.ErrTransport), test.ShouldBeTrue)
	test.That(t, errors.Is(err, errNack), test.ShouldBeTrue)
	test.That(t, attempts, test.ShouldEqual, 3)

	attempts = 0
	err = tr.Write(context.Background(), 0xE0, 0x00)
	test.That(t, errors.Is(err, driver.ErrTransport), test.ShouldBeTrue)
	test.That(t, attempts, test.ShouldEqual, 3)
}

func TestZeroRetriesMeansOneAttempt(t *testing.T) {
	attempts := 0
	tr := buses.NewTransport(flakyHandle(1, &attempts), 0, 0, nil, logging.NewTestLogger(t))
	test.That(t, tr.Retries(), test.ShouldEqual, 1)
	_, err := tr.Read(context.Background(), 0xC1, 1)
	test.That(t, errors.Is(err, driver.ErrTransport), test.ShouldBeTrue)
	test.That(t, attempts, test.ShouldEqual, 1)
}

func TestInvalidArguments(t *testing.T) {
	attempts := 0
	tr := buses.NewTransport(flakyHandle(0, &attempts), 5, 0, clock.New(), logging.NewTestLogger(t))
	ctx := context.Background()

	_, err := tr.Read(ctx, 0xC1, 0)
	test.That(t, errors.Is(err, driver.ErrInvalidArgument), test.ShouldBeTrue)
	test.That(t, errors.Is(tr.ReadInto(ctx, 0xC1, nil), driver.ErrInvalidArgument), test.ShouldBeTrue)
	test.That(t, errors.Is(tr.Write(ctx, 0xE1), driver.ErrInvalidArgument), test.ShouldBeTrue)
	test.That(t, attempts, test.ShouldEqual, 0)

	buf := make([]byte, 3)
	test.That(t, tr.ReadInto(ctx, 0x69, buf), test.ShouldBeNil)
	test.That(t, buf, test.ShouldResemble, []byte{0x69, 0x6A, 0x6B})
}

func TestWriteFrame(t *testing.T) {
	var frames [][]byte
	handle := &inject.I2CHandle{
		WriteBlockDataFunc: func(ctx context.Context, register byte, data []byte) error {
			frames = append(frames, append([]byte{register}, data...))
			return nil
		},
	}
	tr := buses.NewTransport(handle, 5, 0, clock.New(), logging.NewTestLogger(t))
	test.That(t, tr.Write(context.Background(), 0xE1, 0x7E, 0x80, 0x80), test.ShouldBeNil)
	test.That(t, frames, test.ShouldResemble, [][]byte{{0xE1, 0x7E, 0x80, 0x80}})
}

func TestRetrySleepIsCancelable(t *testing.T) {
	mockClock := clock.NewMock()
	attempts := 0
	tr := buses.NewTransport(flakyHandle(100, &attempts), 5, time.Hour, mockClock, logging.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := tr.Read(ctx, 0xC1, 4)
		errCh <- err
	}()

	// The mock clock never advances, so the read can only return through cancellation.
	time.Sleep(20 * time.Millisecond)
	cancel()
	err := <-errCh
	test.That(t, errors.Is(err, driver.ErrTransport), test.ShouldBeTrue)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	test.That(t, attempts, test.ShouldEqual, 1)
}

func TestFailureLogIsRateLimited(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	clk := clock.NewMock()
	attempts := 0
	tr := buses.NewTransport(flakyHandle(100, &attempts), 2, 0, clk, logger)

	fail := func() {
		t.Helper()
		_, err := tr.Read(context.Background(), 0xC1, 1)
		test.That(t, errors.Is(err, driver.ErrTransport), test.ShouldBeTrue)
	}
	for i := 0; i < 3; i++ {
		fail()
	}
	test.That(t, attempts, test.ShouldEqual, 6)
	test.That(t, logs.FilterMessage("i2c transfer failed").Len(), test.ShouldEqual, 6)
	test.That(t, logs.FilterMessage("i2c transfer failed after retries").Len(), test.ShouldEqual, 1)

	// the limit follows the transport's clock
	clk.Add(9 * time.Second)
	fail()
	test.That(t, logs.FilterMessage("i2c transfer failed after retries").Len(), test.ShouldEqual, 1)
	clk.Add(time.Second)
	fail()
	reports := logs.FilterMessage("i2c transfer failed after retries").All()
	test.That(t, reports, test.ShouldHaveLength, 2)
	test.That(t, reports[0].ContextMap()["suppressed"], test.ShouldEqual, int64(0))
	test.That(t, reports[1].ContextMap()["suppressed"], test.ShouldEqual, int64(3))
}

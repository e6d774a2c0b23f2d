package fake

import (
	"sync"
)

// Transfer is one logged register access.
type Transfer struct {
	Write    bool
	Register byte
	Data     []byte
}

// Device is a 256-byte register file. Block accesses auto-increment the register address. Writes
// land in the register file and the write log; failures can be injected per direction.
type Device struct {
	mu         sync.Mutex
	regs       [256]byte
	pointer    byte
	log        []Transfer
	failReads  int
	failWrites int
	failAll    bool

	// OnWrite, if set, runs after every successful write, outside the device lock. E.g: raise a
	// data-ready interrupt when a measurement is requested.
	OnWrite func(register byte, data []byte)
	// OnRead, if set, may replace the data returned by a read.
	OnRead func(register byte, data []byte) []byte
}

// Set stores `data` starting at `register` without logging a write.
func (d *Device) Set(register byte, data ...byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, b := range data {
		d.regs[register+byte(i)] = b
	}
}

// Get returns the register value.
func (d *Device) Get(register byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[register]
}

// Transfers returns every logged access in bus order.
func (d *Device) Transfers() []Transfer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Transfer(nil), d.log...)
}

func (d *Device) filter(write bool) []Transfer {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Transfer
	for _, t := range d.log {
		if t.Write == write {
			out = append(out, t)
		}
	}
	return out
}

// Writes returns the write log.
func (d *Device) Writes() []Transfer {
	return d.filter(true)
}

// WritesTo returns the payloads of logged writes starting at `register`.
func (d *Device) WritesTo(register byte) [][]byte {
	var out [][]byte
	for _, w := range d.filter(true) {
		if w.Register == register {
			out = append(out, w.Data)
		}
	}
	return out
}

// Reads returns the read log.
func (d *Device) Reads() []Transfer {
	return d.filter(false)
}

// ClearLog forgets every logged transfer.
func (d *Device) ClearLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = nil
}

// FailNextReads makes the next `n` reads fail.
func (d *Device) FailNextReads(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failReads = n
}

// FailNextWrites makes the next `n` writes fail.
func (d *Device) FailNextWrites(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrites = n
}

// SetFailAll makes every transfer fail until cleared.
func (d *Device) SetFailAll(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = fail
}

func (d *Device) read(register byte, n int) ([]byte, error) {
	d.mu.Lock()
	if d.failAll || d.failReads > 0 {
		if d.failReads > 0 {
			d.failReads--
		}
		d.mu.Unlock()
		return nil, ErrNack
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = d.regs[register+byte(i)]
	}
	d.pointer = register + byte(n)
	hook := d.OnRead
	d.log = append(d.log, Transfer{Register: register, Data: append([]byte(nil), out...)})
	d.mu.Unlock()

	if hook != nil {
		out = hook(register, out)
	}
	return out, nil
}

func (d *Device) readAtPointer(n int) ([]byte, error) {
	d.mu.Lock()
	register := d.pointer
	d.mu.Unlock()
	return d.read(register, n)
}

func (d *Device) write(register byte, data []byte) error {
	d.mu.Lock()
	if d.failAll || d.failWrites > 0 {
		if d.failWrites > 0 {
			d.failWrites--
		}
		d.mu.Unlock()
		return ErrNack
	}
	payload := append([]byte(nil), data...)
	for i, b := range payload {
		d.regs[register+byte(i)] = b
	}
	d.pointer = register
	d.log = append(d.log, Transfer{Write: true, Register: register, Data: payload})
	hook := d.OnWrite
	d.mu.Unlock()

	if hook != nil {
		hook(register, payload)
	}
	return nil
}

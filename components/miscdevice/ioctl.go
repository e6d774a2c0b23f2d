package miscdevice

// From the linux /usr/include/asm-generic/ioctl.h file.
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14
	iocDirBits  = 2

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

// IOC encodes an ioctl request number.
func IOC(dir, typ, nr, size uint32) uint32 {
	return dir<<iocDirShift |
		typ<<iocTypeShift |
		nr<<iocNRShift |
		size<<iocSizeShift
}

// IO encodes a request without a payload.
func IO(typ, nr uint32) uint32 {
	return IOC(iocNone, typ, nr, 0)
}

// IOR encodes a request whose payload is copied back to the caller.
func IOR(typ, nr, size uint32) uint32 {
	return IOC(iocRead, typ, nr, size)
}

// IOW encodes a request whose payload is supplied by the caller.
func IOW(typ, nr, size uint32) uint32 {
	return IOC(iocWrite, typ, nr, size)
}

// IOCSize returns the payload size encoded in a request number.
func IOCSize(cmd uint32) int {
	return int((cmd >> iocSizeShift) & (1<<iocSizeBits - 1))
}

// IOCDir returns the direction bits encoded in a request number.
func IOCDir(cmd uint32) uint32 {
	return (cmd >> iocDirShift) & (1<<iocDirBits - 1)
}

// IOCType returns the type byte encoded in a request number.
func IOCType(cmd uint32) uint32 {
	return (cmd >> iocTypeShift) & (1<<iocTypeBits - 1)
}

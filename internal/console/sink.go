package console

import "github.com/Pascu-Victor/wos-sub002/internal/abi"

// DeviceSink implements internal/syscall.Sink, routing a sys_log
// write to the console grid or the serial backlog by device, per
// §4.G's sys_log cluster.
type DeviceSink struct {
	VGA    *TextConsole
	Serial *SerialLog
}

// Write dispatches data to the target device. An unconfigured target
// (nil field) silently drops the write rather than erroring, since
// internal/syscall has already rejected unknown device codes before
// reaching here.
func (d *DeviceSink) Write(device abi.SysLogDevice, data []byte) error {
	switch device {
	case abi.SysLogDeviceVGA:
		if d.VGA != nil {
			d.VGA.WriteString(string(data))
		}
	case abi.SysLogDeviceSerial:
		if d.Serial != nil {
			d.Serial.Append(data)
		}
	}
	return nil
}

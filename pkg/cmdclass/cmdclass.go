// Package cmdclass holds the command class identifiers the delivery core
// inspects on the wire.
package cmdclass

// Command classes
const (
	NoOperation       uint8 = 0x00
	NoOperationLR     uint8 = 0x04
	Basic             uint8 = 0x20
	SwitchBinary      uint8 = 0x25
	SwitchMultilevel  uint8 = 0x26
	SensorBinary      uint8 = 0x30
	SensorMultilevel  uint8 = 0x31
	Meter             uint8 = 0x32
	TransportService  uint8 = 0x55
	CRC16Encap        uint8 = 0x56
	MultiChannel      uint8 = 0x60
	DoorLock          uint8 = 0x62
	Configuration     uint8 = 0x70
	Notification      uint8 = 0x71
	ManufacturerSpec  uint8 = 0x72
	FirmwareUpdateMD  uint8 = 0x7A
	Battery           uint8 = 0x80
	WakeUp            uint8 = 0x84
	Association       uint8 = 0x85
	Version           uint8 = 0x86
	Security          uint8 = 0x98
	Security2         uint8 = 0x9F
)

// Security (S0) commands
const (
	SecurityCommandsSupportedGet    uint8 = 0x02
	SecurityCommandsSupportedReport uint8 = 0x03
	SecuritySchemeGet               uint8 = 0x04
	SecuritySchemeReport            uint8 = 0x05
	SecurityNetworkKeySet           uint8 = 0x06
	SecurityNetworkKeyVerify        uint8 = 0x07
	SecurityNonceGet                uint8 = 0x40
	SecurityNonceReport             uint8 = 0x80
	SecurityMessageEncap            uint8 = 0x81
	SecurityMessageEncapNonceGet    uint8 = 0xC1
)

// Security message encapsulation flag byte
const (
	SecurityFlagSequenced   uint8 = 0x10
	SecurityFlagSecondFrame uint8 = 0x20
	SecuritySequenceMask    uint8 = 0x0F
)

// Other encapsulation commands
const (
	MultiChannelCmdEncap           uint8 = 0x0D
	CRC16CmdEncap                  uint8 = 0x01
	FirmwareUpdateActivationSet    uint8 = 0x08
	FirmwareUpdateActivationReport uint8 = 0x09
)

// MultiChannelHeaderSize is the size of the multi channel encapsulation header
const MultiChannelHeaderSize = 4

// getCommands lists the "get"-class commands per command class. A successful
// get is answered by a report, which the send-data layer leaves room for.
var getCommands = map[uint8][]uint8{
	Basic:            {0x02},
	SwitchBinary:     {0x02},
	SwitchMultilevel: {0x02, 0x06},
	SensorBinary:     {0x02, 0x01},
	SensorMultilevel: {0x04, 0x01},
	Meter:            {0x01, 0x03},
	DoorLock:         {0x02, 0x05},
	Configuration:    {0x05, 0x08},
	Notification:     {0x04, 0x07},
	ManufacturerSpec: {0x04, 0x06},
	FirmwareUpdateMD: {0x01},
	Battery:          {0x02},
	WakeUp:           {0x05, 0x09},
	Association:      {0x02, 0x05},
	Version:          {0x11, 0x13, 0x15},
	Security: {
		SecurityCommandsSupportedGet,
		SecuritySchemeGet,
		SecurityNonceGet,
	},
	MultiChannel: {0x07, 0x09, 0x0B},
}

// IsGet returns true if the command solicits a report from the destination
func IsGet(class, cmd uint8) bool {
	for _, c := range getCommands[class] {
		if c == cmd {
			return true
		}
	}
	return false
}

// IsEncapsulated returns true if the payload already carries an
// encapsulation that must not be wrapped in CRC16
func IsEncapsulated(class uint8) bool {
	switch class {
	case TransportService, Security, Security2, CRC16Encap:
		return true
	}
	return false
}

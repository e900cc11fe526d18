// messages.go

// Copyright (C) 2018  Steve Merrony

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.

// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package tello

import (
	"encoding/binary"
	"math"
	"time"
)

const msgHdr = 0xcc // 204

// packet is our internal representation of the messages passed to/from the Tello
type packet struct {
	header        byte
	size13        uint16
	crc8          byte
	fromDrone     bool // the following 4 fields are encoded in a single byte in the raw packet
	toDrone       bool
	packetType    uint8 // 3-bit
	packetSubtype uint8 // 3-bit
	messageID     uint16
	sequence      uint16
	payload       []byte
	crc16         uint16
}

const minPktSize = 11 // smallest possible raw packet

// tello packet types, 3 and 7 currently unknown
const (
	ptGet   = 1
	ptData1 = 2
	ptData2 = 4
	ptSet   = 5
)

// Tello message IDs used here
const (
	msgWifiStrength   = 0x001a // 26
	msgDoTakePic      = 0x0030 // 48
	msgSwitchPicVideo = 0x0031 // 49
	msgLightStrength  = 0x0035 // 53
	msgSetDateTime    = 0x0046 // 70
	msgSetStick       = 0x0050 // 80
	msgDoTakeoff      = 0x0054 // 84
	msgDoLand         = 0x0055 // 85
	msgFlightStatus   = 0x0056 // 86
	msgFileSize       = 0x0062 // 98
	msgFileData       = 0x0063 // 99
	msgFileDone       = 0x0064 // 100
	msgLogHeader      = 0x1050 // 4176
	msgLogData        = 0x1051 // 4177
)

// FlightData holds our current knowledge of the drone's state.
// This data is not all sent at once from the drone, different fields may be updated
// at varying rates.
type FlightData struct {
	BatteryLow        bool
	BatteryCritical   bool
	BatteryMilliVolts int16
	BatteryPercentage int8
	DroneHover        bool
	EastSpeed         int16
	Flying            bool
	FlyMode           uint8
	FlyTime           int16
	Height            int16 // decimetres
	IMU               IMUData
	LightStrength     uint8
	MVO               MVOData
	NorthSpeed        int16
	OnGround          bool
	VerticalSpeed     int16
	WifiInterference  uint8
	WifiStrength      uint8
}

// MVOData comes from the flight log messages
type MVOData struct {
	PositionX, PositionY, PositionZ float32 // metres from the take-off point
	VelocityX, VelocityY, VelocityZ int16
}

// IMUData comes from the flight log messages
type IMUData struct {
	QuaternionW,
	QuaternionX, QuaternionY, QuaternionZ float32
	Temperature int16
	Yaw         int16 // derived from Quat fields, -180 > degrees > +180
}

// StickMessage holds the signed 16-bit values of a joystick update.
// Each value can range from -32768 to 32767
type StickMessage struct {
	Rx, Ry, Lx, Ly int16
}

// bufferToPacket takes a raw buffer of bytes and populates our packet struct
func bufferToPacket(buff []byte) (pkt packet, ok bool) {
	if len(buff) < minPktSize {
		return pkt, false
	}
	pkt.header = buff[0]
	pkt.size13 = (uint16(buff[1]) + uint16(buff[2])<<8) >> 3
	if int(pkt.size13) < minPktSize || int(pkt.size13) > len(buff) {
		return pkt, false
	}
	pkt.crc8 = buff[3]
	pkt.fromDrone = (buff[4] & 0x80) != 0
	pkt.toDrone = (buff[4] & 0x40) != 0
	pkt.packetType = (buff[4] >> 3) & 0x07
	pkt.packetSubtype = buff[4] & 0x07
	pkt.messageID = binary.LittleEndian.Uint16(buff[5:7])
	pkt.sequence = binary.LittleEndian.Uint16(buff[7:9])
	payloadSize := int(pkt.size13) - minPktSize
	if payloadSize > 0 {
		pkt.payload = make([]byte, payloadSize)
		copy(pkt.payload, buff[9:9+payloadSize])
	}
	pkt.crc16 = binary.LittleEndian.Uint16(buff[pkt.size13-2 : pkt.size13])
	return pkt, true
}

// newPacket returns a packet with some fields populated
func newPacket(pt uint8, cmd uint16, seq uint16, payloadSize int) (pkt packet) {
	pkt.header = msgHdr
	pkt.toDrone = true
	pkt.packetType = pt
	pkt.messageID = cmd
	pkt.sequence = seq
	if payloadSize > 0 {
		pkt.payload = make([]byte, payloadSize)
	}
	return pkt
}

// pack the packet into raw buffer format and calculate CRCs etc.
func packetToBuffer(pkt packet) (buff []byte) {
	payloadSize := len(pkt.payload)
	packetSize := minPktSize + payloadSize
	buff = make([]byte, packetSize)

	buff[0] = pkt.header
	buff[1] = byte(packetSize << 3)
	buff[2] = byte(packetSize >> 5)
	buff[3] = calculateCRC8(buff[0:3])
	buff[4] = pkt.packetSubtype + (pkt.packetType << 3)
	if pkt.toDrone {
		buff[4] |= 0x40
	}
	if pkt.fromDrone {
		buff[4] |= 0x80
	}
	binary.LittleEndian.PutUint16(buff[5:], pkt.messageID)
	binary.LittleEndian.PutUint16(buff[7:], pkt.sequence)
	copy(buff[9:], pkt.payload)
	crc16 := calculateCRC16(buff[0 : 9+payloadSize])
	binary.LittleEndian.PutUint16(buff[9+payloadSize:], crc16)
	return buff
}

// validPacket checks both CRCs of a raw packet.
func validPacket(buff []byte, size int) bool {
	if size < minPktSize || size > len(buff) {
		return false
	}
	return calculateCRC8(buff[0:3]) == buff[3] &&
		calculateCRC16(buff[0:size-2]) == binary.LittleEndian.Uint16(buff[size-2:size])
}

func calculateCRC8(bytes []byte) byte {
	crc := byte(0x77)
	for _, b := range bytes {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8c
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func calculateCRC16(bytes []byte) uint16 {
	crc := uint16(0x3692)
	for _, b := range bytes {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func payloadToFlightData(pl []byte) (fd FlightData, ok bool) {
	if len(pl) < 18 {
		return fd, false
	}
	fd.Height = int16(binary.LittleEndian.Uint16(pl[0:]))
	fd.NorthSpeed = int16(binary.LittleEndian.Uint16(pl[2:]))
	fd.EastSpeed = int16(binary.LittleEndian.Uint16(pl[4:]))
	fd.VerticalSpeed = int16(binary.LittleEndian.Uint16(pl[6:]))
	fd.FlyTime = int16(binary.LittleEndian.Uint16(pl[8:]))
	fd.BatteryPercentage = int8(pl[12])
	fd.BatteryMilliVolts = int16(binary.LittleEndian.Uint16(pl[15:]))

	fd.Flying = (pl[17] & 1) == 1
	fd.OnGround = (pl[17] >> 1 & 1) == 1
	fd.DroneHover = (pl[17] >> 3 & 1) == 1
	fd.BatteryLow = (pl[17] >> 5 & 1) == 1
	fd.BatteryCritical = (pl[17] >> 6 & 1) == 1
	if len(pl) > 18 {
		fd.FlyMode = pl[18]
	}
	return fd, true
}

// stickPayload packs the four sticks into the 11-byte msgSetStick payload.
func stickPayload(sm StickMessage, sports bool, now time.Time) []byte {
	// This packing of the joystick data is just vile...
	var packedAxes uint64
	packedAxes = jsInt16ToTello(sm.Rx) & 0x07ff
	packedAxes |= (jsInt16ToTello(sm.Ry) & 0x07ff) << 11
	packedAxes |= (jsInt16ToTello(sm.Ly) & 0x07ff) << 22
	packedAxes |= (jsInt16ToTello(sm.Lx) & 0x07ff) << 33
	if sports {
		packedAxes |= 1 << 44
	}
	pl := make([]byte, 11)
	for i := 0; i < 6; i++ {
		pl[i] = byte(packedAxes >> (8 * i))
	}
	pl[6] = byte(now.Hour())
	pl[7] = byte(now.Minute())
	pl[8] = byte(now.Second())
	ms := now.UnixNano() / 1000000
	pl[9] = byte(ms & 0xff)
	pl[10] = byte(ms >> 8)
	return pl
}

func jsInt16ToTello(sv int16) uint64 {
	// sv is in range -32768 to 32767, we need 660 to 1388 where 0 => 1024
	return uint64(int(sv)/90 + 1024)
}

func bytesToFloat32(b []byte) (fl float32) {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

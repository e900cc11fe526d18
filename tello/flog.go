// flog.go

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

import "math"

const (
	logRecordSeparator = 'U'
	logRecNewMVO       = 0x001d
	logRecIMU          = 0x0800
)

const (
	mvoRecLen = 30  // bytes of an MVO record we decode
	imuRecLen = 110 // bytes of an IMU record we decode
)

func (tello *Tello) ackLogHeader(id []byte) {
	tello.ctrlMu.Lock()
	defer tello.ctrlMu.Unlock()
	pkt := newPacket(ptData1, msgLogHeader, 0, 3)
	pkt.payload[1] = id[0]
	pkt.payload[2] = id[1]
	if err := tello.send(pkt); err != nil {
		tello.log().WithError(err).Debug("Could not acknowledge log header")
	}
}

func (tello *Tello) parseLogPacket(data []byte) {
	pos := 1
	if len(data) < 2 {
		return
	}
	for pos < len(data)-6 {
		if data[pos] != logRecordSeparator {
			tello.log().WithField("pos", pos).Trace("Bad log record separator")
			break
		}
		recLen := int(data[pos+1])
		if data[pos+2] != 0 || recLen == 0 {
			tello.log().WithField("pos", pos).Trace("Log record too long")
			break
		}
		logRecType := uint16(data[pos+3]) + uint16(data[pos+4])<<8
		xorVal := data[pos+6]
		switch logRecType {
		case logRecNewMVO:
			xorBuf, ok := unxor(data[pos:], mvoRecLen, xorVal)
			if !ok {
				return
			}
			var mvo MVOData
			offset := 12
			mvo.VelocityX = int16(xorBuf[offset]) + int16(xorBuf[offset+1])<<8
			offset += 2
			mvo.VelocityY = int16(xorBuf[offset]) + int16(xorBuf[offset+1])<<8
			offset += 2
			mvo.VelocityZ = int16(xorBuf[offset]) + int16(xorBuf[offset+1])<<8
			offset += 2
			mvo.PositionX = bytesToFloat32(xorBuf[offset : offset+4])
			offset += 4
			mvo.PositionY = bytesToFloat32(xorBuf[offset : offset+4])
			offset += 4
			mvo.PositionZ = bytesToFloat32(xorBuf[offset : offset+4])
			tello.fdMu.Lock()
			tello.fd.MVO = mvo
			tello.mvoSeen = true
			tello.fdMu.Unlock()
		case logRecIMU:
			xorBuf, ok := unxor(data[pos:], imuRecLen, xorVal)
			if !ok {
				return
			}
			var imu IMUData
			offset := 10 + 48 // skip the raw accelerometer and gyro data
			imu.QuaternionW = bytesToFloat32(xorBuf[offset : offset+4])
			offset += 4
			imu.QuaternionX = bytesToFloat32(xorBuf[offset : offset+4])
			offset += 4
			imu.QuaternionY = bytesToFloat32(xorBuf[offset : offset+4])
			offset += 4
			imu.QuaternionZ = bytesToFloat32(xorBuf[offset : offset+4])
			offset += 4 + 24
			imu.Temperature = int16(xorBuf[offset]) + int16(xorBuf[offset+1])<<8
			imu.Yaw = quatToYawDeg(imu.QuaternionX, imu.QuaternionY, imu.QuaternionZ, imu.QuaternionW)
			tello.fdMu.Lock()
			tello.fd.IMU = imu
			tello.fdMu.Unlock()
		}
		pos += recLen
	}
}

// unxor decodes the first n bytes of a log record.
func unxor(rec []byte, n int, xorVal byte) ([]byte, bool) {
	if len(rec) < n {
		return nil, false
	}
	xorBuf := make([]byte, n)
	for i := range xorBuf {
		xorBuf[i] = rec[i] ^ xorVal
	}
	return xorBuf, true
}

// quatToYawDeg derives the yaw, in whole degrees, from the IMU quaternion.
func quatToYawDeg(qX, qY, qZ, qW float32) int16 {
	x, y, z, w := float64(qX), float64(qY), float64(qZ), float64(qW)
	yaw := math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return int16(math.Round(yaw * 180 / math.Pi))
}
